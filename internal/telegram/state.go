package telegram

import (
	"sync"
	"time"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateAwaitingPrompt
)

type Session struct {
	State       SessionState
	AspectRatio string
	ExpiresAt   time.Time
}

// SessionStore keeps per-user conversational state. Entries expire after ttl
// and are removed when consumed.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]Session
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[int64]Session),
		now:      time.Now,
	}
}

// AwaitPrompt puts the user into prompt mode with the chosen aspect ratio.
func (s *SessionStore) AwaitPrompt(userID int64, aspectRatio string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = Session{
		State:       StateAwaitingPrompt,
		AspectRatio: aspectRatio,
		ExpiresAt:   s.now().Add(s.ttl),
	}
}

// Take returns the live session for userID and clears it.
func (s *SessionStore) Take(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	delete(s.sessions, userID)
	if !s.now().Before(session.ExpiresAt) {
		return Session{}, false
	}
	return session, true
}

func (s *SessionStore) Reset(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// Prune drops expired sessions and returns how many were removed.
func (s *SessionStore) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
