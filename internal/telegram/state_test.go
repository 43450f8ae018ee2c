package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionTakeClearsOnUse(t *testing.T) {
	s := NewSessionStore(time.Minute)
	s.AwaitPrompt(1, "square_1_1")

	session, ok := s.Take(1)
	assert.True(t, ok)
	assert.Equal(t, StateAwaitingPrompt, session.State)
	assert.Equal(t, "square_1_1", session.AspectRatio)

	_, ok = s.Take(1)
	assert.False(t, ok)
}

func TestSessionExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewSessionStore(time.Minute)
	s.now = func() time.Time { return now }
	s.AwaitPrompt(1, "square_1_1")
	s.AwaitPrompt(2, "square_1_1")

	now = now.Add(2 * time.Minute)
	_, ok := s.Take(1)
	assert.False(t, ok)
	assert.Equal(t, 1, s.Prune())
	assert.Zero(t, s.Len())
}

func TestSessionReset(t *testing.T) {
	s := NewSessionStore(0)
	s.AwaitPrompt(1, "x")
	s.Reset(1)
	_, ok := s.Take(1)
	assert.False(t, ok)
}
