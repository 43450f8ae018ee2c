package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/freepik"
	"github.com/digkill/TGMysticBot/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memLedger struct {
	mu         sync.Mutex
	balances   map[int64]int
	lastResult map[int64]string
	credits    int
	creditErr  error
}

func newMemLedger(balances map[int64]int) *memLedger {
	return &memLedger{balances: balances, lastResult: map[int64]string{}}
}

func (l *memLedger) TryDebit(_ context.Context, userID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] <= 0 {
		return false, nil
	}
	l.balances[userID]--
	return true, nil
}

func (l *memLedger) Credit(_ context.Context, userID int64, amount int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.creditErr != nil {
		return l.creditErr
	}
	l.balances[userID] += amount
	l.credits++
	return nil
}

func (l *memLedger) SetLastResult(_ context.Context, userID int64, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastResult[userID] = url
	return nil
}

func (l *memLedger) balance(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *memLedger) refunds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credits
}

type memStore struct {
	mu        sync.Mutex
	records   map[string]*models.Generation
	createErr error
	markErr   error
	nextID    int64
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*models.Generation{}}
}

func (s *memStore) Create(_ context.Context, gen *models.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.records[gen.TaskID]; ok {
		return fmt.Errorf("duplicate task %s", gen.TaskID)
	}
	s.nextID++
	cp := *gen
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.records[gen.TaskID] = &cp
	gen.ID = cp.ID
	return nil
}

func (s *memStore) MarkTerminal(_ context.Context, taskID string, status models.GenerationStatus, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	rec, ok := s.records[taskID]
	if !ok || rec.Status != models.GenerationInProgress {
		return false, nil
	}
	rec.Status = status
	rec.ResultURL = url
	return true, nil
}

func (s *memStore) FindByTaskID(_ context.Context, taskID string) (*models.Generation, error) {
	return s.get(taskID), nil
}

func (s *memStore) ListInProgressOlderThan(_ context.Context, age time.Duration, limit int) ([]models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Generation
	for _, rec := range s.records {
		if rec.Status == models.GenerationInProgress && time.Since(rec.CreatedAt) >= age {
			out = append(out, *rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) get(taskID string) *models.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[taskID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// pollStep is one scripted answer from the provider.
type pollStep struct {
	status freepik.Status
	url    string
	err    error
}

type scriptedProvider struct {
	mu          sync.Mutex
	submitErr   error
	submitDelay time.Duration
	pollDelay   time.Duration
	script      map[string][]pollStep
	submits     int
	polls       int
}

func (p *scriptedProvider) Submit(_ context.Context, _ freepik.SubmitRequest) (*freepik.Task, error) {
	time.Sleep(p.submitDelay)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	p.submits++
	return &freepik.Task{TaskID: fmt.Sprintf("task-%d", p.submits), Status: freepik.StatusPending}, nil
}

// Poll replays the task's script and repeats its last step once exhausted.
// Tasks without a script stay pending.
// A pollDelay stalls each call like a hung connection until ctx gives up.
func (p *scriptedProvider) Poll(ctx context.Context, taskID string) (*freepik.TaskStatus, error) {
	if p.pollDelay > 0 {
		select {
		case <-time.After(p.pollDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("poll %s: %w", taskID, ctx.Err())
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	steps := p.script[taskID]
	if len(steps) == 0 {
		return &freepik.TaskStatus{TaskID: taskID, Status: freepik.StatusPending}, nil
	}
	step := steps[0]
	if len(steps) > 1 {
		p.script[taskID] = steps[1:]
	}
	if step.err != nil {
		return nil, step.err
	}
	return &freepik.TaskStatus{TaskID: taskID, Status: step.status, ResultURL: step.url}, nil
}

func (p *scriptedProvider) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func (p *scriptedProvider) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submits
}

type stubGate struct {
	identity *auth.Identity
	authnErr error
	authzErr error
}

func (g *stubGate) Authenticate(string) (*auth.Identity, error) {
	if g.authnErr != nil {
		return nil, g.authnErr
	}
	return g.identity, nil
}

func (g *stubGate) Authorize(context.Context, *auth.Identity) error {
	return g.authzErr
}

type noopAccounts struct{ err error }

func (a noopAccounts) EnsureAccount(context.Context, auth.Identity) error { return a.err }

type stubMirror struct {
	url string
	err error
}

func (m stubMirror) Mirror(context.Context, string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

type countingMirror struct {
	mu    sync.Mutex
	calls int
}

func (m *countingMirror) Mirror(_ context.Context, src string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return "https://cdn.example/" + src, nil
}

var errNetwork = errors.New("dial tcp: connection refused")
