package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/freepik"
	"github.com/digkill/TGMysticBot/internal/metrics"
	"github.com/digkill/TGMysticBot/internal/models"
)

var (
	ErrPromptRequired      = errors.New("prompt required")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSubmissionFailed    = errors.New("generation submission failed")
	ErrGenerationFailed    = errors.New("generation failed")
)

// Ledger is the balance side of the users table.
type Ledger interface {
	TryDebit(ctx context.Context, userID int64) (bool, error)
	Credit(ctx context.Context, userID int64, amount int) error
	SetLastResult(ctx context.Context, userID int64, resultURL string) error
}

type GenerationStore interface {
	Create(ctx context.Context, gen *models.Generation) error
	FindByTaskID(ctx context.Context, taskID string) (*models.Generation, error)
	MarkTerminal(ctx context.Context, taskID string, status models.GenerationStatus, resultURL string) (bool, error)
}

type Provider interface {
	Submit(ctx context.Context, req freepik.SubmitRequest) (*freepik.Task, error)
	Poll(ctx context.Context, taskID string) (*freepik.TaskStatus, error)
}

type Authorizer interface {
	Authenticate(initData string) (*auth.Identity, error)
	Authorize(ctx context.Context, id *auth.Identity) error
}

// Accounts makes sure a ledger row exists for an authorized caller.
type Accounts interface {
	EnsureAccount(ctx context.Context, id auth.Identity) error
}

// Mirror copies a provider result somewhere durable and returns the new reference.
type Mirror interface {
	Mirror(ctx context.Context, sourceURL string) (string, error)
}

type GenerationConfig struct {
	PollInterval       time.Duration
	Deadline           time.Duration
	DefaultAspectRatio string
}

// GenerationRequest carries either raw mini-app initData or an identity the
// chat platform already vouched for.
type GenerationRequest struct {
	InitData    string
	Identity    *auth.Identity
	Prompt      string
	AspectRatio string
}

// GenerationResult is returned for COMPLETED and for a poll loop that hit its
// deadline, in which case Status stays IN_PROGRESS and URL is empty.
type GenerationResult struct {
	UserID int64
	TaskID string
	Status models.GenerationStatus
	URL    string
}

func (r *GenerationResult) Pending() bool {
	return r.Status == models.GenerationInProgress
}

type GenerationService struct {
	cfg      GenerationConfig
	log      *slog.Logger
	gate     Authorizer
	accounts Accounts
	provider Provider
	outcomes *outcomes
	now      func() time.Time
}

func NewGenerationService(cfg GenerationConfig, log *slog.Logger, gate Authorizer, accounts Accounts, ledger Ledger, generations GenerationStore, provider Provider, mirror Mirror) *GenerationService {
	if cfg.DefaultAspectRatio == "" {
		cfg.DefaultAspectRatio = "social_story_9_16"
	}
	return &GenerationService{
		cfg:      cfg,
		log:      log,
		gate:     gate,
		accounts: accounts,
		provider: provider,
		outcomes: &outcomes{log: log, ledger: ledger, generations: generations, mirror: mirror},
		now:      time.Now,
	}
}

// Generate runs one request through authorization, debit, submission and the
// bounded poll loop. Every error path that follows a successful debit has
// either refunded the credit or left an IN_PROGRESS record behind for the sweep.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	identity := req.Identity
	if identity == nil {
		id, err := s.gate.Authenticate(req.InitData)
		if err != nil {
			return nil, err
		}
		identity = id
	}
	if err := s.gate.Authorize(ctx, identity); err != nil {
		return nil, err
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrPromptRequired
	}
	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = s.cfg.DefaultAspectRatio
	}

	if err := s.accounts.EnsureAccount(ctx, *identity); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	// The caller going away must not strand a debited credit.
	ctx = context.WithoutCancel(ctx)
	userID := identity.UserID
	started := s.now()

	ok, err := s.outcomes.ledger.TryDebit(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("debit: %w", err)
	}
	if !ok {
		metrics.RecordGeneration("no_credits", 0)
		return nil, ErrInsufficientCredits
	}

	task, err := s.provider.Submit(ctx, freepik.SubmitRequest{Prompt: prompt, AspectRatio: aspect})
	if err != nil {
		s.log.Error("submit generation failed", "user_id", userID, "err", err)
		s.outcomes.refund(ctx, userID, "", "submit_failed")
		metrics.RecordGeneration("submit_failed", s.now().Sub(started))
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	deadline := s.now().Add(s.cfg.Deadline)

	gen := &models.Generation{
		UserID:      userID,
		Prompt:      prompt,
		AspectRatio: aspect,
		TaskID:      task.TaskID,
		Status:      models.GenerationInProgress,
	}
	if err := s.outcomes.generations.Create(ctx, gen); err != nil {
		s.log.Error("store generation failed", "user_id", userID, "task_id", task.TaskID, "err", err)
		s.outcomes.refund(ctx, userID, task.TaskID, "record_failed")
		metrics.RecordGeneration("submit_failed", s.now().Sub(started))
		return nil, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	s.log.Info("generation submitted", "user_id", userID, "task_id", task.TaskID, "aspect_ratio", aspect)

	res, err := s.await(ctx, gen, deadline)
	switch {
	case errors.Is(err, ErrGenerationFailed):
		metrics.RecordGeneration("failed", s.now().Sub(started))
	case err != nil:
		metrics.RecordGeneration("error", s.now().Sub(started))
	case res.Pending():
		metrics.RecordGeneration("timed_out", s.now().Sub(started))
	default:
		metrics.RecordGeneration("completed", s.now().Sub(started))
	}
	return res, err
}

// await polls until a terminal answer or the deadline. Each poll is bounded by
// the deadline too, so a hung provider call ends as a pending result.
func (s *GenerationService) await(ctx context.Context, gen *models.Generation, deadline time.Time) (*GenerationResult, error) {
	pending := &GenerationResult{UserID: gen.UserID, TaskID: gen.TaskID, Status: models.GenerationInProgress}

	timer := time.NewTimer(s.untilNextPoll(deadline))
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		<-timer.C

		pollCtx, cancel := context.WithDeadline(ctx, deadline)
		st, err := s.provider.Poll(pollCtx, gen.TaskID)
		expired := pollCtx.Err() != nil
		cancel()

		switch {
		case err != nil && expired:
			s.log.Info("generation poll cut off at deadline", "task_id", gen.TaskID, "attempt", attempt)
			return pending, nil
		case err != nil:
			s.log.Warn("poll generation failed", "task_id", gen.TaskID, "attempt", attempt, "err", err)
		case st.Status == freepik.StatusCompleted:
			rec, _, err := s.outcomes.complete(ctx, gen.UserID, gen.TaskID, st.ResultURL)
			if err != nil {
				return pending, nil
			}
			return settledResult(rec, pending)
		case st.Status == freepik.StatusFailed:
			moved, err := s.outcomes.fail(ctx, gen.UserID, gen.TaskID, "provider_failed")
			if err != nil {
				return pending, nil
			}
			if !moved {
				rec, err := s.outcomes.generations.FindByTaskID(ctx, gen.TaskID)
				if err != nil || rec == nil {
					return pending, nil
				}
				return settledResult(rec, pending)
			}
			return nil, ErrGenerationFailed
		}

		if !s.now().Before(deadline) {
			s.log.Info("generation still pending at deadline", "task_id", gen.TaskID, "attempts", attempt)
			return pending, nil
		}
		timer.Reset(s.untilNextPoll(deadline))
	}
}

// untilNextPoll is the poll interval, shortened so the last poll starts by the deadline.
func (s *GenerationService) untilNextPoll(deadline time.Time) time.Duration {
	wait := s.cfg.PollInterval
	if left := deadline.Sub(s.now()); left < wait {
		wait = max(left, 0)
	}
	return wait
}

// settledResult reports a record in whatever state it was left in.
func settledResult(rec *models.Generation, pending *GenerationResult) (*GenerationResult, error) {
	switch rec.Status {
	case models.GenerationCompleted:
		return &GenerationResult{UserID: rec.UserID, TaskID: rec.TaskID, Status: models.GenerationCompleted, URL: rec.ResultURL}, nil
	case models.GenerationFailed:
		return nil, ErrGenerationFailed
	default:
		return pending, nil
	}
}

// outcomes applies terminal provider results. Both the live poll loop and the
// reconciliation sweep go through it, and only the caller whose conditional
// update moved the record out of IN_PROGRESS touches the ledger.
type outcomes struct {
	log         *slog.Logger
	ledger      Ledger
	generations GenerationStore
	mirror      Mirror
}

// complete records a COMPLETED result and returns the record as it now stands,
// reporting whether this call made the transition. A record another caller
// already settled comes back untouched: no mirroring and no last-result
// update. A store error leaves the record IN_PROGRESS.
func (o *outcomes) complete(ctx context.Context, userID int64, taskID, resultURL string) (*models.Generation, bool, error) {
	rec, err := o.generations.FindByTaskID(ctx, taskID)
	if err != nil {
		o.log.Error("load generation failed", "user_id", userID, "task_id", taskID, "err", err)
		return nil, false, err
	}
	if rec != nil && rec.Status != models.GenerationInProgress {
		o.log.Info("generation already settled", "task_id", taskID, "status", rec.Status)
		return rec, false, nil
	}

	url := resultURL
	if o.mirror != nil {
		mirrored, err := o.mirror.Mirror(ctx, resultURL)
		if err != nil {
			o.log.Warn("mirror result failed, keeping provider url", "task_id", taskID, "err", err)
		} else {
			url = mirrored
		}
	}

	transitioned, err := o.generations.MarkTerminal(ctx, taskID, models.GenerationCompleted, url)
	if err != nil {
		o.log.Error("mark generation completed failed", "user_id", userID, "task_id", taskID, "err", err)
		return nil, false, err
	}
	if !transitioned {
		settled, err := o.generations.FindByTaskID(ctx, taskID)
		if err != nil {
			return nil, false, err
		}
		if settled == nil {
			return nil, false, fmt.Errorf("generation %s not found", taskID)
		}
		o.log.Info("generation settled concurrently", "task_id", taskID, "status", settled.Status)
		return settled, false, nil
	}
	if err := o.ledger.SetLastResult(ctx, userID, url); err != nil {
		o.log.Error("set last result failed", "user_id", userID, "task_id", taskID, "err", err)
	}
	return &models.Generation{UserID: userID, TaskID: taskID, Status: models.GenerationCompleted, ResultURL: url}, true, nil
}

// fail records FAILED and refunds the credit when this call made the transition.
func (o *outcomes) fail(ctx context.Context, userID int64, taskID, reason string) (bool, error) {
	transitioned, err := o.generations.MarkTerminal(ctx, taskID, models.GenerationFailed, "")
	if err != nil {
		o.log.Error("mark generation failed failed", "user_id", userID, "task_id", taskID, "err", err)
		return false, err
	}
	if transitioned {
		o.refund(ctx, userID, taskID, reason)
	}
	return transitioned, nil
}

func (o *outcomes) refund(ctx context.Context, userID int64, taskID, reason string) {
	if err := o.ledger.Credit(ctx, userID, 1); err != nil {
		o.log.Error("refund failed", "user_id", userID, "task_id", taskID, "reason", reason, "err", err)
		metrics.RecordRefund(reason, false)
		return
	}
	o.log.Info("credit refunded", "user_id", userID, "task_id", taskID, "reason", reason)
	metrics.RecordRefund(reason, true)
}
