package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type MembershipChecker interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
}

type GateConfig struct {
	BotToken       string
	InitDataMaxAge time.Duration
	OwnerID        int64
	Enabled        bool
	// FailOpen admits callers when the membership lookup itself errors.
	FailOpen bool
}

// Gate authenticates mini-app callers and applies the channel subscription rule.
type Gate struct {
	cfg     GateConfig
	checker MembershipChecker
	log     *slog.Logger
	now     func() time.Time
}

func NewGate(cfg GateConfig, checker MembershipChecker, log *slog.Logger) *Gate {
	return &Gate{cfg: cfg, checker: checker, log: log, now: time.Now}
}

// Authenticate verifies raw initData. Chat updates skip this step.
func (g *Gate) Authenticate(initData string) (*Identity, error) {
	return ValidateInitData(initData, g.cfg.BotToken, g.cfg.InitDataMaxAge, g.now())
}

// Authorize returns nil, ErrUnauthorized, ErrNotSubscribed, or ErrCheckUnavailable
// when the lookup fails and FailOpen is off.
func (g *Gate) Authorize(ctx context.Context, id *Identity) error {
	if id == nil || id.UserID == 0 {
		return ErrUnauthorized
	}
	if g.cfg.OwnerID != 0 && id.UserID == g.cfg.OwnerID {
		return nil
	}
	if !g.cfg.Enabled || g.checker == nil {
		return nil
	}

	member, err := g.checker.IsMember(ctx, id.UserID)
	if err != nil {
		if g.cfg.FailOpen {
			if g.log != nil {
				g.log.Warn("membership check failed, admitting", "user_id", id.UserID, "err", err)
			}
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCheckUnavailable, err)
	}
	if !member {
		return ErrNotSubscribed
	}
	return nil
}

// IsDenied reports whether err is one of the gate's refusals.
func IsDenied(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotSubscribed) || errors.Is(err, ErrCheckUnavailable)
}
