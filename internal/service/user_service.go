package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/digkill/TGMysticBot/internal/auth"
	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
)

const referralPrefix = "ref_"

type UserConfig struct {
	StartBonus    int
	ReferralBonus int
	BotUsername   string
}

type UserService struct {
	cfg       UserConfig
	log       *slog.Logger
	users     *repository.UserRepository
	referrals *repository.ReferralRepository
}

// Registration is what happened on a user's contact with the bot.
type Registration struct {
	User    *models.User
	Created bool
	// ReferrerID is set when the referral bonus was paid out to both sides.
	ReferrerID int64
}

func NewUserService(cfg UserConfig, log *slog.Logger, users *repository.UserRepository, referrals *repository.ReferralRepository) *UserService {
	return &UserService{cfg: cfg, log: log, users: users, referrals: referrals}
}

// Register creates the account on first contact and refreshes display
// metadata afterwards. A valid ref_ start parameter on first contact rewards
// both parties once.
func (s *UserService) Register(ctx context.Context, profile models.Profile, startParam string) (*Registration, error) {
	referrerID, hasReferrer := ParseReferralCode(startParam)
	if hasReferrer && referrerID == profile.UserID {
		hasReferrer = false
	}
	referredBy := ""
	if hasReferrer {
		referredBy = strings.TrimSpace(startParam)
	}

	user, created, err := s.users.Ensure(ctx, profile, referredBy, s.cfg.StartBonus)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	reg := &Registration{User: user, Created: created}
	if !created || !hasReferrer || s.cfg.ReferralBonus <= 0 {
		return reg, nil
	}

	// Referral errors never block registration.
	referrer, err := s.users.FindByID(ctx, referrerID)
	if err != nil || referrer == nil {
		if err != nil {
			s.log.Warn("referral lookup failed", "referrer_id", referrerID, "err", err)
		}
		return reg, nil
	}
	inserted, err := s.referrals.Insert(ctx, referrerID, profile.UserID)
	if err != nil {
		s.log.Warn("referral insert failed", "referrer_id", referrerID, "user_id", profile.UserID, "err", err)
		return reg, nil
	}
	if !inserted {
		return reg, nil
	}
	if err := s.users.Credit(ctx, profile.UserID, s.cfg.ReferralBonus); err != nil {
		s.log.Error("referral bonus for new user failed", "user_id", profile.UserID, "err", err)
	} else {
		user.Credits += s.cfg.ReferralBonus
	}
	if err := s.users.Credit(ctx, referrerID, s.cfg.ReferralBonus); err != nil {
		s.log.Error("referral bonus for referrer failed", "referrer_id", referrerID, "err", err)
		return reg, nil
	}
	reg.ReferrerID = referrerID
	s.log.Info("referral rewarded", "referrer_id", referrerID, "user_id", profile.UserID, "bonus", s.cfg.ReferralBonus)
	return reg, nil
}

// EnsureAccount registers a mini-app caller, honouring the WebApp start_param.
func (s *UserService) EnsureAccount(ctx context.Context, id auth.Identity) error {
	_, err := s.Register(ctx, id.Profile(), id.StartParam)
	return err
}

func (s *UserService) Get(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

// Grant adds credits on behalf of an operator.
func (s *UserService) Grant(ctx context.Context, userID int64, amount int) error {
	return s.users.Credit(ctx, userID, amount)
}

func (s *UserService) ReferralCount(ctx context.Context, userID int64) (int, error) {
	return s.referrals.CountByReferrer(ctx, userID)
}

func (s *UserService) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	return ids, nil
}

// ReferralLink is the deep link a user shares to invite others.
func (s *UserService) ReferralLink(userID int64) string {
	bot := s.cfg.BotUsername
	if bot == "" {
		bot = "<bot>"
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", bot, ReferralCode(userID))
}

func ReferralCode(userID int64) string {
	return referralPrefix + strconv.FormatInt(userID, 36)
}

func ParseReferralCode(startParam string) (int64, bool) {
	code, ok := strings.CutPrefix(strings.TrimSpace(startParam), referralPrefix)
	if !ok || code == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.ToLower(code), 36, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
