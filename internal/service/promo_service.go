package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
)

var ErrPromoInvalid = errors.New("promo code invalid")

type PromoService struct {
	promos *repository.PromoRepository
	bonus  int
}

func NewPromoService(promos *repository.PromoRepository, bonus int) *PromoService {
	return &PromoService{promos: promos, bonus: bonus}
}

// Apply redeems code for the user and returns the credits granted.
func (s *PromoService) Apply(ctx context.Context, userID int64, code string) (int, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return 0, ErrPromoInvalid
	}
	if err := s.promos.Redeem(ctx, userID, code, s.bonus); err != nil {
		if errors.Is(err, repository.ErrPromoNotFound) {
			return 0, ErrPromoInvalid
		}
		return 0, err
	}
	return s.bonus, nil
}

func (s *PromoService) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.promos.List(ctx)
}

func (s *PromoService) GetByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	return s.promos.GetByID(ctx, id)
}

func (s *PromoService) Create(ctx context.Context, code string, maxUses int) (*models.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || maxUses <= 0 {
		return nil, fmt.Errorf("code and positive max_uses are required")
	}
	return s.promos.Create(ctx, &models.PromoCode{Code: code, MaxUses: maxUses})
}

func (s *PromoService) Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))
	return s.promos.Update(ctx, promo)
}

func (s *PromoService) Delete(ctx context.Context, id int64) error {
	return s.promos.Delete(ctx, id)
}
