package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
)

// DefaultPacks are seeded into an empty star_packs table.
var DefaultPacks = []models.Pack{
	{Code: "p10", Title: "10 генераций", Description: "Пак на 10 генераций", Stars: 49, Credits: 10, IsActive: true},
	{Code: "p30", Title: "30 генераций", Description: "Пак на 30 генераций", Stars: 129, Credits: 30, IsActive: true},
	{Code: "p100", Title: "100 генераций", Description: "Пак на 100 генераций", Stars: 399, Credits: 100, IsActive: true},
}

type PackService struct {
	repo *repository.PackRepository
}

type CreatePackInput struct {
	Code        string
	Title       string
	Description string
	Stars       int
	Credits     int
	IsActive    *bool
}

type UpdatePackInput struct {
	Title       *string
	Description *string
	Stars       *int
	Credits     *int
	IsActive    *bool
}

func NewPackService(repo *repository.PackRepository) *PackService {
	return &PackService{repo: repo}
}

func (s *PackService) EnsureDefaultPacks(ctx context.Context) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, p := range DefaultPacks {
		pack := p
		if _, err := s.repo.Create(ctx, &pack); err != nil {
			return fmt.Errorf("create default pack %s: %w", p.Code, err)
		}
	}
	return nil
}

func (s *PackService) List(ctx context.Context, activeOnly bool) ([]models.Pack, error) {
	return s.repo.List(ctx, activeOnly)
}

// Active returns the pack with code if it is on sale.
func (s *PackService) Active(ctx context.Context, code string) (*models.Pack, error) {
	pack, err := s.repo.GetByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if pack == nil || !pack.IsActive {
		return nil, nil
	}
	return pack, nil
}

func (s *PackService) Create(ctx context.Context, input CreatePackInput) (*models.Pack, error) {
	input.Code = strings.TrimSpace(input.Code)
	if input.Code == "" || input.Title == "" {
		return nil, fmt.Errorf("code and title are required")
	}
	if input.Stars <= 0 {
		return nil, fmt.Errorf("stars must be positive")
	}
	if input.Credits <= 0 {
		return nil, fmt.Errorf("credits must be positive")
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	return s.repo.Create(ctx, &models.Pack{
		Code:        input.Code,
		Title:       input.Title,
		Description: input.Description,
		Stars:       input.Stars,
		Credits:     input.Credits,
		IsActive:    isActive,
	})
}

func (s *PackService) Update(ctx context.Context, id int64, input UpdatePackInput) (*models.Pack, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("pack not found")
	}
	if input.Title != nil && *input.Title != "" {
		existing.Title = *input.Title
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Stars != nil && *input.Stars > 0 {
		existing.Stars = *input.Stars
	}
	if input.Credits != nil && *input.Credits > 0 {
		existing.Credits = *input.Credits
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	return s.repo.Update(ctx, existing)
}

func (s *PackService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
