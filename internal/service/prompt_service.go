package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/digkill/TGMysticBot/internal/models"
	"github.com/digkill/TGMysticBot/internal/repository"
)

const maxPromptTitle = 80

type PromptService struct {
	prompts *repository.PromptRepository
}

func NewPromptService(prompts *repository.PromptRepository) *PromptService {
	return &PromptService{prompts: prompts}
}

// Ingest stores a channel post as a prompt. The first line becomes the title.
// Empty posts are ignored.
func (s *PromptService) Ingest(ctx context.Context, messageID int, text string) (*models.Prompt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	p := &models.Prompt{
		Title:           PromptTitle(text),
		Text:            text,
		SourceMessageID: messageID,
	}
	if err := s.prompts.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PromptService) Latest(ctx context.Context, limit int) ([]models.Prompt, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	return s.prompts.ListLatest(ctx, limit)
}

func PromptTitle(text string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxPromptTitle {
		runes := []rune(title)
		title = string(runes[:maxPromptTitle-1]) + "…"
	}
	return title
}
