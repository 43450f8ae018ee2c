package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/TGMysticBot/internal/models"
)

type PromptRepository struct {
	db *sql.DB
}

func NewPromptRepository(db *sql.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

func (r *PromptRepository) Create(ctx context.Context, p *models.Prompt) error {
	const query = `INSERT INTO prompts (title, text, source_message_id) VALUES (NULLIF(?, ''), ?, ?)`
	res, err := r.db.ExecContext(ctx, query, p.Title, p.Text, p.SourceMessageID)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("prompt last insert id: %w", err)
	}
	p.ID = id
	return nil
}

func (r *PromptRepository) ListLatest(ctx context.Context, limit int) ([]models.Prompt, error) {
	const query = `
SELECT id, COALESCE(title, ''), text, COALESCE(source_message_id, 0), created_at
FROM prompts ORDER BY id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.Title, &p.Text, &p.SourceMessageID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
