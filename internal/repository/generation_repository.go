package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/TGMysticBot/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const generationColumns = `id, user_id, prompt, aspect_ratio, task_id, COALESCE(result_url, ''), status, created_at, updated_at`

func scanGeneration(row interface{ Scan(...any) error }) (*models.Generation, error) {
	var g models.Generation
	if err := row.Scan(&g.ID, &g.UserID, &g.Prompt, &g.AspectRatio, &g.TaskID, &g.ResultURL, &g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create stores a submitted job. The record always carries the provider task id.
func (r *GenerationRepository) Create(ctx context.Context, gen *models.Generation) error {
	if gen.TaskID == "" {
		return fmt.Errorf("generation task id is required")
	}
	if gen.Status == "" {
		gen.Status = models.GenerationInProgress
	}
	const query = `
INSERT INTO generations (user_id, prompt, aspect_ratio, task_id, status)
VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, gen.UserID, gen.Prompt, gen.AspectRatio, gen.TaskID, gen.Status)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("generation last insert id: %w", err)
	}
	gen.ID = id
	return nil
}

// MarkTerminal moves an IN_PROGRESS record to a terminal status and reports
// whether this call performed the transition. Re-applying a status to an
// already terminal record is a no-op.
func (r *GenerationRepository) MarkTerminal(ctx context.Context, taskID string, status models.GenerationStatus, resultURL string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	const query = `
UPDATE generations SET status = ?, result_url = NULLIF(?, '')
WHERE task_id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, status, resultURL, taskID, models.GenerationInProgress)
	if err != nil {
		return false, fmt.Errorf("update generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("generation rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *GenerationRepository) FindByTaskID(ctx context.Context, taskID string) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE task_id = ?`
	g, err := scanGeneration(r.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan generation: %w", err)
	}
	return g, nil
}

func (r *GenerationRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	return r.list(ctx, query, userID, limit)
}

// ListInProgressOlderThan returns unresolved records older than age, oldest first.
// Age is measured against the database clock.
func (r *GenerationRepository) ListInProgressOlderThan(ctx context.Context, age time.Duration, limit int) ([]models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE status = ? AND created_at < (NOW() - INTERVAL ? SECOND) ORDER BY id ASC LIMIT ?`
	return r.list(ctx, query, models.GenerationInProgress, int64(age.Seconds()), limit)
}

func (r *GenerationRepository) list(ctx context.Context, query string, args ...any) ([]models.Generation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var out []models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation list: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}
