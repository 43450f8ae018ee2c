package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGMysticBot/internal/models"
)

type PackRepository struct {
	db *sql.DB
}

func NewPackRepository(db *sql.DB) *PackRepository {
	return &PackRepository{db: db}
}

const packColumns = `id, code, title, COALESCE(description, ''), stars, credits, is_active, created_at, updated_at`

func scanPack(row interface{ Scan(...any) error }) (*models.Pack, error) {
	var p models.Pack
	if err := row.Scan(&p.ID, &p.Code, &p.Title, &p.Description, &p.Stars, &p.Credits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PackRepository) List(ctx context.Context, activeOnly bool) ([]models.Pack, error) {
	query := `SELECT ` + packColumns + ` FROM star_packs`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY stars ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	defer rows.Close()

	var packs []models.Pack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pack: %w", err)
		}
		packs = append(packs, *p)
	}
	return packs, rows.Err()
}

func (r *PackRepository) GetByCode(ctx context.Context, code string) (*models.Pack, error) {
	query := `SELECT ` + packColumns + ` FROM star_packs WHERE code = ?`
	p, err := scanPack(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pack by code: %w", err)
	}
	return p, nil
}

func (r *PackRepository) GetByID(ctx context.Context, id int64) (*models.Pack, error) {
	query := `SELECT ` + packColumns + ` FROM star_packs WHERE id = ?`
	p, err := scanPack(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pack: %w", err)
	}
	return p, nil
}

func (r *PackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM star_packs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count packs: %w", err)
	}
	return n, nil
}

func (r *PackRepository) Create(ctx context.Context, pack *models.Pack) (*models.Pack, error) {
	const query = `
INSERT INTO star_packs (code, title, description, stars, credits, is_active)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, pack.Code, pack.Title, pack.Description, pack.Stars, pack.Credits, pack.IsActive)
	if err != nil {
		return nil, fmt.Errorf("create pack: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("pack last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PackRepository) Update(ctx context.Context, pack *models.Pack) (*models.Pack, error) {
	const query = `
UPDATE star_packs
SET code = ?, title = ?, description = NULLIF(?, ''), stars = ?, credits = ?, is_active = ?
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, pack.Code, pack.Title, pack.Description, pack.Stars, pack.Credits, pack.IsActive, pack.ID); err != nil {
		return nil, fmt.Errorf("update pack: %w", err)
	}
	return r.GetByID(ctx, pack.ID)
}

func (r *PackRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM star_packs WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete pack: %w", err)
	}
	return nil
}
