package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGMysticBot/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository owns the users table and is the credit ledger of record.
// Every balance change is a single conditional UPDATE; nothing here reads a
// balance and writes it back.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `user_id, COALESCE(username, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), credits, total_spent_stars, COALESCE(last_result_url, ''), COALESCE(referred_by, ''), joined_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Credits, &u.SpentStars, &u.LastResultURL, &u.ReferredBy, &u.JoinedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// Ensure creates the user with the starting balance on first contact and
// otherwise refreshes display metadata only. credits, total_spent_stars and
// referred_by are absent from the update clause.
func (r *UserRepository) Ensure(ctx context.Context, profile models.Profile, referredBy string, startCredits int) (*models.User, bool, error) {
	const query = `
INSERT INTO users (user_id, username, first_name, last_name, credits, referred_by)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''))
ON DUPLICATE KEY UPDATE
    username = COALESCE(VALUES(username), username),
    first_name = COALESCE(VALUES(first_name), first_name),
    last_name = COALESCE(VALUES(last_name), last_name)`
	if startCredits < 0 {
		startCredits = 0
	}
	res, err := r.db.ExecContext(ctx, query, profile.UserID, profile.Username, profile.FirstName, profile.LastName, startCredits, referredBy)
	if err != nil {
		return nil, false, fmt.Errorf("upsert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("upsert user rows affected: %w", err)
	}
	// MySQL reports 1 for an insert, 2 for an update and 0 when nothing changed.
	created := affected == 1

	user, err := r.FindByID(ctx, profile.UserID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, ErrUserNotFound
	}
	return user, created, nil
}

// TryDebit takes one credit if the balance is positive and reports whether it did.
func (r *UserRepository) TryDebit(ctx context.Context, userID int64) (bool, error) {
	const query = `UPDATE users SET credits = credits - 1 WHERE user_id = ? AND credits > 0`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("debit credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit rows affected: %w", err)
	}
	return affected > 0, nil
}

// Credit adds amount to the balance unconditionally. Used for refunds, purchases and bonuses.
func (r *UserRepository) Credit(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	const query = `UPDATE users SET credits = credits + ? WHERE user_id = ?`
	res, err := r.db.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit rows affected: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) RecordSpend(ctx context.Context, userID int64, units int) error {
	const query = `UPDATE users SET total_spent_stars = total_spent_stars + ? WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, units, userID); err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	return nil
}

func (r *UserRepository) GetBalance(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT credits FROM users WHERE user_id = ?`
	var credits int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return credits, nil
}

func (r *UserRepository) SetLastResult(ctx context.Context, userID int64, resultURL string) error {
	const query = `UPDATE users SET last_result_url = ? WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, resultURL, userID); err != nil {
		return fmt.Errorf("set last result: %w", err)
	}
	return nil
}

func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
