package repository

import (
	"context"
	"database/sql"
	"fmt"
)

type ReferralRepository struct {
	db *sql.DB
}

func NewReferralRepository(db *sql.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Insert records the referral pair and reports whether it was new.
func (r *ReferralRepository) Insert(ctx context.Context, referrerID, referredID int64) (bool, error) {
	const query = `INSERT IGNORE INTO referrals (referrer_user_id, referred_user_id) VALUES (?, ?)`
	res, err := r.db.ExecContext(ctx, query, referrerID, referredID)
	if err != nil {
		return false, fmt.Errorf("insert referral: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("referral rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *ReferralRepository) CountByReferrer(ctx context.Context, referrerID int64) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM referrals WHERE referrer_user_id = ?`, referrerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}
