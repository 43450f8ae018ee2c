package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/TGMysticBot/internal/models"
)

var (
	ErrPromoNotFound        = errors.New("promo code not found")
	ErrPromoExhausted       = errors.New("promo code exhausted")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
)

type PromoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

const promoColumns = `id, code, max_uses, uses, created_at`

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return r.getOne(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = ?`, code)
}

func (r *PromoRepository) GetByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	return r.getOne(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE id = ?`, id)
}

func (r *PromoRepository) getOne(ctx context.Context, query string, arg any) (*models.PromoCode, error) {
	var promo models.PromoCode
	row := r.db.QueryRowContext(ctx, query, arg)
	if err := row.Scan(&promo.ID, &promo.Code, &promo.MaxUses, &promo.Uses, &promo.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan promo: %w", err)
	}
	return &promo, nil
}

func (r *PromoRepository) List(ctx context.Context) ([]models.PromoCode, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	defer rows.Close()

	var promos []models.PromoCode
	for rows.Next() {
		var promo models.PromoCode
		if err := rows.Scan(&promo.ID, &promo.Code, &promo.MaxUses, &promo.Uses, &promo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan promo list: %w", err)
		}
		promos = append(promos, promo)
	}
	return promos, rows.Err()
}

func (r *PromoRepository) Create(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	const query = `INSERT INTO promo_codes (code, max_uses, uses) VALUES (?, ?, 0)`
	res, err := r.db.ExecContext(ctx, query, promo.Code, promo.MaxUses)
	if err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("promo last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *PromoRepository) Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	const query = `UPDATE promo_codes SET code = ?, max_uses = ?, uses = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, promo.Code, promo.MaxUses, promo.Uses, promo.ID); err != nil {
		return nil, fmt.Errorf("update promo: %w", err)
	}
	return r.GetByID(ctx, promo.ID)
}

func (r *PromoRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM promo_codes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete promo: %w", err)
	}
	return nil
}

// Redeem consumes one use of the code for the user and grants bonus credits
// in a single transaction.
func (r *PromoRepository) Redeem(ctx context.Context, userID int64, code string, bonus int) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var promoID int64
	var uses, maxUses int
	row := tx.QueryRowContext(ctx, `SELECT id, uses, max_uses FROM promo_codes WHERE code = ? FOR UPDATE`, code)
	if err := row.Scan(&promoID, &uses, &maxUses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPromoNotFound
		}
		return fmt.Errorf("lock promo: %w", err)
	}
	if uses >= maxUses {
		return ErrPromoExhausted
	}

	res, err := tx.ExecContext(ctx, `INSERT IGNORE INTO promo_redemptions (user_id, promo_code_id) VALUES (?, ?)`, userID, promoID)
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("redemption rows affected: %w", err)
	} else if affected == 0 {
		return ErrPromoAlreadyRedeemed
	}

	if _, err := tx.ExecContext(ctx, `UPDATE promo_codes SET uses = uses + 1 WHERE id = ?`, promoID); err != nil {
		return fmt.Errorf("increment promo uses: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits + ? WHERE user_id = ?`, bonus, userID); err != nil {
		return fmt.Errorf("add promo credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit promo tx: %w", err)
	}
	return nil
}
