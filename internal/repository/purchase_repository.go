package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/digkill/TGMysticBot/internal/models"
)

var ErrDuplicatePurchase = errors.New("purchase already recorded")

const mysqlDuplicateEntry = 1062

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// Record inserts a purchase keyed by the Telegram charge id and adds its
// credits to the buyer in one transaction. A second call with the same charge
// id returns ErrDuplicatePurchase and grants nothing.
func (r *PurchaseRepository) Record(ctx context.Context, p *models.Purchase) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
INSERT INTO purchases (user_id, pack_id, payload, stars, credits_added, telegram_charge_id)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, p.UserID, p.PackID, p.Payload, p.Stars, p.CreditsAdded, p.ChargeID)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrDuplicatePurchase
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if p.CreditsAdded > 0 {
		res, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits + ? WHERE user_id = ?`, p.CreditsAdded, p.UserID)
		if err != nil {
			return fmt.Errorf("add purchased credits: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("purchased credits rows affected: %w", err)
		} else if affected == 0 {
			return ErrUserNotFound
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purchase tx: %w", err)
	}
	p.ID = id
	return nil
}
