package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGMysticBot/internal/models"
)

func TestPurchaseRecordGrantsCredits(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPurchaseRepository(db)
	packID := int64(2)
	p := &models.Purchase{UserID: 7, PackID: &packID, Payload: "pack:p30", Stars: 129, CreditsAdded: 30, ChargeID: "ch-1"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO purchases`).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(`UPDATE users SET credits = credits \+ \?`).WithArgs(30, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), p))
	assert.Equal(t, int64(5), p.ID)
}

func TestPurchaseRecordDetectsDuplicateCharge(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPurchaseRepository(db)
	p := &models.Purchase{UserID: 7, Payload: "pack:p30", Stars: 129, CreditsAdded: 30, ChargeID: "ch-1"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO purchases`).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Record(context.Background(), p), ErrDuplicatePurchase)
}

func TestPurchaseRecordRollsBackWhenCreditFails(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPurchaseRepository(db)
	p := &models.Purchase{UserID: 7, Payload: "pack:p30", Stars: 129, CreditsAdded: 30, ChargeID: "ch-1"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO purchases`).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(`UPDATE users SET credits = credits \+ \?`).WithArgs(30, int64(7)).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.Record(context.Background(), p)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Zero(t, p.ID)
}

func TestPurchaseRecordUnknownUserRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPurchaseRepository(db)
	p := &models.Purchase{UserID: 404, Payload: "pack:p30", Stars: 129, CreditsAdded: 30, ChargeID: "ch-2"}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO purchases`).WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectExec(`UPDATE users SET credits`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Record(context.Background(), p), ErrUserNotFound)
}

func TestReferralInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewReferralRepository(db)

	mock.ExpectExec(`INSERT IGNORE INTO referrals`).WithArgs(int64(1), int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT IGNORE INTO referrals`).WithArgs(int64(1), int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Insert(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestPromoRedeem(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPromoRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, uses, max_uses FROM promo_codes WHERE code = \? FOR UPDATE`).WithArgs("SPRING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uses", "max_uses"}).AddRow(3, 0, 10))
	mock.ExpectExec(`INSERT IGNORE INTO promo_redemptions`).WithArgs(int64(7), int64(3)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE promo_codes SET uses = uses \+ 1`).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET credits = credits \+ \?`).WithArgs(10, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Redeem(context.Background(), 7, "SPRING", 10))
}

func TestPromoRedeemTwiceIsRejected(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPromoRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, uses, max_uses FROM promo_codes`).WithArgs("SPRING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uses", "max_uses"}).AddRow(3, 1, 10))
	mock.ExpectExec(`INSERT IGNORE INTO promo_redemptions`).WithArgs(int64(7), int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Redeem(context.Background(), 7, "SPRING", 10), ErrPromoAlreadyRedeemed)
}

func TestPromoRedeemExhausted(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPromoRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, uses, max_uses FROM promo_codes`).WithArgs("SPRING").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uses", "max_uses"}).AddRow(3, 10, 10))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Redeem(context.Background(), 7, "SPRING", 10), ErrPromoExhausted)
}
