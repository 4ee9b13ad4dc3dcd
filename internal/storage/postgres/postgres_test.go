package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = models.LedgerDefaults{
	Balance: decimal.RequireFromString("5254.50"),
	Income:  decimal.NewFromInt(2430),
	Spent:   decimal.NewFromInt(1120),
}

func newMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewWithDB(db, defaults), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

func TestSaveUserProvisionsLedger(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO users (username, email, password_hash)")).
		WithArgs("alice", "alice@gmail.com", []byte("hash")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))
	mock.ExpectExec(q("INSERT INTO wallet_balance (user_id, balance)")).
		WithArgs(int64(1), defaults.Balance).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO wallet_stats (user_id, income, spent)")).
		WithArgs(int64(1), defaults.Income, defaults.Spent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := s.SaveUser(context.Background(), "alice", "alice@gmail.com", []byte("hash"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "alice", user.Username)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUserDuplicate(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := s.SaveUser(context.Background(), "alice", "alice@gmail.com", []byte("hash"))
	assert.ErrorIs(t, err, storage.ErrUserExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUserRollsBackOnProvisioningFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO users")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), time.Now()))
	mock.ExpectExec(q("INSERT INTO wallet_balance")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.SaveUser(context.Background(), "bob", "bob@gmail.com", []byte("hash"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrUserExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := s.User(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestSaveCardUpsertsByOwner(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(q("ON CONFLICT (user_id) DO UPDATE SET")).
		WithArgs(int64(9), "4111111111111111", "ALICE", "04", "2030",
			sql.NullString{}, "visa").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "inserted"}).AddRow(int64(5), now, false))

	card, created, err := s.SaveCard(context.Background(), models.Card{
		UserID:      9,
		Number:      "4111111111111111",
		HolderName:  "ALICE",
		ExpiryMonth: "04",
		ExpiryYear:  "2030",
		Network:     "visa",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), card.ID)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCardNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("FROM cards WHERE user_id = $1")).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

	_, err := s.Card(context.Background(), 9)
	assert.ErrorIs(t, err, storage.ErrCardNotFound)
}

func TestBalance(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("SELECT balance FROM wallet_balance WHERE user_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5254.50"))

	balance, err := s.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(defaults.Balance))
}

func TestBalanceNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("SELECT balance FROM wallet_balance")).WillReturnError(sql.ErrNoRows)

	_, err := s.Balance(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrBalanceNotFound)
}

func TestTransactionsFilterByKind(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(q("FROM transactions WHERE user_id = $1 AND type = $2 ORDER BY created_at DESC, id DESC LIMIT $3")).
		WithArgs(int64(1), "expense", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "purpose", "amount", "type", "status", "created_at"}).
			AddRow(int64(2), int64(1), "Coffee", "-4.50", "expense", "Done", now))

	list, err := s.Transactions(context.Background(), 1, models.KindExpense, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Coffee", list[0].Purpose)
	assert.Equal(t, models.KindExpense, list[0].Kind)
	assert.Equal(t, models.StatusDone, list[0].Status)
	assert.True(t, list[0].Amount.Equal(decimal.RequireFromString("-4.50")))
}

func TestTransactionsAllKinds(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2")).
		WithArgs(int64(1), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "purpose", "amount", "type", "status", "created_at"}))

	list, err := s.Transactions(context.Background(), 1, "", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)
}

func TestSaveTransactionIncrementsStatsAtomically(t *testing.T) {
	s, mock := newMock(t)
	amount := decimal.RequireFromString("4.50")

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO transactions (user_id, purpose, amount, type, status)")).
		WithArgs(int64(1), "Coffee", amount, "expense", "Done").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))
	mock.ExpectExec(q("spent = wallet_stats.spent + $5")).
		WithArgs(int64(1), defaults.Income, defaults.Spent.Add(amount), decimal.Zero, amount).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := s.SaveTransaction(context.Background(), models.Transaction{
		UserID:  1,
		Purpose: "Coffee",
		Amount:  amount,
		Kind:    models.KindExpense,
		Status:  models.StatusDone,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), tx.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTransactionRollsBackWhenStatsFail(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))
	mock.ExpectExec(q("INSERT INTO wallet_stats")).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.SaveTransaction(context.Background(), models.Transaction{
		UserID: 1, Purpose: "Salary", Amount: decimal.NewFromInt(100), Kind: models.KindIncome, Status: models.StatusDone,
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransactionDebit(t *testing.T) {
	s, mock := newMock(t)
	amount := decimal.NewFromInt(-100)

	mock.ExpectBegin()
	mock.ExpectExec(q("ON CONFLICT (user_id) DO NOTHING")).
		WithArgs(int64(1), defaults.Balance).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("WHERE user_id = $2 AND balance + $1 >= 0")).
		WithArgs(amount, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5154.50"))
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(12), time.Now()))
	mock.ExpectExec(q("INSERT INTO wallet_stats")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, balance, err := s.ApplyTransaction(context.Background(), models.Transaction{
		UserID: 1, Purpose: "Send to bob", Amount: amount, Kind: models.KindExpense, Status: models.StatusDone,
	}, amount)
	require.NoError(t, err)
	assert.Equal(t, int64(12), tx.ID)
	assert.True(t, balance.Equal(decimal.RequireFromString("5154.50")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransactionInsufficientFunds(t *testing.T) {
	s, mock := newMock(t)
	amount := decimal.NewFromInt(-10000)

	mock.ExpectBegin()
	mock.ExpectExec(q("ON CONFLICT (user_id) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("balance + $1 >= 0")).
		WithArgs(amount, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()

	_, _, err := s.ApplyTransaction(context.Background(), models.Transaction{
		UserID: 1, Purpose: "Send to bob", Amount: amount, Kind: models.KindExpense, Status: models.StatusDone,
	}, amount)
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransactionWithoutBalanceChange(t *testing.T) {
	s, mock := newMock(t)
	amount := decimal.NewFromInt(25)

	mock.ExpectBegin()
	mock.ExpectExec(q("ON CONFLICT (user_id) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT balance FROM wallet_balance WHERE user_id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("5254.50"))
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WithArgs(int64(1), "Request from bob", amount, "income", "Pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(13), time.Now()))
	mock.ExpectExec(q("INSERT INTO wallet_stats")).
		WithArgs(int64(1), defaults.Income.Add(amount), defaults.Spent, amount, decimal.Zero).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, balance, err := s.ApplyTransaction(context.Background(), models.Transaction{
		UserID: 1, Purpose: "Request from bob", Amount: amount, Kind: models.KindIncome, Status: models.StatusPending,
	}, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, balance.Equal(defaults.Balance))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgers(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(q("LEFT JOIN wallet_stats")).
		WithArgs(defaults.Income, defaults.Spent).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "income", "spent"}).
			AddRow(int64(1), "10.00", "2430", "1124.50").
			AddRow(int64(2), "5254.50", "2430", "1120"))

	ledgers, err := s.Ledgers(context.Background())
	require.NoError(t, err)
	require.Len(t, ledgers, 2)
	assert.Equal(t, int64(1), ledgers[0].Stats.UserID)
	assert.True(t, ledgers[0].Stats.Spent.Equal(decimal.RequireFromString("1124.50")))
}

func TestRevokeToken(t *testing.T) {
	s, mock := newMock(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM revoked_tokens WHERE expires_at < NOW()")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO revoked_tokens (jti, user_id, expires_at)")).
		WithArgs("jti-1", int64(1), exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.RevokeToken(context.Background(), "jti-1", 1, exp))

	mock.ExpectQuery(q("SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)")).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := s.IsTokenRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}
