package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type Storage struct {
	db       *sql.DB
	defaults models.LedgerDefaults
}

func New(dbUrl string, defaults models.LedgerDefaults) (*Storage, error) {
	db, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	return NewWithDB(db, defaults), nil
}

// NewWithDB wraps an already opened database handle.
func NewWithDB(db *sql.DB, defaults models.LedgerDefaults) *Storage {
	return &Storage{db: db, defaults: defaults}
}

func (s *Storage) Stop() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveUser creates the user together with its default balance and stats rows.
func (s *Storage) SaveUser(ctx context.Context, username, email string, passHash []byte) (models.User, error) {
	const op = "storage.postgres.SaveUser"

	user := models.User{Username: username, Email: email, PasswordHash: passHash}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at",
			username, email, passHash,
		).Scan(&user.ID, &user.CreatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return storage.ErrUserExists
			}
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO wallet_balance (user_id, balance) VALUES ($1, $2)",
			user.ID, s.defaults.Balance,
		); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO wallet_stats (user_id, income, spent) VALUES ($1, $2, $3)",
			user.ID, s.defaults.Income, s.defaults.Spent,
		)
		return err
	})
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.postgres.User"

	var user models.User

	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1",
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SaveCard inserts the user's card or overwrites the existing one in place.
// created reports whether a new row was inserted.
func (s *Storage) SaveCard(ctx context.Context, card models.Card) (models.Card, bool, error) {
	const op = "storage.postgres.SaveCard"

	var created bool

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (user_id, card_number, card_name, card_month, card_year, card_bg, card_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			card_number = EXCLUDED.card_number,
			card_name = EXCLUDED.card_name,
			card_month = EXCLUDED.card_month,
			card_year = EXCLUDED.card_year,
			card_bg = EXCLUDED.card_bg,
			card_type = EXCLUDED.card_type
		RETURNING id, created_at, (xmax = 0)`,
		card.UserID, card.Number, card.HolderName, card.ExpiryMonth, card.ExpiryYear,
		sql.NullString{String: card.Background, Valid: card.Background != ""}, card.Network,
	).Scan(&card.ID, &card.CreatedAt, &created)
	if err != nil {
		return models.Card{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return card, created, nil
}

func (s *Storage) Card(ctx context.Context, userID int64) (models.Card, error) {
	const op = "storage.postgres.Card"

	var card models.Card

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, card_number, card_name, card_month, card_year, COALESCE(card_bg, ''), card_type, created_at
		FROM cards WHERE user_id = $1`,
		userID,
	).Scan(&card.ID, &card.UserID, &card.Number, &card.HolderName, &card.ExpiryMonth, &card.ExpiryYear,
		&card.Background, &card.Network, &card.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Card{}, fmt.Errorf("%s: %w", op, storage.ErrCardNotFound)
		}
		return models.Card{}, fmt.Errorf("%s: %w", op, err)
	}

	return card, nil
}

func (s *Storage) DeleteCard(ctx context.Context, userID int64) error {
	const op = "storage.postgres.DeleteCard"

	if _, err := s.db.ExecContext(ctx, "DELETE FROM cards WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	const op = "storage.postgres.Balance"

	var balance decimal.Decimal

	err := s.db.QueryRowContext(ctx, "SELECT balance FROM wallet_balance WHERE user_id = $1", userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%s: %w", op, storage.ErrBalanceNotFound)
		}
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return balance, nil
}

// SetBalance overwrites the balance unconditionally.
func (s *Storage) SetBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	const op = "storage.postgres.SetBalance"

	var balance decimal.Decimal

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO wallet_balance (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
		RETURNING balance`,
		userID, amount,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return balance, nil
}

func (s *Storage) Stats(ctx context.Context, userID int64) (models.Stats, error) {
	const op = "storage.postgres.Stats"

	stats := models.Stats{UserID: userID}

	err := s.db.QueryRowContext(ctx, "SELECT income, spent FROM wallet_stats WHERE user_id = $1", userID).
		Scan(&stats.Income, &stats.Spent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Stats{}, fmt.Errorf("%s: %w", op, storage.ErrStatsNotFound)
		}
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}

	return stats, nil
}

// Transactions returns the newest transactions first. An empty kind matches both kinds.
func (s *Storage) Transactions(ctx context.Context, userID int64, kind models.Kind, limit int) ([]models.Transaction, error) {
	const op = "storage.postgres.Transactions"

	query := "SELECT id, user_id, purpose, amount, type, status, created_at FROM transactions WHERE user_id = $1"
	args := []any{userID}
	if kind != "" {
		query += " AND type = $2"
		args = append(args, string(kind))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	transactions := make([]models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Purpose, &t.Amount, &t.Kind, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return transactions, nil
}

// SaveTransaction appends t to the log and bumps the matching stats counter in one transaction.
func (s *Storage) SaveTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	const op = "storage.postgres.SaveTransaction"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertTransaction(ctx, tx, &t); err != nil {
			return err
		}
		return s.incrementStats(ctx, tx, t)
	})
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// ApplyTransaction moves the balance by delta, records t and updates stats atomically.
// A negative delta is applied only when the balance covers it, otherwise
// storage.ErrInsufficientFunds is returned and nothing is written.
func (s *Storage) ApplyTransaction(ctx context.Context, t models.Transaction, delta decimal.Decimal) (models.Transaction, decimal.Decimal, error) {
	const op = "storage.postgres.ApplyTransaction"

	var balance decimal.Decimal

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO wallet_balance (user_id, balance) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING",
			t.UserID, s.defaults.Balance,
		); err != nil {
			return err
		}

		var row *sql.Row
		switch {
		case delta.IsNegative():
			row = tx.QueryRowContext(ctx, `
				UPDATE wallet_balance SET balance = balance + $1, updated_at = NOW()
				WHERE user_id = $2 AND balance + $1 >= 0
				RETURNING balance`,
				delta, t.UserID,
			)
		case delta.IsPositive():
			row = tx.QueryRowContext(ctx, `
				UPDATE wallet_balance SET balance = balance + $1, updated_at = NOW()
				WHERE user_id = $2
				RETURNING balance`,
				delta, t.UserID,
			)
		default:
			row = tx.QueryRowContext(ctx, "SELECT balance FROM wallet_balance WHERE user_id = $1", t.UserID)
		}
		if err := row.Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrInsufficientFunds
			}
			return err
		}

		if err := insertTransaction(ctx, tx, &t); err != nil {
			return err
		}
		return s.incrementStats(ctx, tx, t)
	})
	if err != nil {
		return models.Transaction{}, decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	return t, balance, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO transactions (user_id, purpose, amount, type, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		t.UserID, t.Purpose, t.Amount, string(t.Kind), string(t.Status),
	).Scan(&t.ID, &t.CreatedAt)
}

// incrementStats adds the transaction to the stats row with store-side arithmetic,
// so concurrent writers never lose an update.
func (s *Storage) incrementStats(ctx context.Context, tx *sql.Tx, t models.Transaction) error {
	income, spent := t.StatsDelta()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_stats (user_id, income, spent) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			income = wallet_stats.income + $4,
			spent = wallet_stats.spent + $5,
			updated_at = NOW()`,
		t.UserID, s.defaults.Income.Add(income), s.defaults.Spent.Add(spent), income, spent,
	)
	return err
}

// Ledgers loads the balance and stats of every user.
func (s *Storage) Ledgers(ctx context.Context) ([]models.Ledger, error) {
	const op = "storage.postgres.Ledgers"

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.user_id, b.balance, COALESCE(st.income, $1), COALESCE(st.spent, $2)
		FROM wallet_balance b
		LEFT JOIN wallet_stats st ON st.user_id = b.user_id`,
		s.defaults.Income, s.defaults.Spent,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ledgers []models.Ledger
	for rows.Next() {
		var l models.Ledger
		if err := rows.Scan(&l.UserID, &l.Balance, &l.Stats.Income, &l.Stats.Spent); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		l.Stats.UserID = l.UserID
		ledgers = append(ledgers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ledgers, nil
}

// RevokeToken blacklists a token id until its natural expiry and drops expired entries.
func (s *Storage) RevokeToken(ctx context.Context, jti string, userID int64, expiresAt time.Time) error {
	const op = "storage.postgres.RevokeToken"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM revoked_tokens WHERE expires_at < NOW()"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO revoked_tokens (jti, user_id, expires_at) VALUES ($1, $2, $3) ON CONFLICT (jti) DO NOTHING",
			jti, userID, expiresAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "storage.postgres.IsTokenRevoked"

	var revoked bool

	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)", jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}
