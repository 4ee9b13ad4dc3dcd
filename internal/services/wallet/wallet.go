package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/IlyasAtabaev731/credx-wallet/internal/config"
	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput      = errors.New("invalid transaction data")
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be a finite number below 1e12 in magnitude", ErrInvalidInput)
	ErrInvalidKind       = fmt.Errorf("%w: type must be income or expense", ErrInvalidInput)
	ErrInvalidStatus     = fmt.Errorf("%w: status must be Done or Pending", ErrInvalidInput)
	ErrInsufficientFunds = errors.New("insufficient balance")
)

type Storage interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Stats(ctx context.Context, userID int64) (models.Stats, error)
	Transactions(ctx context.Context, userID int64, kind models.Kind, limit int) ([]models.Transaction, error)
	SaveTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	ApplyTransaction(ctx context.Context, t models.Transaction, delta decimal.Decimal) (models.Transaction, decimal.Decimal, error)
	Ledgers(ctx context.Context) ([]models.Ledger, error)
}

// Recorder observes ledger writes.
type Recorder interface {
	LedgerOperation(operation string, err error)
}

type nopRecorder struct{}

func (nopRecorder) LedgerOperation(string, error) {}

type TransactionInput struct {
	Purpose string
	Amount  float64
	Kind    models.Kind
	Status  string
}

type Wallet struct {
	log      *slog.Logger
	storage  Storage
	recorder Recorder
	defaults models.LedgerDefaults
	limit    int
	maxLimit int
	// cache keeps the last value read from storage for each cacheKey. It is
	// served, marked stale, only when storage cannot be read.
	cache *sync.Map
}

type cacheKey struct {
	userID int64
	item   string
}

func Defaults(cfg config.Wallet) models.LedgerDefaults {
	return models.LedgerDefaults{
		Balance: decimal.NewFromFloat(cfg.DefaultBalance),
		Income:  decimal.NewFromFloat(cfg.DefaultIncome),
		Spent:   decimal.NewFromFloat(cfg.DefaultSpent),
	}
}

func New(log *slog.Logger, storage Storage, cfg config.Wallet, recorder Recorder) *Wallet {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	limit := cfg.TransactionsLimit
	if limit <= 0 {
		limit = 50
	}
	maxLimit := cfg.MaxTransactionsLimit
	if maxLimit < limit {
		maxLimit = limit
	}

	return &Wallet{
		log:      log,
		storage:  storage,
		recorder: recorder,
		defaults: Defaults(cfg),
		limit:    limit,
		maxLimit: maxLimit,
		cache:    &sync.Map{},
	}
}

// Warm fills the cache with every user's balance and stats.
func (w *Wallet) Warm(ctx context.Context) error {
	const op = "wallet.Warm"

	ledgers, err := w.storage.Ledgers(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, l := range ledgers {
		w.cache.Store(cacheKey{l.UserID, "balance"}, l.Balance)
		w.cache.Store(cacheKey{l.UserID, "stats"}, l.Stats)
	}

	w.log.Info("wallet cache warmed", slog.Int("ledgers", len(ledgers)))

	return nil
}

// readThrough calls fetch and caches its result. When fetch fails, the cached
// value is returned with stale set, if there is one.
func readThrough[T any](w *Wallet, key cacheKey, fetch func() (T, error)) (value T, stale bool, err error) {
	value, err = fetch()
	if err == nil {
		w.cache.Store(key, value)
		return value, false, nil
	}

	if cached, ok := w.cache.Load(key); ok {
		if v, ok := cached.(T); ok {
			w.log.Warn("serving stale wallet data",
				slog.Int64("uid", key.userID),
				slog.String("item", key.item),
				slog.String("error", err.Error()),
			)
			return v, true, nil
		}
	}

	return value, false, err
}

// invalidate drops the cached stats and transaction lists of a user after a
// ledger write, so a stale read never pairs a new balance with an old log.
func (w *Wallet) invalidate(userID int64) {
	w.cache.Range(func(k, _ any) bool {
		key := k.(cacheKey)
		if key.userID == userID && (key.item == "stats" || strings.HasPrefix(key.item, "transactions:")) {
			w.cache.Delete(k)
		}
		return true
	})
}

func (w *Wallet) Balance(ctx context.Context, userID int64) (decimal.Decimal, bool, error) {
	const op = "wallet.Balance"

	balance, stale, err := readThrough(w, cacheKey{userID, "balance"}, func() (decimal.Decimal, error) {
		balance, err := w.storage.Balance(ctx, userID)
		if errors.Is(err, storage.ErrBalanceNotFound) {
			return w.defaults.Balance, nil
		}
		return balance, err
	})
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%s: %w", op, err)
	}

	return balance, stale, nil
}

// SetBalance overwrites the balance. It bypasses the transaction log.
func (w *Wallet) SetBalance(ctx context.Context, userID int64, amount float64) (decimal.Decimal, error) {
	const op = "wallet.SetBalance"

	value, err := toDecimal(amount)
	if err != nil {
		return decimal.Zero, err
	}

	balance, err := w.storage.SetBalance(ctx, userID, value)
	w.recorder.LedgerOperation("set_balance", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}

	w.cache.Store(cacheKey{userID, "balance"}, balance)
	w.log.Info("balance overwritten", slog.Int64("uid", userID), slog.String("balance", balance.String()))

	return balance, nil
}

func (w *Wallet) Stats(ctx context.Context, userID int64) (models.Stats, bool, error) {
	const op = "wallet.Stats"

	stats, stale, err := readThrough(w, cacheKey{userID, "stats"}, func() (models.Stats, error) {
		stats, err := w.storage.Stats(ctx, userID)
		if errors.Is(err, storage.ErrStatsNotFound) {
			return models.Stats{UserID: userID, Income: w.defaults.Income, Spent: w.defaults.Spent}, nil
		}
		return stats, err
	})
	if err != nil {
		return models.Stats{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return stats, stale, nil
}

// Transactions lists the newest transactions first. An empty kind lists both
// kinds; limit is clamped to the configured bounds.
func (w *Wallet) Transactions(ctx context.Context, userID int64, kind models.Kind, limit int) ([]models.Transaction, bool, error) {
	const op = "wallet.Transactions"

	if kind != "" && !kind.Valid() {
		return nil, false, ErrInvalidKind
	}

	switch {
	case limit <= 0:
		limit = w.limit
	case limit > w.maxLimit:
		limit = w.maxLimit
	}

	key := cacheKey{userID, fmt.Sprintf("transactions:%s:%d", kind, limit)}
	list, stale, err := readThrough(w, key, func() ([]models.Transaction, error) {
		return w.storage.Transactions(ctx, userID, kind, limit)
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return list, stale, nil
}

// AddTransaction appends to the log and updates stats without touching the balance.
func (w *Wallet) AddTransaction(ctx context.Context, userID int64, in TransactionInput) (models.Transaction, error) {
	const op = "wallet.AddTransaction"

	t, err := w.newTransaction(userID, in)
	if err != nil {
		return models.Transaction{}, err
	}

	saved, err := w.storage.SaveTransaction(ctx, t)
	w.recorder.LedgerOperation("add_transaction", err)
	if err != nil {
		w.log.Error("failed to save transaction", slog.String("op", op), slog.Int64("uid", userID), slog.String("error", err.Error()))
		return models.Transaction{}, fmt.Errorf("%s: %w", op, err)
	}

	w.invalidate(userID)

	w.log.Info("transaction added",
		slog.Int64("uid", userID),
		slog.Int64("id", saved.ID),
		slog.String("type", string(saved.Kind)),
		slog.String("amount", saved.Amount.String()),
	)

	return saved, nil
}

func (w *Wallet) newTransaction(userID int64, in TransactionInput) (models.Transaction, error) {
	purpose := strings.TrimSpace(in.Purpose)
	if purpose == "" {
		return models.Transaction{}, ErrInvalidInput
	}
	if !in.Kind.Valid() {
		return models.Transaction{}, ErrInvalidKind
	}
	status, ok := models.ParseStatus(in.Status)
	if !ok {
		return models.Transaction{}, ErrInvalidStatus
	}
	amount, err := toDecimal(in.Amount)
	if err != nil {
		return models.Transaction{}, err
	}

	return models.Transaction{
		UserID:  userID,
		Purpose: purpose,
		Amount:  amount,
		Kind:    in.Kind,
		Status:  status,
	}, nil
}

// maxAmount bounds every amount to what NUMERIC(14,2) can hold.
const maxAmount = 1e12

func toDecimal(amount float64) (decimal.Decimal, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || math.Abs(amount) >= maxAmount {
		return decimal.Zero, ErrInvalidAmount
	}
	return decimal.NewFromFloat(amount).Round(2), nil
}
