package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IlyasAtabaev731/credx-wallet/internal/domain/models"
	"github.com/IlyasAtabaev731/credx-wallet/internal/storage"
	"github.com/shopspring/decimal"
)

type OperationKind string

const (
	OpSend     OperationKind = "send"
	OpRequest  OperationKind = "request"
	OpTransfer OperationKind = "transfer"
	OpTopUp    OperationKind = "topup"
	OpAddMoney OperationKind = "add_money"
)

// Operation is a wallet action that moves the balance and records a
// transaction in a single step.
type Operation struct {
	Kind   OperationKind
	Amount float64
	// Counterparty is the recipient, requester, account, top-up method or
	// funding source depending on Kind.
	Counterparty string
	Note         string
}

type Receipt struct {
	Balance     decimal.Decimal
	Transaction models.Transaction
}

// Apply executes op atomically. Debits fail with ErrInsufficientFunds when the
// balance does not cover them.
func (w *Wallet) Apply(ctx context.Context, userID int64, op Operation) (Receipt, error) {
	const fn = "wallet.Apply"

	amount, err := toDecimal(op.Amount)
	if err != nil {
		return Receipt{}, err
	}
	counterparty := strings.TrimSpace(op.Counterparty)
	if !amount.IsPositive() || counterparty == "" {
		return Receipt{}, fmt.Errorf("%w: amount and %s are required", ErrInvalidInput, counterpartyField(op.Kind))
	}
	note := strings.TrimSpace(op.Note)

	t := models.Transaction{UserID: userID, Status: models.StatusDone}
	var delta decimal.Decimal

	switch op.Kind {
	case OpSend:
		t.Purpose = "Send to " + counterparty + withNote(note)
		t.Amount = amount.Neg()
		t.Kind = models.KindExpense
		delta = amount.Neg()
	case OpTransfer:
		t.Purpose = "Transfer to " + counterparty
		t.Amount = amount.Neg()
		t.Kind = models.KindExpense
		delta = amount.Neg()
	case OpRequest:
		t.Purpose = "Request from " + counterparty + withNote(note)
		t.Amount = amount
		t.Kind = models.KindIncome
		t.Status = models.StatusPending
		delta = decimal.Zero
	case OpTopUp:
		t.Purpose = "Top up via " + counterparty
		t.Amount = amount
		t.Kind = models.KindIncome
		delta = amount
	case OpAddMoney:
		t.Purpose = "Add money from " + counterparty
		t.Amount = amount
		t.Kind = models.KindIncome
		delta = amount
	default:
		return Receipt{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, op.Kind)
	}

	log := w.log.With(slog.String("op", fn), slog.Int64("uid", userID), slog.String("operation", string(op.Kind)))

	saved, balance, err := w.storage.ApplyTransaction(ctx, t, delta)
	w.recorder.LedgerOperation(string(op.Kind), err)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientFunds) {
			log.Info("insufficient balance", slog.String("amount", amount.String()))
			return Receipt{}, ErrInsufficientFunds
		}
		log.Error("failed to apply operation", slog.String("error", err.Error()))
		return Receipt{}, fmt.Errorf("%s: %w", fn, err)
	}

	w.cache.Store(cacheKey{userID, "balance"}, balance)
	w.invalidate(userID)

	log.Info("operation applied",
		slog.Int64("transaction_id", saved.ID),
		slog.String("amount", amount.String()),
		slog.String("balance", balance.String()),
	)

	return Receipt{Balance: balance, Transaction: saved}, nil
}

func withNote(note string) string {
	if note == "" {
		return ""
	}
	return " - " + note
}

func counterpartyField(kind OperationKind) string {
	switch kind {
	case OpSend:
		return "recipient"
	case OpRequest:
		return "from"
	case OpTransfer:
		return "to"
	case OpTopUp:
		return "method"
	case OpAddMoney:
		return "source"
	}
	return "counterparty"
}
