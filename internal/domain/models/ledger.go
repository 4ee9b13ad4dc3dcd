package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

type Status string

const (
	StatusDone    Status = "Done"
	StatusPending Status = "Pending"
)

// ParseStatus accepts any letter case. An empty string means StatusDone.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "done":
		return StatusDone, true
	case "pending":
		return StatusPending, true
	}
	return "", false
}

type Transaction struct {
	ID        int64
	UserID    int64
	Purpose   string
	Amount    decimal.Decimal
	Kind      Kind
	Status    Status
	CreatedAt time.Time
}

// StatsDelta is the change a transaction applies to the user's stats.
func (t Transaction) StatsDelta() (income, spent decimal.Decimal) {
	if t.Kind == KindIncome {
		return t.Amount, decimal.Zero
	}
	return decimal.Zero, t.Amount.Abs()
}

type Stats struct {
	UserID int64
	Income decimal.Decimal
	Spent  decimal.Decimal
}

// Ledger is a point-in-time view of a user's wallet.
type Ledger struct {
	UserID  int64
	Balance decimal.Decimal
	Stats   Stats
}

// LedgerDefaults are the values a freshly provisioned wallet starts with.
type LedgerDefaults struct {
	Balance decimal.Decimal
	Income  decimal.Decimal
	Spent   decimal.Decimal
}
