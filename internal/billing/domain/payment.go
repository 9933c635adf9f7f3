package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentConfirmed is the normalized payment event the engine processes.
type PaymentConfirmed struct {
	TransactionID string          `json:"transaction_id" validate:"required,max=200"`
	UserID        uuid.UUID       `json:"user_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentType   string          `json:"payment_type"`
	PackageID     *uuid.UUID      `json:"package_id"`
}

// LedgerEntry records a payment transaction that has been applied.
type LedgerEntry struct {
	TransactionID  string
	UserID         uuid.UUID
	PackageID      *uuid.UUID
	SubscriptionID *uuid.UUID
	Outcome        string
	ProcessedAt    time.Time
}

// Ledger outcomes.
const (
	LedgerOutcomeActivated = "activated"
	LedgerOutcomeExtended  = "extended"
)

// PaymentLedger remembers processed transaction ids so redelivered payments
// are applied once.
type PaymentLedger interface {
	// Claim inserts the entry and reports false if the transaction id was
	// already recorded.
	Claim(ctx context.Context, entry LedgerEntry) (bool, error)
	// Complete records the subscription a claimed transaction produced.
	Complete(ctx context.Context, transactionID string, subscriptionID uuid.UUID, outcome string) error
	// Purge deletes entries processed before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}
