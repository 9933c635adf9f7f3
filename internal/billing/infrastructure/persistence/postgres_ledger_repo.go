package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

// PostgresPaymentLedger implements PaymentLedger with PostgreSQL.
type PostgresPaymentLedger struct {
	conn database.Connection
}

// NewPostgresPaymentLedger creates a new ledger.
func NewPostgresPaymentLedger(conn database.Connection) *PostgresPaymentLedger {
	return &PostgresPaymentLedger{conn: conn}
}

// Claim records the transaction id unless it is already present.
func (l *PostgresPaymentLedger) Claim(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	result, err := database.ExecutorFromContext(ctx, l.conn).Exec(ctx, `
		INSERT INTO processed_payments (transaction_id, user_id, package_id, subscription_id, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id) DO NOTHING
	`, entry.TransactionID, entry.UserID, entry.PackageID, entry.SubscriptionID, entry.Outcome, entry.ProcessedAt)
	if err != nil {
		return false, database.Translate(err, "claim payment")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Complete stores the result of a claimed transaction.
func (l *PostgresPaymentLedger) Complete(ctx context.Context, transactionID string, subscriptionID uuid.UUID, outcome string) error {
	_, err := database.ExecutorFromContext(ctx, l.conn).Exec(ctx,
		`UPDATE processed_payments SET subscription_id = $2, outcome = $3 WHERE transaction_id = $1`,
		transactionID, subscriptionID, outcome,
	)
	return database.Translate(err, "complete payment")
}

// Purge removes entries processed before the cutoff.
func (l *PostgresPaymentLedger) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := database.ExecutorFromContext(ctx, l.conn).Exec(ctx,
		`DELETE FROM processed_payments WHERE processed_at < $1`, before)
	if err != nil {
		return 0, database.Translate(err, "purge payments")
	}
	return result.RowsAffected()
}

var _ domain.PaymentLedger = (*PostgresPaymentLedger)(nil)
