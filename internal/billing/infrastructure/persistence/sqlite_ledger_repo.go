package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

// SQLitePaymentLedger implements PaymentLedger with SQLite.
type SQLitePaymentLedger struct {
	conn database.Connection
}

// NewSQLitePaymentLedger creates a new ledger.
func NewSQLitePaymentLedger(conn database.Connection) *SQLitePaymentLedger {
	return &SQLitePaymentLedger{conn: conn}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// Claim records the transaction id unless it is already present.
func (l *SQLitePaymentLedger) Claim(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	result, err := database.ExecutorFromContext(ctx, l.conn).Exec(ctx, `
		INSERT INTO processed_payments (transaction_id, user_id, package_id, subscription_id, outcome, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (transaction_id) DO NOTHING
	`,
		entry.TransactionID,
		entry.UserID.String(),
		nullUUID(entry.PackageID),
		nullUUID(entry.SubscriptionID),
		entry.Outcome,
		sqlite.FormatTime(entry.ProcessedAt),
	)
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
func (l *SQLitePaymentLedger) Complete(ctx context.Context, transactionID string, subscriptionID uuid.UUID, outcome string) error {
	_, err := database.ExecutorFromContext(ctx, l.conn).Exec(ctx,
		`UPDATE processed_payments SET subscription_id = ?, outcome = ? WHERE transaction_id = ?`,
		subscriptionID.String(), outcome, transactionID,
	)
	return database.Translate(err, "complete payment")
}

// Purge removes entries processed before the cutoff.
func (l *SQLitePaymentLedger) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := database.ExecutorFromContext(ctx, l.conn).Exec(ctx,
		`DELETE FROM processed_payments WHERE processed_at < ?`, sqlite.FormatTime(before))
	if err != nil {
		return 0, database.Translate(err, "purge payments")
	}
	return result.RowsAffected()
}

var _ domain.PaymentLedger = (*SQLitePaymentLedger)(nil)
