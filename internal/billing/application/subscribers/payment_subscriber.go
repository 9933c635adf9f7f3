package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/billing/application"
	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/eventbus"
)

// Routing keys of the payment service events.
const (
	RoutingKeyPaymentSucceeded      = "payment.succeeded"
	RoutingKeyServicePackagePayment = "payment.service_package"
)

// PaymentProcessor applies a confirmed payment.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, evt domain.PaymentConfirmed) (application.Outcome, error)
}

// PaymentSucceededPayload is the generic payment event. Only payment types
// owned by this service are applied.
type PaymentSucceededPayload struct {
	TransactionID string          `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentType   string          `json:"paymentType"`
	ReferenceID   *uuid.UUID      `json:"referenceId"`
}

// ServicePackagePaymentPayload is the dedicated service package payment event.
type ServicePackagePaymentPayload struct {
	TransactionID    string          `json:"transactionId"`
	UserID           uuid.UUID       `json:"userId"`
	Amount           decimal.Decimal `json:"amount"`
	ServicePackageID *uuid.UUID      `json:"servicePackageId"`
}

// IsRelevantPaymentType reports whether a payment type grants entitlements.
func IsRelevantPaymentType(paymentType string) bool {
	return paymentType == "ServicePackage" ||
		paymentType == "AccountUpgrade" ||
		strings.HasPrefix(paymentType, "Identity")
}

// PaymentSubscriber feeds payment events from the bus into the processor.
type PaymentSubscriber struct {
	processor PaymentProcessor
	logger    *slog.Logger
}

// NewPaymentSubscriber creates a new payment subscriber.
func NewPaymentSubscriber(processor PaymentProcessor, logger *slog.Logger) *PaymentSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentSubscriber{
		processor: processor,
		logger:    logger,
	}
}

// EventTypes returns the event types this subscriber handles.
func (s *PaymentSubscriber) EventTypes() []string {
	return []string{
		RoutingKeyPaymentSucceeded,
		RoutingKeyServicePackagePayment,
	}
}

// Handle processes a payment event. A nil return acknowledges the delivery;
// invalid payments return a permanent error and anything else is retried.
func (s *PaymentSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	evt, ok, err := s.normalize(ctx, event)
	if err != nil || !ok {
		return err
	}

	outcome, err := s.processor.ProcessPayment(ctx, evt)
	if outcome == application.OutcomeAck {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("payment %s: %s", evt.TransactionID, outcome)
	}
	return err
}

// normalize maps either payload shape onto PaymentConfirmed. It reports false
// for events that should be acknowledged without processing.
func (s *PaymentSubscriber) normalize(ctx context.Context, event *eventbus.ConsumedEvent) (domain.PaymentConfirmed, bool, error) {
	switch event.RoutingKey {
	case RoutingKeyPaymentSucceeded:
		var p PaymentSucceededPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return domain.PaymentConfirmed{}, false, fmt.Errorf("%w: %v", eventbus.ErrUndecodable, err)
		}
		if !IsRelevantPaymentType(p.PaymentType) {
			s.logger.DebugContext(ctx, "skipping unrelated payment",
				"transaction_id", p.TransactionID,
				"payment_type", p.PaymentType,
			)
			return domain.PaymentConfirmed{}, false, nil
		}
		if p.ReferenceID == nil {
			s.logger.WarnContext(ctx, "payment without package reference acknowledged",
				"transaction_id", p.TransactionID,
				"user_id", p.UserID,
				"payment_type", p.PaymentType,
			)
			return domain.PaymentConfirmed{}, false, nil
		}
		return domain.PaymentConfirmed{
			TransactionID: p.TransactionID,
			UserID:        p.UserID,
			Amount:        p.Amount,
			PaymentType:   p.PaymentType,
			PackageID:     p.ReferenceID,
		}, true, nil

	case RoutingKeyServicePackagePayment:
		var p ServicePackagePaymentPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return domain.PaymentConfirmed{}, false, fmt.Errorf("%w: %v", eventbus.ErrUndecodable, err)
		}
		return domain.PaymentConfirmed{
			TransactionID: p.TransactionID,
			UserID:        p.UserID,
			Amount:        p.Amount,
			PaymentType:   "ServicePackage",
			PackageID:     p.ServicePackageID,
		}, true, nil

	default:
		s.logger.WarnContext(ctx, "unknown event type", "routing_key", event.RoutingKey)
		return domain.PaymentConfirmed{}, false, nil
	}
}
