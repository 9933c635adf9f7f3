package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	st       *store
	subs     storeSubscriptions
	ledger   storeLedger
	catalog  *fakeCatalog
	identity *fakeIdentity
	outbox   *outbox.InMemoryRepository
	metrics  *observability.InMemoryMetrics
	clock    time.Time

	sync         *Synchronizer
	sweeper      *Sweeper
	processor    *PaymentProcessor
	entitlements *EntitlementService
	service      *SubscriptionService
}

func newHarness(t *testing.T, pkgs ...domain.Package) *harness {
	t.Helper()

	h := &harness{
		st:       newStore(),
		catalog:  newCatalog(pkgs...),
		identity: newIdentity(),
		outbox:   outbox.NewInMemoryRepository(),
		metrics:  observability.NewInMemoryMetrics(),
		clock:    t0,
	}
	h.subs = storeSubscriptions{st: h.st}
	h.ledger = storeLedger{st: h.st}
	uow := storeUoW{st: h.st}
	upserter := NewUpserter(h.subs)
	now := func() time.Time { return h.clock }

	h.sync = NewSynchronizer(h.subs, h.catalog, h.identity, nil, h.metrics)
	h.sweeper = NewSweeper(uow, h.subs, h.outbox, h.sync, nil, h.metrics)
	h.sweeper.retry.Delay = 0

	h.processor = NewPaymentProcessor(uow, h.ledger, h.catalog, h.identity, upserter, h.outbox, h.sync, nil, h.metrics)
	h.processor.retry.Delay = 0
	h.processor.now = now

	h.entitlements = NewEntitlementService(h.sweeper, h.identity, nil)
	h.entitlements.now = now

	h.service = NewSubscriptionService(uow, h.subs, h.catalog, h.identity, upserter, h.outbox, h.sync, nil, h.metrics)
	h.service.now = now
	return h
}

func (h *harness) pay(t *testing.T, txID string, userID, packageID uuid.UUID) (Outcome, error) {
	t.Helper()
	return h.processor.ProcessPayment(context.Background(), domain.PaymentConfirmed{
		TransactionID: txID,
		UserID:        userID,
		PaymentType:   "ServicePackage",
		PackageID:     &packageID,
	})
}

func (h *harness) routingKeys(t *testing.T) []string {
	t.Helper()
	msgs, err := h.outbox.GetUnpublished(context.Background(), 1000)
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	keys := make([]string, 0, len(msgs))
	for _, m := range msgs {
		keys = append(keys, m.RoutingKey)
	}
	return keys
}

func coachPackage() domain.Package {
	return domain.Package{ID: uuid.New(), Name: "Coaching", Role: "Coach", DurationDays: 30, Active: true}
}
