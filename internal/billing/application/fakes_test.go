package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

// store holds subscriptions and ledger rows. Its unit of work snapshots
// state on Begin and restores it on Rollback.
type store struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]*domain.Subscription
	ledger   map[string]domain.LedgerEntry
	snapshot *store

	saveErr  error
	findErr  error
	commits  int
	rollback int
}

func newStore() *store {
	return &store{
		subs:   make(map[uuid.UUID]*domain.Subscription),
		ledger: make(map[string]domain.LedgerEntry),
	}
}

func clone(s *domain.Subscription) *domain.Subscription {
	return domain.RehydrateSubscription(s.ID(), s.UserID(), s.PackageID(), s.StartDate(), s.EndDate(),
		s.Status(), s.Version(), s.CreatedAt(), s.UpdatedAt())
}

// put stores a subscription as if it had been persisted.
func (st *store) put(s *domain.Subscription) *domain.Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.IsNew() {
		s.SetVersion(1)
	}
	s.ClearDomainEvents()
	st.subs[s.ID()] = clone(s)
	return s
}

func (st *store) get(id uuid.UUID) *domain.Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()
	return clone(st.subs[id])
}

func (st *store) forUser(userID uuid.UUID) []*domain.Subscription {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*domain.Subscription
	for _, s := range st.subs {
		if s.UserID() == userID {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate().After(out[j].StartDate()) })
	return out
}

// unitOfWork

type storeUoW struct{ st *store }

func (u storeUoW) Begin(ctx context.Context) (context.Context, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	snap := &store{
		subs:   make(map[uuid.UUID]*domain.Subscription, len(u.st.subs)),
		ledger: make(map[string]domain.LedgerEntry, len(u.st.ledger)),
	}
	for id, s := range u.st.subs {
		snap.subs[id] = clone(s)
	}
	for k, v := range u.st.ledger {
		snap.ledger[k] = v
	}
	u.st.snapshot = snap
	return ctx, nil
}

func (u storeUoW) Commit(ctx context.Context) error {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	u.st.snapshot = nil
	u.st.commits++
	return nil
}

func (u storeUoW) Rollback(ctx context.Context) error {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if u.st.snapshot != nil {
		u.st.subs = u.st.snapshot.subs
		u.st.ledger = u.st.snapshot.ledger
		u.st.snapshot = nil
	}
	u.st.rollback++
	return nil
}

// subscription repository

type storeSubscriptions struct{ st *store }

func (r storeSubscriptions) Save(ctx context.Context, s *domain.Subscription) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.saveErr != nil {
		return r.st.saveErr
	}
	if s.IsNew() {
		s.SetVersion(1)
		r.st.subs[s.ID()] = clone(s)
		return nil
	}
	stored, ok := r.st.subs[s.ID()]
	if !ok || stored.Version() != s.Version() {
		return sharedDomain.ErrConcurrentModification
	}
	s.SetVersion(s.Version() + 1)
	r.st.subs[s.ID()] = clone(s)
	return nil
}

func (r storeSubscriptions) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if r.st.findErr != nil {
		return nil, r.st.findErr
	}
	s, ok := r.st.subs[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return clone(s), nil
}

func (r storeSubscriptions) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Subscription, error) {
	return r.st.forUser(userID), nil
}

func (r storeSubscriptions) FindActiveForUpdate(ctx context.Context, userID, packageID uuid.UUID) (*domain.Subscription, error) {
	var latest *domain.Subscription
	for _, s := range r.st.forUser(userID) {
		if s.PackageID() != packageID || s.Status() != domain.StatusActive {
			continue
		}
		if latest == nil || s.EndDate().After(latest.EndDate()) {
			latest = s
		}
	}
	return latest, nil
}

func (r storeSubscriptions) LockPair(ctx context.Context, userID, packageID uuid.UUID) error {
	return nil
}

func (r storeSubscriptions) ExistsActiveForPackage(ctx context.Context, packageID uuid.UUID) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.subs {
		if s.PackageID() == packageID && s.Status() == domain.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (r storeSubscriptions) ListUsersWithLapsed(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var users []uuid.UUID
	for _, s := range r.st.subs {
		if !s.IsLapsed(now) {
			continue
		}
		if _, ok := seen[s.UserID()]; ok {
			continue
		}
		seen[s.UserID()] = struct{}{}
		users = append(users, s.UserID())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// payment ledger

type storeLedger struct{ st *store }

func (l storeLedger) Claim(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	if _, ok := l.st.ledger[entry.TransactionID]; ok {
		return false, nil
	}
	l.st.ledger[entry.TransactionID] = entry
	return true, nil
}

func (l storeLedger) Complete(ctx context.Context, transactionID string, subscriptionID uuid.UUID, outcome string) error {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	entry, ok := l.st.ledger[transactionID]
	if !ok {
		return errors.New("transaction not claimed")
	}
	entry.SubscriptionID = &subscriptionID
	entry.Outcome = outcome
	l.st.ledger[transactionID] = entry
	return nil
}

func (l storeLedger) Purge(ctx context.Context, before time.Time) (int64, error) {
	l.st.mu.Lock()
	defer l.st.mu.Unlock()
	var n int64
	for k, v := range l.st.ledger {
		if v.ProcessedAt.Before(before) {
			delete(l.st.ledger, k)
			n++
		}
	}
	return n, nil
}

// catalog

type fakeCatalog struct {
	packages map[uuid.UUID]domain.Package
	err      error
}

func newCatalog(pkgs ...domain.Package) *fakeCatalog {
	c := &fakeCatalog{packages: make(map[uuid.UUID]domain.Package)}
	for _, p := range pkgs {
		c.packages[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) GetPackage(ctx context.Context, id uuid.UUID) (domain.Package, error) {
	if c.err != nil {
		return domain.Package{}, c.err
	}
	p, ok := c.packages[id]
	if !ok {
		return domain.Package{}, domain.ErrPackageNotFound
	}
	return p, nil
}

func (c *fakeCatalog) ListPackages(ctx context.Context) ([]domain.Package, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]domain.Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	return out, nil
}

// identity

type fakeIdentity struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*domain.UserRef
	roles   map[uuid.UUID]map[string]struct{}
	failAdd error
	failGet error
	adds    int
	removes int
}

func newIdentity() *fakeIdentity {
	return &fakeIdentity{
		users: make(map[uuid.UUID]*domain.UserRef),
		roles: make(map[uuid.UUID]map[string]struct{}),
	}
}

func (f *fakeIdentity) addUser(roles ...string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = &domain.UserRef{ID: id, Email: id.String() + "@example.com"}
	f.roles[id] = make(map[string]struct{})
	for _, r := range roles {
		f.roles[id][r] = struct{}{}
	}
	return id
}

func (f *fakeIdentity) rolesOf(userID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for r := range f.roles[userID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (f *fakeIdentity) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	return f.rolesOf(userID), nil
}

func (f *fakeIdentity) AddRole(ctx context.Context, userID uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd != nil {
		return f.failAdd
	}
	if _, ok := f.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	f.roles[userID][role] = struct{}{}
	f.adds++
	return nil
}

func (f *fakeIdentity) RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range roles {
		delete(f.roles[userID], r)
	}
	f.removes++
	return nil
}

func (f *fakeIdentity) FindUser(ctx context.Context, userID uuid.UUID) (*domain.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID], nil
}

func (f *fakeIdentity) FindUserByEmail(ctx context.Context, email string) (*domain.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}
