package app

import (
	"fmt"

	billingDomain "github.com/felixgeelhaar/keystone/internal/billing/domain"
	billingPersistence "github.com/felixgeelhaar/keystone/internal/billing/infrastructure/persistence"
	catalogDomain "github.com/felixgeelhaar/keystone/internal/catalog/domain"
	catalogPersistence "github.com/felixgeelhaar/keystone/internal/catalog/infrastructure/persistence"
	identityDomain "github.com/felixgeelhaar/keystone/internal/identity/domain"
	identityPersistence "github.com/felixgeelhaar/keystone/internal/identity/infrastructure/persistence"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
)

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
	}
}

// forDriver picks the constructor matching the connection's driver.
func forDriver[T any](f *RepositoryFactory, postgres, sqlite func(database.Connection) T) (T, error) {
	switch f.driver {
	case database.DriverPostgres:
		return postgres(f.conn), nil
	case database.DriverSQLite:
		return sqlite(f.conn), nil
	default:
		var zero T
		return zero, fmt.Errorf("unsupported driver: %s", f.driver)
	}
}

// SubscriptionRepository creates a subscription repository for the configured driver.
func (f *RepositoryFactory) SubscriptionRepository() (billingDomain.SubscriptionRepository, error) {
	return forDriver(f,
		func(c database.Connection) billingDomain.SubscriptionRepository {
			return billingPersistence.NewPostgresSubscriptionRepository(c)
		},
		func(c database.Connection) billingDomain.SubscriptionRepository {
			return billingPersistence.NewSQLiteSubscriptionRepository(c)
		},
	)
}

// PaymentLedger creates the processed-payment ledger for the configured driver.
func (f *RepositoryFactory) PaymentLedger() (billingDomain.PaymentLedger, error) {
	return forDriver(f,
		func(c database.Connection) billingDomain.PaymentLedger {
			return billingPersistence.NewPostgresPaymentLedger(c)
		},
		func(c database.Connection) billingDomain.PaymentLedger {
			return billingPersistence.NewSQLitePaymentLedger(c)
		},
	)
}

// PackageRepository creates a package repository for the configured driver.
func (f *RepositoryFactory) PackageRepository() (catalogDomain.PackageRepository, error) {
	return forDriver(f,
		func(c database.Connection) catalogDomain.PackageRepository {
			return catalogPersistence.NewPostgresPackageRepository(c)
		},
		func(c database.Connection) catalogDomain.PackageRepository {
			return catalogPersistence.NewSQLitePackageRepository(c)
		},
	)
}

// PromotionRepository creates a promotion repository for the configured driver.
func (f *RepositoryFactory) PromotionRepository() (catalogDomain.PromotionRepository, error) {
	return forDriver(f,
		func(c database.Connection) catalogDomain.PromotionRepository {
			return catalogPersistence.NewPostgresPromotionRepository(c)
		},
		func(c database.Connection) catalogDomain.PromotionRepository {
			return catalogPersistence.NewSQLitePromotionRepository(c)
		},
	)
}

// UserRepository creates a user repository for the configured driver.
func (f *RepositoryFactory) UserRepository() (identityDomain.UserRepository, error) {
	return forDriver(f,
		func(c database.Connection) identityDomain.UserRepository {
			return identityPersistence.NewPostgresUserRepository(c)
		},
		func(c database.Connection) identityDomain.UserRepository {
			return identityPersistence.NewSQLiteUserRepository(c)
		},
	)
}

// RoleRepository creates a role assignment repository for the configured driver.
func (f *RepositoryFactory) RoleRepository() (identityDomain.RoleRepository, error) {
	return forDriver(f,
		func(c database.Connection) identityDomain.RoleRepository {
			return identityPersistence.NewPostgresRoleRepository(c)
		},
		func(c database.Connection) identityDomain.RoleRepository {
			return identityPersistence.NewSQLiteRoleRepository(c)
		},
	)
}

// OutboxRepository creates an outbox repository for the configured driver.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	return forDriver(f,
		func(c database.Connection) outbox.Repository { return outbox.NewPostgresRepository(c) },
		func(c database.Connection) outbox.Repository { return outbox.NewSQLiteRepository(c) },
	)
}
