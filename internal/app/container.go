package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	billingApp "github.com/felixgeelhaar/keystone/internal/billing/application"
	"github.com/felixgeelhaar/keystone/internal/billing/application/subscribers"
	billingDomain "github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/billing/infrastructure/acl"
	catalogCommands "github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
	catalogQueries "github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
	catalogDomain "github.com/felixgeelhaar/keystone/internal/catalog/domain"
	"github.com/felixgeelhaar/keystone/internal/catalog/infrastructure/cache"
	identityApp "github.com/felixgeelhaar/keystone/internal/identity/application"
	identityDomain "github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/identity/infrastructure/auth"
	"github.com/felixgeelhaar/keystone/internal/identity/infrastructure/notify"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/config"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis, nil when not configured
	RedisClient *redis.Client

	UnitOfWork sharedApplication.UnitOfWork

	// Repositories
	SubscriptionRepo billingDomain.SubscriptionRepository
	PaymentLedger    billingDomain.PaymentLedger
	PackageRepo      catalogDomain.PackageRepository
	PromotionRepo    catalogDomain.PromotionRepository
	UserRepo         identityDomain.UserRepository
	RoleRepo         identityDomain.RoleRepository
	OutboxRepo       outbox.Repository

	// Publishing
	EventPublisher  eventbus.Publisher
	OutboxProcessor *outbox.Processor

	// Identity
	Identity    *identityApp.BreakerProvider
	AuthService *identityApp.AuthService
	JWTIssuer   *auth.JWTIssuer
	TokenCodec  *crypto.TokenCodec

	// Entitlement engine
	Synchronizer        *billingApp.Synchronizer
	Sweeper             *billingApp.Sweeper
	PaymentProcessor    *billingApp.PaymentProcessor
	EntitlementService  *billingApp.EntitlementService
	SubscriptionService *billingApp.SubscriptionService
	Maintenance         *billingApp.Maintenance

	// Payment events
	PaymentSubscriber *subscribers.PaymentSubscriber
	InProcessEventBus *eventbus.InProcessEventBus

	// Catalog handlers
	CreatePackageHandler  *catalogCommands.CreatePackageHandler
	UpdatePackageHandler  *catalogCommands.UpdatePackageHandler
	DeletePackageHandler  *catalogCommands.DeletePackageHandler
	PromotionHandler      *catalogCommands.PromotionHandler
	GetPackageHandler     *catalogQueries.GetPackageHandler
	ListPackagesHandler   *catalogQueries.ListPackagesHandler
	ListPromotionsHandler *catalogQueries.ListPromotionsHandler
}

// NewContainer connects the backing services and wires all dependencies.
// Local mode migrates the SQLite database and publishes domain events
// nowhere.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(prometheus.NewRegistry()),
		Health:  observability.NewHealthRegistry(),
	}

	if err := c.connectDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.connectRedis(ctx); err != nil {
		_ = c.DBConn.Close()
		return nil, err
	}
	if err := c.connectPublisher(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.wire(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) connectDatabase(ctx context.Context) error {
	driver := database.DriverPostgres
	if c.Config.IsSQLite() {
		driver = database.DriverSQLite
		if err := database.EnsureDirectory(c.Config.SQLitePath); err != nil {
			return err
		}
	}

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     driver,
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.Logger.Info("connected to database", "driver", c.DBDriver)

	if c.Config.IsLocalMode() {
		if err := migrations.Up(ctx, conn); err != nil {
			_ = conn.Close()
			return fmt.Errorf("failed to migrate local database: %w", err)
		}
	}

	c.Health.Register("database", conn.Ping, true)
	return nil
}

// connectRedis is optional in development: without Redis the catalog cache
// is kept in memory.
func (c *Container) connectRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}
	client, err := cache.NewRedisClient(ctx, c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, catalog cache will use memory", "error", err)
		return nil
	}
	c.RedisClient = client
	c.Health.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, false)
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) connectPublisher() error {
	if c.Config.IsLocalMode() {
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}

	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Config.DomainEventsExchange, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}
	c.EventPublisher = publisher
	return nil
}

func (c *Container) wire() error {
	cfg := c.Config
	logger := c.Logger
	metrics := c.Metrics

	factory := NewRepositoryFactory(c.DBConn)
	var err error
	if c.SubscriptionRepo, err = factory.SubscriptionRepository(); err != nil {
		return err
	}
	if c.PaymentLedger, err = factory.PaymentLedger(); err != nil {
		return err
	}
	packages, err := factory.PackageRepository()
	if err != nil {
		return err
	}
	if c.PromotionRepo, err = factory.PromotionRepository(); err != nil {
		return err
	}
	if c.UserRepo, err = factory.UserRepository(); err != nil {
		return err
	}
	if c.RoleRepo, err = factory.RoleRepository(); err != nil {
		return err
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return err
	}
	c.UnitOfWork = database.NewUnitOfWork(c.DBConn)

	var store cache.Store = cache.NewInMemoryStore()
	if c.RedisClient != nil {
		store = cache.NewRedisStore(c.RedisClient, "keystone:catalog:")
	}
	c.PackageRepo = cache.NewCachedPackageRepository(packages, store, cfg.CatalogCacheTTL, logger, metrics)

	// Outbox
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxRetries:   cfg.OutboxMaxRetries,
		Metrics:      metrics,
	}, logger)

	// Identity
	c.Identity = identityApp.NewBreakerProvider(
		identityApp.NewProvider(c.UserRepo, c.RoleRepo),
		identityApp.BreakerConfig{
			MaxFailures: cfg.IdentityBreakerMaxFailures,
			Timeout:     cfg.IdentityBreakerTimeout,
			Interval:    cfg.IdentityBreakerInterval,
		},
		logger,
		metrics,
	)

	// Entitlement engine
	catalog := acl.NewCatalogAdapter(c.PackageRepo)
	upserter := billingApp.NewUpserter(c.SubscriptionRepo)
	c.Synchronizer = billingApp.NewSynchronizer(c.SubscriptionRepo, catalog, c.Identity, logger, metrics)
	c.Sweeper = billingApp.NewSweeper(c.UnitOfWork, c.SubscriptionRepo, c.OutboxRepo, c.Synchronizer, logger, metrics)
	c.PaymentProcessor = billingApp.NewPaymentProcessor(c.UnitOfWork, c.PaymentLedger, catalog, c.Identity, upserter, c.OutboxRepo, c.Synchronizer, logger, metrics)
	c.EntitlementService = billingApp.NewEntitlementService(c.Sweeper, c.Identity, logger)
	c.SubscriptionService = billingApp.NewSubscriptionService(c.UnitOfWork, c.SubscriptionRepo, catalog, c.Identity, upserter, c.OutboxRepo, c.Synchronizer, logger, metrics)
	c.Maintenance = billingApp.NewMaintenance(c.Sweeper, c.PaymentLedger, c.OutboxRepo, billingApp.MaintenanceConfig{
		SweepBatchSize:  cfg.SweepBatchSize,
		LedgerRetention: cfg.LedgerRetention,
		OutboxRetention: cfg.OutboxRetention,
	}, logger, metrics)

	// Payment events
	c.PaymentSubscriber = subscribers.NewPaymentSubscriber(c.PaymentProcessor, logger)
	c.InProcessEventBus = eventbus.NewInProcessEventBus(PaymentRetryPolicy(cfg), logger)
	c.InProcessEventBus.RegisterConsumer(c.PaymentSubscriber)

	// Catalog
	c.CreatePackageHandler = catalogCommands.NewCreatePackageHandler(c.PackageRepo, c.UnitOfWork)
	c.UpdatePackageHandler = catalogCommands.NewUpdatePackageHandler(c.PackageRepo, c.SubscriptionRepo, c.UnitOfWork)
	c.DeletePackageHandler = catalogCommands.NewDeletePackageHandler(c.PackageRepo, c.SubscriptionRepo, c.UnitOfWork)
	c.PromotionHandler = catalogCommands.NewPromotionHandler(c.PackageRepo, c.PromotionRepo, c.UnitOfWork)
	c.GetPackageHandler = catalogQueries.NewGetPackageHandler(c.PackageRepo, c.PromotionRepo)
	c.ListPackagesHandler = catalogQueries.NewListPackagesHandler(c.PackageRepo)
	c.ListPromotionsHandler = catalogQueries.NewListPromotionsHandler(c.PackageRepo, c.PromotionRepo)

	// Auth
	if c.TokenCodec, err = crypto.NewTokenCodec(cfg.TokenSecret); err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	if c.JWTIssuer, err = auth.NewJWTIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL); err != nil {
		return fmt.Errorf("jwt issuer: %w", err)
	}
	c.AuthService = identityApp.NewAuthService(
		c.UnitOfWork,
		c.UserRepo,
		c.RoleRepo,
		c.OutboxRepo,
		c.EntitlementService,
		auth.NewBcryptHasher(0),
		c.JWTIssuer,
		c.TokenCodec,
		notify.NewLogNotifier(logger),
		identityApp.AuthConfig{ResetTokenTTL: cfg.ResetTokenTTL},
		logger,
		metrics,
	)
	return nil
}

// NewPaymentConsumer connects a RabbitMQ consumer for payment events and
// registers the payment subscriber on it.
func (c *Container) NewPaymentConsumer() (*eventbus.RabbitMQConsumer, error) {
	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:         c.Config.RabbitMQURL,
		QueueName:   c.Config.PaymentQueue,
		Exchange:    c.Config.PaymentExchange,
		RetryPolicy: PaymentRetryPolicy(c.Config),
		Logger:      c.Logger,
		Metrics:     c.Metrics,
	}, eventbus.NewConsumerRegistry(c.Logger))
	if err != nil {
		return nil, err
	}
	consumer.RegisterConsumer(c.PaymentSubscriber)
	return consumer, nil
}

// PaymentRetryPolicy maps the payment retry settings onto a consumer policy.
func PaymentRetryPolicy(cfg *config.Config) eventbus.RetryPolicy {
	backoff := eventbus.BackoffFixed
	if cfg.PaymentRetryBackoff == string(eventbus.BackoffExponential) {
		backoff = eventbus.BackoffExponential
	}
	return eventbus.RetryPolicy{
		Limit:          cfg.PaymentRetryLimit,
		Interval:       cfg.PaymentRetryInterval,
		Backoff:        backoff,
		MaxInterval:    cfg.PaymentRetryMax,
		AttemptTimeout: cfg.PaymentHandlerTimeout,
	}
}

// Close releases all connections.
func (c *Container) Close() error {
	var err error
	if c.OutboxProcessor != nil && c.OutboxProcessor.IsRunning() {
		c.OutboxProcessor.Stop()
	}
	if c.EventPublisher != nil {
		err = multierr.Append(err, c.EventPublisher.Close())
	}
	if c.RedisClient != nil {
		err = multierr.Append(err, c.RedisClient.Close())
	}
	if c.DBConn != nil {
		err = multierr.Append(err, c.DBConn.Close())
	}
	return err
}
