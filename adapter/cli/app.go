package cli

import (
	"errors"

	internalApp "github.com/felixgeelhaar/keystone/internal/app"
	billingApp "github.com/felixgeelhaar/keystone/internal/billing/application"
	catalogCommands "github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
	catalogQueries "github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
	identityApp "github.com/felixgeelhaar/keystone/internal/identity/application"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// App is the slice of the container that commands use.
type App struct {
	DB     database.Connection
	Health *observability.HealthRegistry

	// Catalog Command Handlers
	CreatePackageHandler *catalogCommands.CreatePackageHandler
	UpdatePackageHandler *catalogCommands.UpdatePackageHandler
	DeletePackageHandler *catalogCommands.DeletePackageHandler
	PromotionHandler     *catalogCommands.PromotionHandler

	// Catalog Query Handlers
	GetPackageHandler     *catalogQueries.GetPackageHandler
	ListPackagesHandler   *catalogQueries.ListPackagesHandler
	ListPromotionsHandler *catalogQueries.ListPromotionsHandler

	// Entitlement engine
	SubscriptionService *billingApp.SubscriptionService
	EntitlementService  *billingApp.EntitlementService
	Sweeper             *billingApp.Sweeper
	Maintenance         *billingApp.Maintenance
	PaymentBus          *eventbus.InProcessEventBus

	// Identity
	AuthService *identityApp.AuthService
}

func NewApp(c *internalApp.Container) *App {
	return &App{
		DB:                    c.DBConn,
		Health:                c.Health,
		CreatePackageHandler:  c.CreatePackageHandler,
		UpdatePackageHandler:  c.UpdatePackageHandler,
		DeletePackageHandler:  c.DeletePackageHandler,
		PromotionHandler:      c.PromotionHandler,
		GetPackageHandler:     c.GetPackageHandler,
		ListPackagesHandler:   c.ListPackagesHandler,
		ListPromotionsHandler: c.ListPromotionsHandler,
		SubscriptionService:   c.SubscriptionService,
		EntitlementService:    c.EntitlementService,
		Sweeper:               c.Sweeper,
		Maintenance:           c.Maintenance,
		PaymentBus:            c.InProcessEventBus,
		AuthService:           c.AuthService,
	}
}

// ErrNoApp is returned by commands that need the container when none is set.
var ErrNoApp = errors.New("command requires database connection")

// app is nil when the container failed to start; commands that need it
// report that instead of running.
var app *App

func SetApp(a *App) { app = a }
func GetApp() *App  { return app }
