package api

import (
	internalApp "github.com/felixgeelhaar/keystone/internal/app"
)

// NewHandlers builds the route handlers from the container's services.
func NewHandlers(c *internalApp.Container) Handlers {
	h := Handlers{
		Auth: NewAuthHandler(c.AuthService, c.Logger),
		Catalog: NewCatalogHandler(CatalogHandlerConfig{
			CreatePackage:  c.CreatePackageHandler,
			UpdatePackage:  c.UpdatePackageHandler,
			DeletePackage:  c.DeletePackageHandler,
			Promotions:     c.PromotionHandler,
			GetPackage:     c.GetPackageHandler,
			ListPackages:   c.ListPackagesHandler,
			ListPromotions: c.ListPromotionsHandler,
			Logger:         c.Logger,
		}),
		Billing: NewBillingHandler(c.SubscriptionService, c.EntitlementService, c.Logger),
		Tokens:  c.JWTIssuer,
	}
	if c.Health != nil {
		h.Health = c.Health.Handler()
	}
	if c.Metrics != nil {
		h.Metrics = c.Metrics.Handler()
	}
	return h
}
