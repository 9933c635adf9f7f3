package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	catalogCommands "github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
	catalogQueries "github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
)

// CatalogHandler serves the package catalog.
type CatalogHandler struct {
	createPackage  *catalogCommands.CreatePackageHandler
	updatePackage  *catalogCommands.UpdatePackageHandler
	deletePackage  *catalogCommands.DeletePackageHandler
	promotions     *catalogCommands.PromotionHandler
	getPackage     *catalogQueries.GetPackageHandler
	listPackages   *catalogQueries.ListPackagesHandler
	listPromotions *catalogQueries.ListPromotionsHandler
	logger         *slog.Logger
}

// CatalogHandlerConfig holds the dependencies of a CatalogHandler.
type CatalogHandlerConfig struct {
	CreatePackage  *catalogCommands.CreatePackageHandler
	UpdatePackage  *catalogCommands.UpdatePackageHandler
	DeletePackage  *catalogCommands.DeletePackageHandler
	Promotions     *catalogCommands.PromotionHandler
	GetPackage     *catalogQueries.GetPackageHandler
	ListPackages   *catalogQueries.ListPackagesHandler
	ListPromotions *catalogQueries.ListPromotionsHandler
	Logger         *slog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(cfg CatalogHandlerConfig) *CatalogHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{
		createPackage:  cfg.CreatePackage,
		updatePackage:  cfg.UpdatePackage,
		deletePackage:  cfg.DeletePackage,
		promotions:     cfg.Promotions,
		getPackage:     cfg.GetPackage,
		listPackages:   cfg.ListPackages,
		listPromotions: cfg.ListPromotions,
		logger:         logger,
	}
}

// ListPackages handles GET /api/v1/packages.
func (h *CatalogHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	onlyActive, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	packages, err := h.listPackages.Handle(r.Context(), catalogQueries.ListPackagesQuery{OnlyActive: onlyActive})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if packages == nil {
		packages = []catalogQueries.PackageDTO{}
	}
	writeJSON(w, http.StatusOK, packages)
}

// GetPackage handles GET /api/v1/packages/{packageID}.
func (h *CatalogHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "packageID")
	if !ok {
		return
	}
	pkg, err := h.getPackage.Handle(r.Context(), catalogQueries.GetPackageQuery{PackageID: id})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// CreatePackage handles POST /api/v1/packages.
func (h *CatalogHandler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var cmd catalogCommands.CreatePackageCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	result, err := h.createPackage.Handle(r.Context(), cmd)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": result.PackageID})
}

// UpdatePackage handles PUT /api/v1/packages/{packageID}.
func (h *CatalogHandler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "packageID")
	if !ok {
		return
	}
	var cmd catalogCommands.UpdatePackageCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	cmd.PackageID = id
	if err := h.updatePackage.Handle(r.Context(), cmd); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePackage handles DELETE /api/v1/packages/{packageID}.
func (h *CatalogHandler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "packageID")
	if !ok {
		return
	}
	if err := h.deletePackage.Handle(r.Context(), catalogCommands.DeletePackageCommand{PackageID: id}); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPromotions handles GET /api/v1/packages/{packageID}/promotions.
func (h *CatalogHandler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "packageID")
	if !ok {
		return
	}
	onlyActive, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	promotions, err := h.listPromotions.Handle(r.Context(), catalogQueries.ListPromotionsQuery{
		PackageID:  id,
		ActiveOnly: onlyActive,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if promotions == nil {
		promotions = []catalogQueries.PromotionDTO{}
	}
	writeJSON(w, http.StatusOK, promotions)
}

// CreatePromotion handles POST /api/v1/packages/{packageID}/promotions.
func (h *CatalogHandler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "packageID")
	if !ok {
		return
	}
	var fields catalogCommands.PromotionFields
	if !decodeJSON(w, r, &fields) {
		return
	}
	result, err := h.promotions.Create(r.Context(), catalogCommands.CreatePromotionCommand{
		PackageID:       id,
		PromotionFields: fields,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": result.PromotionID})
}

// UpdatePromotion handles PUT /api/v1/promotions/{promotionID}.
func (h *CatalogHandler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "promotionID")
	if !ok {
		return
	}
	var fields catalogCommands.PromotionFields
	if !decodeJSON(w, r, &fields) {
		return
	}
	err := h.promotions.Update(r.Context(), catalogCommands.UpdatePromotionCommand{
		PromotionID:     id,
		PromotionFields: fields,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePromotion handles DELETE /api/v1/promotions/{promotionID}.
func (h *CatalogHandler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "promotionID")
	if !ok {
		return
	}
	if err := h.promotions.Delete(r.Context(), catalogCommands.DeletePromotionCommand{PromotionID: id}); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
