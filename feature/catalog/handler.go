package catalog

import (
	"errors"

	"bulksync/core/bulk/op"
	"bulksync/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for catalog syncs.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the catalog routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/catalog")
	group.Post("/sync", h.HandleSync)
	group.Post("/lookup", h.HandleLookup)
	group.Get("/exports/latest", h.HandleLatestExport)
}

// HandleSync applies a catalog export.
//
// POST /catalog/sync with a SyncRequest body. An empty body upserts the newest export.
func (h *Handler) HandleSync(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req SyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	report, err := h.service.Sync(c.UserContext(), req)
	if err != nil {
		l.Error("Catalog sync failed", zap.Error(err))
		return h.fail(c, err)
	}
	return c.JSON(report)
}

type lookupRequest struct {
	SKUs []string `json:"skus"`
}

// HandleLookup returns the stored items of the requested SKUs.
func (h *Handler) HandleLookup(c *fiber.Ctx) error {
	var req lookupRequest
	if err := c.BodyParser(&req); err != nil || len(req.SKUs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "skus are required"})
	}

	items, err := h.service.Lookup(c.UserContext(), req.SKUs)
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Catalog lookup failed", zap.Error(err))
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"items": items, "missing": len(req.SKUs) - len(items)})
}

// HandleLatestExport returns the key of the newest export.
func (h *Handler) HandleLatestExport(c *fiber.Ctx) error {
	key, err := h.service.LatestExport(c.UserContext())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"object": key})
}

// fail maps service errors to HTTP statuses.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	body := fiber.Map{"error": err.Error()}

	var bulkErr *op.Error
	switch {
	case errors.Is(err, ErrNoExport):
		status = fiber.StatusNotFound
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrInvalidExport):
		status = fiber.StatusBadRequest
	case errors.Is(err, ErrNoDatabase):
		status = fiber.StatusServiceUnavailable
	case errors.As(err, &bulkErr):
		status = fiber.StatusUnprocessableEntity
		body["reason"] = string(bulkErr.Reason)
		if len(bulkErr.Keys) > 0 {
			body["keys"] = bulkErr.Keys
		}
	}
	return c.Status(status).JSON(body)
}
