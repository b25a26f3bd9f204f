package catalog

import (
	"bulksync/core/bulk"
	"bulksync/core/bulk/op"
	"bulksync/core/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Feature exposes catalog syncs over HTTP.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates the catalog feature.
func NewFeature(client storage.Client, bucket, prefix string, executor *bulk.Executor, db *gorm.DB, options op.Options, logger *zap.Logger) *Feature {
	svc := NewService(NewSource(client, bucket, prefix), executor, db, options, logger)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "catalog"
}

// IsEnabled reports whether a database is available to sync into.
func (f *Feature) IsEnabled() bool {
	return f.service.db != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service returns the feature's service for CLI use.
func (f *Feature) Service() *Service {
	return f.service
}
