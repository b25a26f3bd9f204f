package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bulksync/core/bulk/metrics"
	"bulksync/core/loader"
	"bulksync/core/logger"
	"bulksync/core/middleware/auth"
	"bulksync/core/middleware/rayid"
	"bulksync/core/storage"
	"bulksync/feature/catalog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the HTTP server, the metrics endpoint and all enabled features.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Configuration, logger, database
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()
	zap.ReplaceGlobals(rt.logger)
	cfg, logg := rt.cfg, rt.logger

	// 2. Storage
	store, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return err
	}
	if err := storage.EnsureBucket(context.Background(), store, cfg.Storage.Bucket); err != nil {
		logg.Warn("Catalog bucket is not reachable", zap.Error(err))
	}

	// 3. Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimit(),
	})

	// 4. Features
	mgr := loader.NewManager()
	mgr.Register(catalog.NewFeature(store, cfg.Storage.Bucket, cfg.Storage.ExportPrefix(), rt.executor, rt.db, cfg.Bulk.Options(), logg))

	// RayID must be first to trace everything
	app.Use(rayid.New())
	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Info("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	// Metrics stay reachable for scrapers without the API key.
	var skip []string
	if p, ok := rt.reporter.(*metrics.Prometheus); ok {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(p.Handler()))
		skip = append(skip, cfg.Metrics.Path)
	}
	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Skip: skip}))
	if !cfg.Server.Protected() {
		logg.Warn("API key is empty, endpoints are unprotected")
	}

	loaded, err := mgr.LoadAll(app)
	if err != nil {
		return err
	}
	logg.Info("Features loaded", zap.Strings("features", loaded))

	// 5. Start server
	errCh := make(chan error, 1)
	go func() {
		logg.Info("Starting server", zap.String("port", cfg.Server.Port))
		errCh <- app.Listen(cfg.Server.Address())
	}()

	// 6. Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-c:
	}
	logg.Info("Shutting down server...")
	return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout())
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
