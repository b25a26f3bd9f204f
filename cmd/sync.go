package cmd

import (
	"context"
	"fmt"

	"bulksync/core/storage"
	"bulksync/feature/catalog"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncOperation     string
	syncObject        string
	syncDeleteMissing bool
	syncKeep          []string
	syncDryRun        bool
)

// syncCmd is the parent command for all sync operations.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync exports from object storage into the database",
}

// catalogSyncCmd applies a catalog export.
var catalogSyncCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Apply a catalog export to catalog_items",
	Long: `Apply a catalog export from object storage to the catalog_items table.

A dry run always comes first and its report is printed. Upserts are then applied
directly; a full sync deletes rows and asks for confirmation.

Examples:
  # Upsert the newest export
  sync catalog

  # Report only
  sync catalog --dry-run

  # Full sync keeping the xmas category, non-interactive
  sync catalog --delete-missing --keep xmas --yes`,
	RunE: runCatalogSync,
}

func init() {
	catalogSyncCmd.Flags().StringVar(&syncOperation, "operation", string(catalog.OperationUpsert), "Operation to run (upsert, sync)")
	catalogSyncCmd.Flags().StringVar(&syncObject, "object", "", "Export key (default: newest export)")
	catalogSyncCmd.Flags().BoolVar(&syncDeleteMissing, "delete-missing", false, "Delete rows missing from the export (same as --operation sync)")
	catalogSyncCmd.Flags().StringSliceVar(&syncKeep, "keep", nil, "Categories never deleted by a full sync")
	catalogSyncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Report only, no changes")

	syncCmd.AddCommand(catalogSyncCmd)
	RootCmd.AddCommand(syncCmd)
}

func runCatalogSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.logger.Sync()

	client, err := storage.NewClient(rt.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := storage.EnsureBucket(ctx, client, rt.cfg.Storage.Bucket); err != nil {
		return err
	}
	feature := catalog.NewFeature(client, rt.cfg.Storage.Bucket, rt.cfg.Storage.ExportPrefix(), rt.executor, rt.db, rt.cfg.Bulk.Options(), rt.logger)
	svc := feature.Service()

	req := catalog.SyncRequest{
		Object:         syncObject,
		Operation:      catalog.Operation(syncOperation),
		KeepCategories: syncKeep,
		DryRun:         true,
	}
	if syncDeleteMissing {
		req.Operation = catalog.OperationSync
	}

	// Step 1: Plan (always runs)
	plan, err := svc.Sync(ctx, req)
	if err != nil {
		return err
	}
	printSyncReport(rt.logger, plan)

	if syncDryRun {
		rt.logger.Info("Dry-run mode: No changes were made.")
		return nil
	}
	if plan.Inserted+plan.Updated+plan.Deleted == 0 {
		rt.logger.Info("No changes required.")
		return nil
	}

	// Step 2: Confirm deletions
	if plan.Deleted > 0 && !confirmDestructiveAction(fmt.Sprintf("%d catalog rows will be deleted.", plan.Deleted)) {
		rt.logger.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	// Step 3: Apply the same export
	req.Object = plan.Object
	req.DryRun = false
	report, err := svc.Sync(ctx, req)
	if err != nil {
		return err
	}
	printSyncReport(rt.logger, report)
	return nil
}

func printSyncReport(l *zap.Logger, r *catalog.Report) {
	l.Info("Catalog sync report",
		zap.String("object", r.Object),
		zap.String("operation", string(r.Operation)),
		zap.Bool("dry_run", r.DryRun),
		zap.Int("items", r.Items),
		zap.Int64("inserted", r.Inserted),
		zap.Int64("updated", r.Updated),
		zap.Int64("deleted", r.Deleted),
		zap.Int("unchanged", r.Unchanged),
		zap.Int64("duration_ms", r.DurationMS),
	)
}
