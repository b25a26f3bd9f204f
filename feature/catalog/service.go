package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bulksync/core/bulk"
	"bulksync/core/bulk/op"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoDatabase is returned when the service runs without a connection.
	ErrNoDatabase = errors.New("catalog database is not configured")
	// ErrInvalidOperation is returned for unknown sync operations.
	ErrInvalidOperation = errors.New("invalid catalog operation")
)

// Service applies catalog exports to the catalog_items table.
type Service struct {
	source   *Source
	executor *bulk.Executor
	db       *gorm.DB
	options  op.Options
	logger   *zap.Logger
}

// NewService creates a new catalog service. options are the baseline bulk options.
func NewService(source *Source, executor *bulk.Executor, db *gorm.DB, options op.Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:   source,
		executor: executor,
		db:       db,
		options:  options,
		logger:   logger,
	}
}

// Sync loads an export and applies it.
func (s *Service) Sync(ctx context.Context, req SyncRequest) (*Report, error) {
	started := time.Now()
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	switch req.Operation {
	case "":
		req.Operation = OperationUpsert
	case OperationUpsert, OperationSync:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, req.Operation)
	}

	// 1. Resolve the export
	key := req.Object
	if key == "" {
		latest, err := s.source.Latest(ctx)
		if err != nil {
			return nil, err
		}
		key = latest
	}
	exp, err := s.source.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	report := &Report{Object: key, Operation: req.Operation, DryRun: req.DryRun, Items: len(exp.Items)}
	l := s.logger.With(zap.String("object", key), zap.String("operation", string(req.Operation)))
	l.Info("Applying catalog export", zap.Int("items", len(exp.Items)), zap.Bool("dry_run", req.DryRun))

	// 2. Plan or apply
	err = s.inScope(ctx, func(db *gorm.DB) error {
		if req.DryRun {
			return s.plan(ctx, db, exp.Items, req, report)
		}
		return s.apply(ctx, db, exp.Items, req, report)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync catalog export %s: %w", key, err)
	}
	report.DurationMS = time.Since(started).Milliseconds()

	// 3. Keep a record next to the export
	if !req.DryRun {
		if err := s.source.SaveReport(ctx, report); err != nil {
			l.Warn("Failed to store sync report", zap.Error(err))
		}
	}

	l.Info("Catalog export applied",
		zap.Int64("inserted", report.Inserted),
		zap.Int64("updated", report.Updated),
		zap.Int64("deleted", report.Deleted),
		zap.Int("unchanged", report.Unchanged))
	return report, nil
}

// inScope runs fn inside a transaction when staging lives in session temp tables.
func (s *Service) inScope(ctx context.Context, fn func(db *gorm.DB) error) error {
	if s.options.UseTempDB {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	return fn(s.db)
}

func (s *Service) apply(ctx context.Context, db *gorm.DB, items []*Item, req SyncRequest, report *Report) error {
	opts := s.options
	opts.UpdateByProperties = []string{"SKU"}
	opts.CalculateStats = true

	var (
		res *op.Result
		err error
	)
	if req.Operation == OperationSync {
		opts.SynchronizeFilter, opts.SynchronizeFilterArgs = syncFilter(req.KeepCategories)
		res, err = bulk.InsertOrUpdateOrDelete(ctx, s.executor, db, items, opts)
	} else {
		res, err = bulk.InsertOrUpdate(ctx, s.executor, db, items, opts)
	}
	if err != nil {
		return err
	}
	if res.Stats != nil {
		report.Inserted = res.Stats.Inserted
		report.Updated = res.Stats.Updated
		report.Deleted = res.Stats.Deleted
	}
	report.Unchanged = max(len(items)-int(report.Inserted+report.Updated), 0)
	return nil
}

// plan reads the current rows of the export's SKUs and counts what a sync would change.
func (s *Service) plan(ctx context.Context, db *gorm.DB, items []*Item, req SyncRequest, report *Report) error {
	probes := make([]*Item, len(items))
	skus := make([]string, len(items))
	for i, it := range items {
		probes[i] = &Item{SKU: it.SKU}
		skus[i] = it.SKU
	}

	opts := s.options
	opts.UpdateByProperties = []string{"SKU"}
	opts.ReplaceReadEntities = false
	found, _, err := bulk.Read(ctx, s.executor, db, probes, opts)
	if err != nil {
		return err
	}
	for i, f := range found {
		switch {
		case f.SKU == "":
			report.Inserted++
		case !sameContent(f, items[i]):
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	if req.Operation == OperationSync {
		q := db.WithContext(ctx).Model(&Item{}).Where("keep = ?", false)
		if len(req.KeepCategories) > 0 {
			q = q.Where("category NOT IN ?", req.KeepCategories)
		}
		if len(skus) > 0 {
			q = q.Where("sku NOT IN ?", skus)
		}
		if err := q.Count(&report.Deleted).Error; err != nil {
			return fmt.Errorf("failed to count deletions: %w", err)
		}
	}
	return nil
}

// Lookup returns the stored items for the given SKUs. Unknown SKUs are left out.
func (s *Service) Lookup(ctx context.Context, skus []string) ([]*Item, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	probes := make([]*Item, len(skus))
	for i, sku := range skus {
		probes[i] = &Item{SKU: sku}
	}
	opts := s.options
	opts.UpdateByProperties = []string{"SKU"}
	opts.ReplaceReadEntities = true

	var found []*Item
	err := s.inScope(ctx, func(db *gorm.DB) error {
		var err error
		found, _, err = bulk.Read(ctx, s.executor, db, probes, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog items: %w", err)
	}
	return found, nil
}

// Truncate removes every catalog row.
func (s *Service) Truncate(ctx context.Context) error {
	if s.db == nil {
		return ErrNoDatabase
	}
	if _, err := bulk.Truncate[Item](ctx, s.executor, s.db); err != nil {
		return fmt.Errorf("failed to truncate catalog: %w", err)
	}
	s.logger.Info("Catalog truncated")
	return nil
}

// LatestExport returns the key of the newest export.
func (s *Service) LatestExport(ctx context.Context) (string, error) {
	return s.source.Latest(ctx)
}

// syncFilter limits full sync deletions to rows not flagged keep and outside the
// kept categories.
func syncFilter(keep []string) (string, []any) {
	filter := "T.keep = ?"
	args := []any{false}
	if len(keep) > 0 {
		filter += " AND T.category NOT IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(keep)), ", ") + ")"
		for _, c := range keep {
			args = append(args, c)
		}
	}
	return filter, args
}
