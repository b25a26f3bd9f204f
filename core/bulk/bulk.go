package bulk

import (
	"context"

	"bulksync/core/bulk/op"

	"gorm.io/gorm"
)

// Insert adds every item as a new row.
func Insert[T any](ctx context.Context, x *Executor, db *gorm.DB, items []*T, opts op.Options) (*op.Result, error) {
	return x.Execute(ctx, db, request[T](op.Insert, items, opts))
}

// Update overwrites the rows matching the items. Items without a match are ignored.
func Update[T any](ctx context.Context, x *Executor, db *gorm.DB, items []*T, opts op.Options) (*op.Result, error) {
	return x.Execute(ctx, db, request[T](op.Update, items, opts))
}

// InsertOrUpdate inserts unmatched items and updates matched ones.
func InsertOrUpdate[T any](ctx context.Context, x *Executor, db *gorm.DB, items []*T, opts op.Options) (*op.Result, error) {
	return x.Execute(ctx, db, request[T](op.InsertOrUpdate, items, opts))
}

// InsertOrUpdateOrDelete makes the table mirror items: unmatched items are inserted,
// matched ones updated and rows absent from items deleted, limited by
// opts.SynchronizeFilter. An empty items slice deletes every row the filter allows.
func InsertOrUpdateOrDelete[T any](ctx context.Context, x *Executor, db *gorm.DB, items []*T, opts op.Options) (*op.Result, error) {
	return x.Execute(ctx, db, request[T](op.InsertOrUpdateOrDelete, items, opts))
}

// Delete removes the rows matching the items.
func Delete[T any](ctx context.Context, x *Executor, db *gorm.DB, items []*T, opts op.Options) (*op.Result, error) {
	return x.Execute(ctx, db, request[T](op.Delete, items, opts))
}

// Read loads the rows matching the items. By default the items are updated in place
// and items without a row get their match key reset. With opts.ReplaceReadEntities
// the items are left alone and the rows read are returned instead.
func Read[T any](ctx context.Context, x *Executor, db *gorm.DB, items []*T, opts op.Options) ([]*T, *op.Result, error) {
	res, err := x.Execute(ctx, db, request[T](op.Read, items, opts))
	if err != nil || !opts.ReplaceReadEntities {
		return items, res, err
	}
	out := make([]*T, 0, len(res.Replaced))
	for _, r := range res.Replaced {
		out = append(out, r.(*T))
	}
	return out, res, nil
}

// Truncate removes every row of T's table.
func Truncate[T any](ctx context.Context, x *Executor, db *gorm.DB) (*op.Result, error) {
	return x.Execute(ctx, db, Request{Kind: op.Truncate, Model: new(T), Options: op.Defaults()})
}

func request[T any](kind op.Kind, items []*T, opts op.Options) Request {
	entities := make([]any, len(items))
	for i, item := range items {
		entities[i] = item
	}
	return Request{Kind: kind, Entities: entities, Model: new(T), Options: opts}
}
