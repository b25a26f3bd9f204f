// Package catalog syncs product catalog exports from object storage into the
// catalog_items table.
//
// An export is a JSON document ({"generated_at": ..., "items": [...]}) stored under
// the configured prefix. Items are matched on SKU. An upsert inserts new SKUs and
// updates changed ones; a full sync also deletes rows whose SKU left the export,
// except rows flagged keep and rows in kept categories. After each applied sync a
// report is uploaded next to the export as <name>.report.json.
//
// A dry run reads the current rows of the export's SKUs and reports what would change
// without writing.
//
// # HTTP Endpoints
//
//   - POST /catalog/sync : applies an export (body: SyncRequest).
//   - POST /catalog/lookup : returns stored items for {"skus": [...]}.
//   - GET /catalog/exports/latest : returns the newest export key.
package catalog
