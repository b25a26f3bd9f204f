package catalog

import "time"

// Item is one product row of the catalog_items table.
type Item struct {
	ID       int64   `gorm:"primaryKey" json:"id"`
	SKU      string  `gorm:"size:64;uniqueIndex" json:"sku"`
	Name     string  `gorm:"size:255" json:"name"`
	Category string  `gorm:"size:64;index" json:"category"`
	Price    float64 `json:"price"`
	Stock    int     `json:"stock"`
	// Keep protects the row from deletion by a full sync.
	Keep bool `json:"keep"`
}

// TableName implements gorm's tabler.
func (Item) TableName() string {
	return "catalog_items"
}

// sameContent reports whether two items carry the same catalog data.
func sameContent(a, b *Item) bool {
	return a.Name == b.Name && a.Category == b.Category && a.Price == b.Price && a.Stock == b.Stock && a.Keep == b.Keep
}

// Export is the JSON document produced by the catalog exporter.
type Export struct {
	GeneratedAt time.Time `json:"generated_at"`
	Items       []*Item   `json:"items"`
}

// Operation selects how an export is applied to the table.
type Operation string

const (
	// OperationUpsert inserts new SKUs and updates known ones.
	OperationUpsert Operation = "upsert"
	// OperationSync also deletes rows whose SKU is missing from the export, except
	// rows flagged keep or in a kept category.
	OperationSync Operation = "sync"
)

// SyncRequest describes one sync run.
type SyncRequest struct {
	// Object is the export key. Empty selects the newest export.
	Object string `json:"object"`
	// Operation defaults to OperationUpsert.
	Operation Operation `json:"operation"`
	// KeepCategories lists categories a full sync never deletes from.
	KeepCategories []string `json:"keep_categories"`
	// DryRun computes the report without writing.
	DryRun bool `json:"dry_run"`
}

// Report is the outcome of a sync run.
type Report struct {
	Object     string    `json:"object"`
	Operation  Operation `json:"operation"`
	DryRun     bool      `json:"dry_run"`
	Items      int       `json:"items"`
	Inserted   int64     `json:"inserted"`
	Updated    int64     `json:"updated"`
	Deleted    int64     `json:"deleted"`
	Unchanged  int       `json:"unchanged"`
	DurationMS int64     `json:"duration_ms"`
}
