package models

import (
	"time"
)

// Source is one configured external catalog or inspiration source.
type Source struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	AdapterType string    `db:"adapter_type" json:"adapter_type"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Product is the adapter-agnostic shape written to the catalog. Upsert
// identity is the (SourceID, ExternalID) pair.
type Product struct {
	ID          string   `db:"id" json:"id"`
	SourceID    string   `db:"source_id" json:"source_id"`
	ExternalID  string   `db:"external_id" json:"external_id"`
	Retailer    string   `db:"retailer" json:"retailer,omitempty"`
	Brand       string   `db:"brand" json:"brand"`
	Name        string   `db:"name" json:"name"`
	Category    string   `db:"category" json:"category"`
	Description string   `db:"description" json:"description,omitempty"`
	ProductURL  string   `db:"product_url" json:"product_url,omitempty"`
	Tags        []string `db:"-" json:"tags,omitempty"`
	Metadata    Payload  `db:"-" json:"metadata,omitempty"`
}

// ImageTypePrimary marks the image the asset pipeline works from.
const (
	ImageTypePrimary = "primary"
	ImageTypeGallery = "gallery"
)

// ProductImage is one raw image attached to a product.
type ProductImage struct {
	ProductID string `db:"product_id" json:"product_id"`
	ImageURL  string `db:"image_url" json:"image_url"`
	Type      string `db:"type" json:"type"`
	Width     int    `db:"width" json:"width,omitempty"`
	Height    int    `db:"height" json:"height,omitempty"`
}

// ProductPrice is one append-only price observation.
type ProductPrice struct {
	ProductID  string    `db:"product_id" json:"product_id"`
	Price      float64   `db:"price" json:"price"`
	Currency   string    `db:"currency" json:"currency"`
	Unit       string    `db:"unit" json:"unit"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// Inventory availability states reported by adapters.
const (
	AvailabilityInStock    = "in_stock"
	AvailabilityOutOfStock = "out_of_stock"
	AvailabilityLimited    = "limited"
	AvailabilityUnknown    = "unknown"
)

// Inventory is one append-only availability observation.
type Inventory struct {
	ProductID    string    `db:"product_id" json:"product_id"`
	Availability string    `db:"availability" json:"availability"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// Asset types produced by the preparation pipeline.
const (
	AssetCutout      = "cutout"
	AssetTextureTile = "texture_tile"
	AssetThumbnail   = "thumbnail"
)

// Asset is one derived visual artifact for a product, immutable once
// written.
type Asset struct {
	ID              string    `db:"id" json:"id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	AssetType       string    `db:"asset_type" json:"asset_type"`
	AssetURL        string    `db:"asset_url" json:"asset_url"`
	PoseScore       *int      `db:"pose_score" json:"pose_score,omitempty"`
	IsLiveEligible  bool      `db:"is_live_eligible" json:"is_live_eligible"`
	RejectionReason *string   `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Run statuses for ingestion runs.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// IngestionRun records one execution of an INGEST_SOURCE job against one
// source.
type IngestionRun struct {
	ID              string     `db:"id" json:"id"`
	SourceID        string     `db:"source_id" json:"source_id"`
	Status          string     `db:"status" json:"status"`
	ProductsFetched int        `db:"products_fetched" json:"products_fetched"`
	ProductsCreated int        `db:"products_created" json:"products_created"`
	ProductsUpdated int        `db:"products_updated" json:"products_updated"`
	Errors          []string   `db:"-" json:"errors"`
	StartedAt       time.Time  `db:"started_at" json:"started_at"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// InspirationItem is a saved pin-like item that may later be promoted to a
// product.
type InspirationItem struct {
	PinID       string   `db:"pin_id" json:"pin_id"`
	BoardID     string   `db:"board_id" json:"board_id,omitempty"`
	ImageURL    string   `db:"image_url" json:"image_url"`
	Title       string   `db:"title" json:"title,omitempty"`
	Description string   `db:"description" json:"description,omitempty"`
	Tags        []string `db:"-" json:"tags,omitempty"`
	SourceURL   string   `db:"source_url" json:"source_url,omitempty"`
}
