// Package adapter defines the pluggable integration boundary between the
// ingestion core and external catalog or inspiration sources.
package adapter

import (
	"context"
	"fmt"

	"catalog-ingestion/internal/models"
)

// FetchResult is one page of products from a source. An empty NextCursor
// ends pagination.
type FetchResult struct {
	Products   []models.Product
	NextCursor string
}

// Detail is the full record for a single product, as much of it as the
// source exposes.
type Detail struct {
	Product   models.Product
	Images    []models.ProductImage
	Price     *models.ProductPrice
	Inventory *models.Inventory
}

// Adapter is the uniform contract every source integration implements.
// Adapters without credentials configured return empty results rather than
// erroring; a not-yet-configured source is not a failure.
type Adapter interface {
	Name() string
	SupportsPricing() bool
	SupportsInventory() bool

	// FetchProducts returns one page of products. Pass the previous
	// result's NextCursor to continue; an empty cursor starts over.
	FetchProducts(ctx context.Context, cursor string) (FetchResult, error)

	// FetchDetails returns the full record for one product, or nil when
	// the source has no detail endpoint or the product is unknown.
	FetchDetails(ctx context.Context, externalID string) (*Detail, error)

	// FetchImages returns image records for one product.
	FetchImages(ctx context.Context, externalID string) ([]models.ProductImage, error)
}

// Registry maps a source's adapter_type to its implementation.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(adapterType string, a Adapter) {
	if adapterType == "" || a == nil {
		return
	}
	r.adapters[adapterType] = a
}

// ForType resolves an adapter; an unknown type is a permanent error for the
// job referencing it.
func (r *Registry) ForType(adapterType string) (Adapter, error) {
	a, ok := r.adapters[adapterType]
	if !ok {
		return nil, fmt.Errorf("unknown adapter type %q", adapterType)
	}
	return a, nil
}
