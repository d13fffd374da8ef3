package adapter

import (
	"context"
	"log/slog"

	"catalog-ingestion/internal/models"
)

// AdapterTypeLowes is the adapter_type value stored on Lowes catalog
// sources.
const AdapterTypeLowes = "lowes_catalog"

// LowesCatalog covers the Lowes B2B catalog API. Like the Home Depot feed
// it is a safe no-op until credentials are configured.
type LowesCatalog struct {
	apiKey    string
	apiSecret string
	logger    *slog.Logger
}

func NewLowesCatalog(apiKey, apiSecret string, logger *slog.Logger) *LowesCatalog {
	return &LowesCatalog{apiKey: apiKey, apiSecret: apiSecret, logger: logger}
}

func (l *LowesCatalog) Name() string            { return "Lowes Catalog" }
func (l *LowesCatalog) SupportsPricing() bool   { return true }
func (l *LowesCatalog) SupportsInventory() bool { return true }

func (l *LowesCatalog) FetchProducts(_ context.Context, _ string) (FetchResult, error) {
	if l.apiKey == "" || l.apiSecret == "" {
		l.logger.Warn("lowes api credentials missing, returning empty page")
		return FetchResult{}, nil
	}
	// TODO: call the catalog API with cursor pagination once credentials
	// are provisioned.
	return FetchResult{}, nil
}

func (l *LowesCatalog) FetchDetails(_ context.Context, _ string) (*Detail, error) {
	return nil, nil
}

func (l *LowesCatalog) FetchImages(_ context.Context, _ string) ([]models.ProductImage, error) {
	return nil, nil
}
