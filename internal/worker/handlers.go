package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"catalog-ingestion/internal/adapter"
	"catalog-ingestion/internal/assets"
	"catalog-ingestion/internal/models"
	"catalog-ingestion/internal/telemetry"
)

// Catalog is the slice of the store the handlers need.
type Catalog interface {
	GetSource(ctx context.Context, id string) (models.Source, error)
	CreateRun(ctx context.Context, sourceID string) (string, error)
	FinalizeRun(ctx context.Context, runID, status string, fetched, created, updated int, errs []string) error
	UpsertProduct(ctx context.Context, p models.Product) (string, bool, error)
	InsertImage(ctx context.Context, img models.ProductImage) error
	GetProduct(ctx context.Context, id string) (models.Product, error)
	AppendPrice(ctx context.Context, price models.ProductPrice) error
	AppendInventory(ctx context.Context, inv models.Inventory) error
}

// AssetPreparer produces display assets for a product's primary image.
type AssetPreparer interface {
	Prepare(ctx context.Context, productID string) (assets.Result, error)
}

// Handlers owns the business logic behind each job type.
type Handlers struct {
	catalog  Catalog
	adapters *adapter.Registry
	assets   AssetPreparer
	logger   *slog.Logger
}

func NewHandlers(catalog Catalog, adapters *adapter.Registry, preparer AssetPreparer, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog:  catalog,
		adapters: adapters,
		assets:   preparer,
		logger:   logger,
	}
}

// Register binds every handler to its job type on the worker.
func (h *Handlers) Register(w *Worker) {
	w.RegisterHandler(models.JobIngestSource, h.IngestSource)
	w.RegisterHandler(models.JobPrepAssets, h.PrepAssets)
	w.RegisterHandler(models.JobRefreshPrice, h.RefreshPrice)
	w.RegisterHandler(models.JobRefreshInventory, h.RefreshInventory)
}

// IngestSource pulls the full product listing from a source's adapter and
// upserts each item into the catalog. Images are fetched only for newly
// created products; refreshing existing imagery is a separate concern.
// Per-item failures are collected on the run record instead of aborting
// the batch.
func (h *Handlers) IngestSource(ctx context.Context, job models.Job) error {
	sourceID, ok := job.Payload.StringField("source_id")
	if !ok {
		return fmt.Errorf("ingest job %s: payload missing source_id", job.ID)
	}

	source, err := h.catalog.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("load source %s: %w", sourceID, err)
	}
	if !source.IsActive {
		h.logger.Info("skipping inactive source", "source_id", sourceID, "source", source.Name)
		return nil
	}

	ad, err := h.adapters.ForType(source.AdapterType)
	if err != nil {
		return fmt.Errorf("source %s: %w", sourceID, err)
	}

	runID, err := h.catalog.CreateRun(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("create ingestion run: %w", err)
	}

	fetched, created, updated, itemErrs, err := h.ingest(ctx, ad, sourceID)
	if err != nil {
		itemErrs = append(itemErrs, err.Error())
		if ferr := h.catalog.FinalizeRun(ctx, runID, models.RunFailed, fetched, created, updated, itemErrs); ferr != nil {
			h.logger.Error("finalize failed run", "run_id", runID, "error", ferr)
		}
		return fmt.Errorf("ingest source %s: %w", sourceID, err)
	}

	if err := h.catalog.FinalizeRun(ctx, runID, models.RunCompleted, fetched, created, updated, itemErrs); err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}

	h.logger.Info("ingestion run completed",
		"run_id", runID, "source", source.Name,
		"fetched", fetched, "created", created, "updated", updated, "errors", len(itemErrs))
	return nil
}

func (h *Handlers) ingest(ctx context.Context, ad adapter.Adapter, sourceID string) (fetched, created, updated int, itemErrs []string, err error) {
	cursor := ""
	for {
		page, ferr := ad.FetchProducts(ctx, cursor)
		if ferr != nil {
			return fetched, created, updated, itemErrs, fmt.Errorf("fetch products: %w", ferr)
		}
		fetched += len(page.Products)

		for _, p := range page.Products {
			p.SourceID = sourceID
			id, isNew, uerr := h.catalog.UpsertProduct(ctx, p)
			if uerr != nil {
				itemErrs = append(itemErrs, fmt.Sprintf("upsert %s: %v", p.ExternalID, uerr))
				continue
			}
			if isNew {
				created++
				telemetry.ProductsCreated.Inc()
				h.attachImages(ctx, ad, id, p.ExternalID, &itemErrs)
			} else {
				updated++
				telemetry.ProductsUpdated.Inc()
			}
		}

		if page.NextCursor == "" {
			return fetched, created, updated, itemErrs, nil
		}
		cursor = page.NextCursor
	}
}

func (h *Handlers) attachImages(ctx context.Context, ad adapter.Adapter, productID, externalID string, itemErrs *[]string) {
	images, err := ad.FetchImages(ctx, externalID)
	if err != nil {
		*itemErrs = append(*itemErrs, fmt.Sprintf("images %s: %v", externalID, err))
		return
	}
	for _, img := range images {
		img.ProductID = productID
		if err := h.catalog.InsertImage(ctx, img); err != nil {
			*itemErrs = append(*itemErrs, fmt.Sprintf("insert image %s: %v", externalID, err))
		}
	}
}

// PrepAssets runs the asset pipeline for one product. A rejection is a
// successful outcome: the product was evaluated and found unsuitable, so
// the job must not retry.
func (h *Handlers) PrepAssets(ctx context.Context, job models.Job) error {
	productID, ok := job.Payload.StringField("product_id")
	if !ok {
		return fmt.Errorf("asset job %s: payload missing product_id", job.ID)
	}

	result, err := h.assets.Prepare(ctx, productID)
	if err != nil {
		return fmt.Errorf("prepare assets for %s: %w", productID, err)
	}
	if result.Rejected {
		h.logger.Info("product rejected for assets",
			"product_id", productID, "reason", result.RejectionReason)
		return nil
	}
	h.logger.Info("assets prepared", "product_id", productID, "count", len(result.Assets))
	return nil
}

// RefreshPrice re-reads pricing for a product from its source adapter.
// Price history is append-only; every observation is kept.
func (h *Handlers) RefreshPrice(ctx context.Context, job models.Job) error {
	product, ad, err := h.productAdapter(ctx, job, "price")
	if err != nil {
		return err
	}
	if ad == nil {
		return nil
	}
	if !ad.SupportsPricing() {
		h.logger.Info("adapter does not expose pricing", "adapter", ad.Name(), "product_id", product.ID)
		return nil
	}

	detail, err := ad.FetchDetails(ctx, product.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch details for %s: %w", product.ExternalID, err)
	}
	if detail == nil || detail.Price == nil {
		h.logger.Info("no price data returned", "product_id", product.ID)
		return nil
	}

	price := *detail.Price
	price.ProductID = product.ID
	if err := h.catalog.AppendPrice(ctx, price); err != nil {
		return fmt.Errorf("append price for %s: %w", product.ID, err)
	}
	return nil
}

// RefreshInventory mirrors RefreshPrice for stock observations.
func (h *Handlers) RefreshInventory(ctx context.Context, job models.Job) error {
	product, ad, err := h.productAdapter(ctx, job, "inventory")
	if err != nil {
		return err
	}
	if ad == nil {
		return nil
	}
	if !ad.SupportsInventory() {
		h.logger.Info("adapter does not expose inventory", "adapter", ad.Name(), "product_id", product.ID)
		return nil
	}

	detail, err := ad.FetchDetails(ctx, product.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch details for %s: %w", product.ExternalID, err)
	}
	if detail == nil || detail.Inventory == nil {
		h.logger.Info("no inventory data returned", "product_id", product.ID)
		return nil
	}

	inv := *detail.Inventory
	inv.ProductID = product.ID
	if err := h.catalog.AppendInventory(ctx, inv); err != nil {
		return fmt.Errorf("append inventory for %s: %w", product.ID, err)
	}
	return nil
}

// productAdapter resolves the product named in the payload and the
// adapter behind its source. A nil adapter with nil error means the
// refresh is a deliberate no-op.
func (h *Handlers) productAdapter(ctx context.Context, job models.Job, kind string) (models.Product, adapter.Adapter, error) {
	productID, ok := job.Payload.StringField("product_id")
	if !ok {
		return models.Product{}, nil, fmt.Errorf("%s job %s: payload missing product_id", kind, job.ID)
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, nil, fmt.Errorf("load product %s: %w", productID, err)
	}

	source, err := h.catalog.GetSource(ctx, product.SourceID)
	if err != nil {
		return models.Product{}, nil, fmt.Errorf("load source %s: %w", product.SourceID, err)
	}

	ad, err := h.adapters.ForType(source.AdapterType)
	if err != nil {
		// An unregistered adapter type is a configuration gap, not a
		// retryable fault.
		h.logger.Warn("no adapter for source",
			"source_id", source.ID, "adapter_type", source.AdapterType,
			"detail", strings.TrimSpace(err.Error()))
		return product, nil, nil
	}
	return product, ad, nil
}
