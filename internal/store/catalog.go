package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"catalog-ingestion/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// CreateSource registers an external catalog source.
func (s *Store) CreateSource(ctx context.Context, name, adapterType string, active bool) (models.Source, error) {
	src := models.Source{
		ID:          uuid.New().String(),
		Name:        name,
		AdapterType: adapterType,
		IsActive:    active,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO product_sources (id, name, adapter_type, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`), src.ID, src.Name, src.AdapterType, src.IsActive, src.CreatedAt)
	if err != nil {
		return models.Source{}, fmt.Errorf("insert source: %w", err)
	}
	return src, nil
}

// GetSource fetches a source by id.
func (s *Store) GetSource(ctx context.Context, id string) (models.Source, error) {
	var src models.Source
	err := s.db.GetContext(ctx, &src, s.db.Rebind(`
		SELECT id, name, adapter_type, is_active, created_at
		FROM product_sources WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Source{}, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Source{}, fmt.Errorf("query source: %w", err)
	}
	return src, nil
}

// ActiveSources lists sources the scheduler should ingest.
func (s *Store) ActiveSources(ctx context.Context) ([]models.Source, error) {
	var sources []models.Source
	err := s.db.SelectContext(ctx, &sources, s.db.Rebind(`
		SELECT id, name, adapter_type, is_active, created_at
		FROM product_sources WHERE is_active = ? ORDER BY created_at
	`), true)
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	return sources, nil
}

type productRow struct {
	ID          string `db:"id"`
	SourceID    string `db:"source_id"`
	ExternalID  string `db:"external_id"`
	Retailer    string `db:"retailer"`
	Brand       string `db:"brand"`
	Name        string `db:"name"`
	Category    string `db:"category"`
	Description string `db:"description"`
	ProductURL  string `db:"product_url"`
	Tags        string `db:"tags"`
	Metadata    string `db:"metadata"`
}

func (r productRow) toModel() (models.Product, error) {
	p := models.Product{
		ID:          r.ID,
		SourceID:    r.SourceID,
		ExternalID:  r.ExternalID,
		Retailer:    r.Retailer,
		Brand:       r.Brand,
		Name:        r.Name,
		Category:    r.Category,
		Description: r.Description,
		ProductURL:  r.ProductURL,
	}
	if err := json.Unmarshal([]byte(r.Tags), &p.Tags); err != nil {
		return models.Product{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Metadata), &p.Metadata); err != nil {
		return models.Product{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return p, nil
}

// UpsertProduct writes a product keyed on (source_id, external_id): an
// existing row is updated in place, otherwise a new row is inserted. The
// returned flag reports whether a row was created. Concurrent writers are
// safe because the natural key is unique; an insert that loses a race is
// retried as an update.
func (s *Store) UpsertProduct(ctx context.Context, p models.Product) (string, bool, error) {
	tags, err := jsonText(p.Tags)
	if err != nil {
		return "", false, fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := jsonText(p.Metadata)
	if err != nil {
		return "", false, fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	existingID, found, err := s.findProductID(ctx, p.SourceID, p.ExternalID)
	if err != nil {
		return "", false, err
	}
	if found {
		return existingID, false, s.updateProduct(ctx, existingID, p, tags, meta, now)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO products (id, source_id, external_id, retailer, brand, name, category,
			description, product_url, tags, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), id, p.SourceID, p.ExternalID, p.Retailer, p.Brand, p.Name, p.Category,
		p.Description, p.ProductURL, tags, meta, now, now)
	if err != nil {
		// Another worker may have inserted the same natural key between our
		// lookup and the insert.
		existingID, found, lookupErr := s.findProductID(ctx, p.SourceID, p.ExternalID)
		if lookupErr == nil && found {
			return existingID, false, s.updateProduct(ctx, existingID, p, tags, meta, now)
		}
		return "", false, fmt.Errorf("insert product: %w", err)
	}
	return id, true, nil
}

func (s *Store) findProductID(ctx context.Context, sourceID, externalID string) (string, bool, error) {
	var id string
	err := s.db.GetContext(ctx, &id, s.db.Rebind(`
		SELECT id FROM products WHERE source_id = ? AND external_id = ?
	`), sourceID, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query product id: %w", err)
	}
	return id, true, nil
}

func (s *Store) updateProduct(ctx context.Context, id string, p models.Product, tags, meta string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE products
		SET retailer = ?, brand = ?, name = ?, category = ?, description = ?,
			product_url = ?, tags = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`), p.Retailer, p.Brand, p.Name, p.Category, p.Description, p.ProductURL, tags, meta, now, id)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// GetProduct fetches a product by id.
func (s *Store) GetProduct(ctx context.Context, id string) (models.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, source_id, external_id, retailer, brand, name, category,
			description, product_url, tags, metadata
		FROM products WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("query product: %w", err)
	}
	return row.toModel()
}

// ProductsWithoutAssets returns ids of products that have no asset rows yet,
// oldest first, capped at limit.
func (s *Store) ProductsWithoutAssets(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, s.db.Rebind(`
		SELECT id FROM products
		WHERE id NOT IN (SELECT product_id FROM product_assets)
		ORDER BY created_at
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("query products without assets: %w", err)
	}
	return ids, nil
}

// InsertImage records one raw product image.
func (s *Store) InsertImage(ctx context.Context, img models.ProductImage) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO product_images (product_id, image_url, type, width, height, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), img.ProductID, img.ImageURL, img.Type, img.Width, img.Height, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert product image: %w", err)
	}
	return nil
}

// PrimaryImage returns the product's primary image, reporting whether one
// exists.
func (s *Store) PrimaryImage(ctx context.Context, productID string) (models.ProductImage, bool, error) {
	var img models.ProductImage
	err := s.db.GetContext(ctx, &img, s.db.Rebind(`
		SELECT product_id, image_url, type, width, height
		FROM product_images
		WHERE product_id = ? AND type = ?
		ORDER BY created_at LIMIT 1
	`), productID, models.ImageTypePrimary)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ProductImage{}, false, nil
	}
	if err != nil {
		return models.ProductImage{}, false, fmt.Errorf("query primary image: %w", err)
	}
	return img, true, nil
}

// AppendPrice records one price observation. Price history is append-only
// and never overwritten.
func (s *Store) AppendPrice(ctx context.Context, p models.ProductPrice) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO product_prices (product_id, price, currency, unit, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`), p.ProductID, p.Price, p.Currency, p.Unit, p.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// PriceHistory lists price observations for a product, oldest first.
func (s *Store) PriceHistory(ctx context.Context, productID string) ([]models.ProductPrice, error) {
	var prices []models.ProductPrice
	err := s.db.SelectContext(ctx, &prices, s.db.Rebind(`
		SELECT product_id, price, currency, unit, recorded_at
		FROM product_prices WHERE product_id = ? ORDER BY recorded_at
	`), productID)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	return prices, nil
}

// AppendInventory records one availability observation, append-only like
// prices.
func (s *Store) AppendInventory(ctx context.Context, inv models.Inventory) error {
	if inv.RecordedAt.IsZero() {
		inv.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO product_inventory (product_id, availability, recorded_at)
		VALUES (?, ?, ?)
	`), inv.ProductID, inv.Availability, inv.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}
	return nil
}

// InsertAsset records one derived asset. Assets are immutable once written.
func (s *Store) InsertAsset(ctx context.Context, a models.Asset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO product_assets (id, product_id, asset_type, asset_url, pose_score,
			is_live_eligible, rejection_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), a.ID, a.ProductID, a.AssetType, a.AssetURL, a.PoseScore,
		a.IsLiveEligible, a.RejectionReason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// AssetsForProduct lists a product's assets.
func (s *Store) AssetsForProduct(ctx context.Context, productID string) ([]models.Asset, error) {
	var assets []models.Asset
	err := s.db.SelectContext(ctx, &assets, s.db.Rebind(`
		SELECT id, product_id, asset_type, asset_url, pose_score,
			is_live_eligible, rejection_reason, created_at
		FROM product_assets WHERE product_id = ? ORDER BY created_at
	`), productID)
	if err != nil {
		return nil, fmt.Errorf("query assets: %w", err)
	}
	return assets, nil
}

// CreateRun opens an ingestion run for a source.
func (s *Store) CreateRun(ctx context.Context, sourceID string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO ingestion_runs (id, source_id, status, products_fetched,
			products_created, products_updated, errors, started_at)
		VALUES (?, ?, ?, 0, 0, 0, ?, ?)
	`), id, sourceID, models.RunRunning, "[]", time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert ingestion run: %w", err)
	}
	return id, nil
}

// FinalizeRun closes a run with aggregate counts and collected per-item
// errors.
func (s *Store) FinalizeRun(ctx context.Context, runID, status string, fetched, created, updated int, errs []string) error {
	errText, err := jsonText(errs)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE ingestion_runs
		SET status = ?, products_fetched = ?, products_created = ?,
			products_updated = ?, errors = ?, completed_at = ?
		WHERE id = ?
	`), status, fetched, created, updated, errText, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("finalize ingestion run: %w", err)
	}
	return nil
}

type runRow struct {
	ID              string       `db:"id"`
	SourceID        string       `db:"source_id"`
	Status          string       `db:"status"`
	ProductsFetched int          `db:"products_fetched"`
	ProductsCreated int          `db:"products_created"`
	ProductsUpdated int          `db:"products_updated"`
	Errors          string       `db:"errors"`
	StartedAt       time.Time    `db:"started_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
}

func (r runRow) toModel() (models.IngestionRun, error) {
	run := models.IngestionRun{
		ID:              r.ID,
		SourceID:        r.SourceID,
		Status:          r.Status,
		ProductsFetched: r.ProductsFetched,
		ProductsCreated: r.ProductsCreated,
		ProductsUpdated: r.ProductsUpdated,
		StartedAt:       r.StartedAt,
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(r.Errors), &run.Errors); err != nil {
		return models.IngestionRun{}, fmt.Errorf("unmarshal run errors: %w", err)
	}
	return run, nil
}

// GetRun fetches an ingestion run by id.
func (s *Store) GetRun(ctx context.Context, id string) (models.IngestionRun, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, source_id, status, products_fetched, products_created,
			products_updated, errors, started_at, completed_at
		FROM ingestion_runs WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.IngestionRun{}, fmt.Errorf("ingestion run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.IngestionRun{}, fmt.Errorf("query ingestion run: %w", err)
	}
	return row.toModel()
}

// RecentRuns lists the most recent ingestion runs for the ops API.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, source_id, status, products_fetched, products_created,
			products_updated, errors, started_at, completed_at
		FROM ingestion_runs ORDER BY started_at DESC LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("query ingestion runs: %w", err)
	}
	runs := make([]models.IngestionRun, 0, len(rows))
	for _, r := range rows {
		run, err := r.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// UpsertInspiration stores pin-like inspiration items keyed by pin id.
func (s *Store) UpsertInspiration(ctx context.Context, items []models.InspirationItem) error {
	now := time.Now().UTC()
	for _, item := range items {
		tags, err := jsonText(item.Tags)
		if err != nil {
			return fmt.Errorf("marshal inspiration tags: %w", err)
		}
		_, err = s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO inspiration_items (pin_id, board_id, image_url, title,
				description, tags, source_url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (pin_id) DO UPDATE SET
				board_id = excluded.board_id,
				image_url = excluded.image_url,
				title = excluded.title,
				description = excluded.description,
				tags = excluded.tags,
				source_url = excluded.source_url
		`), item.PinID, item.BoardID, item.ImageURL, item.Title,
			item.Description, tags, item.SourceURL, now)
		if err != nil {
			return fmt.Errorf("upsert inspiration item %s: %w", item.PinID, err)
		}
	}
	return nil
}

// jsonText marshals a value to a JSON string, mapping nil slices/maps to
// their empty JSON forms so columns stay NOT NULL.
func jsonText(v any) (string, error) {
	switch t := v.(type) {
	case []string:
		if t == nil {
			return "[]", nil
		}
	case models.Payload:
		if t == nil {
			return "{}", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
