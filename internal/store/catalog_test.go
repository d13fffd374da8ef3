package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-ingestion/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	st, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.RunMigrations(ctx))
	return st
}

func seedSource(t *testing.T, st *Store) models.Source {
	t.Helper()
	src, err := st.CreateSource(context.Background(), "Test Feed", "pinterest", true)
	require.NoError(t, err)
	return src
}

func TestGetSourceNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetSource(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestActiveSourcesFiltersInactive(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	active, err := st.CreateSource(ctx, "Active", "pinterest", true)
	require.NoError(t, err)
	_, err = st.CreateSource(ctx, "Dormant", "lowes_catalog", false)
	require.NoError(t, err)

	sources, err := st.ActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, active.ID, sources[0].ID)
}

func TestUpsertProductCreatesThenUpdates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, st)

	p := models.Product{
		SourceID:   src.ID,
		ExternalID: "ext-1",
		Retailer:   "Pinterest",
		Brand:      "Kohler",
		Name:       "Brushed Nickel Faucet",
		Category:   "faucets",
		Tags:       []string{"nickel", "modern"},
		Metadata:   models.Payload{"pinterest_pin_id": "pin-1"},
	}

	id1, created, err := st.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.True(t, created)

	p.Name = "Brushed Nickel Faucet, Tall Spout"
	p.Category = "fixtures"
	id2, created, err := st.UpsertProduct(ctx, p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	got, err := st.GetProduct(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "Brushed Nickel Faucet, Tall Spout", got.Name)
	assert.Equal(t, "fixtures", got.Category)
	assert.Equal(t, []string{"nickel", "modern"}, got.Tags)
	assert.Equal(t, "pin-1", got.Metadata["pinterest_pin_id"])

	// Still exactly one row for the natural key.
	var count int
	require.NoError(t, st.db.GetContext(ctx, &count,
		st.db.Rebind(`SELECT COUNT(*) FROM products WHERE source_id = ? AND external_id = ?`),
		src.ID, "ext-1"))
	assert.Equal(t, 1, count)
}

func TestProductsWithoutAssets(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, st)

	withAssets, _, err := st.UpsertProduct(ctx, models.Product{
		SourceID: src.ID, ExternalID: "ext-a", Name: "A", Category: "tile",
	})
	require.NoError(t, err)
	bare, _, err := st.UpsertProduct(ctx, models.Product{
		SourceID: src.ID, ExternalID: "ext-b", Name: "B", Category: "tile",
	})
	require.NoError(t, err)

	require.NoError(t, st.InsertAsset(ctx, models.Asset{
		ProductID: withAssets,
		AssetType: models.AssetThumbnail,
		AssetURL:  "https://cdn.example.com/a/thumb.png",
	}))

	ids, err := st.ProductsWithoutAssets(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{bare}, ids)

	// The limit caps the batch.
	ids, err = st.ProductsWithoutAssets(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPriceHistoryIsAppendOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, st)

	id, _, err := st.UpsertProduct(ctx, models.Product{
		SourceID: src.ID, ExternalID: "ext-1", Name: "Sink", Category: "fixtures",
	})
	require.NoError(t, err)

	for i, price := range []float64{199.99, 189.99, 199.99} {
		require.NoError(t, st.AppendPrice(ctx, models.ProductPrice{
			ProductID:  id,
			Price:      price,
			Currency:   "USD",
			Unit:       "each",
			RecordedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}

	history, err := st.PriceHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 199.99, history[0].Price)
	assert.Equal(t, 189.99, history[1].Price)
	assert.Equal(t, 199.99, history[2].Price)
}

func TestPrimaryImageSelection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, st)

	id, _, err := st.UpsertProduct(ctx, models.Product{
		SourceID: src.ID, ExternalID: "ext-1", Name: "Vanity", Category: "cabinets",
	})
	require.NoError(t, err)

	_, ok, err := st.PrimaryImage(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.InsertImage(ctx, models.ProductImage{
		ProductID: id, ImageURL: "https://img.example.com/gallery.jpg", Type: models.ImageTypeGallery,
	}))
	require.NoError(t, st.InsertImage(ctx, models.ProductImage{
		ProductID: id, ImageURL: "https://img.example.com/main.jpg", Type: models.ImageTypePrimary,
	}))

	img, ok, err := st.PrimaryImage(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://img.example.com/main.jpg", img.ImageURL)
}

func TestRunLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, st)

	runID, err := st.CreateRun(ctx, src.ID)
	require.NoError(t, err)

	run, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	errs := []string{"upsert ext-5: boom"}
	require.NoError(t, st.FinalizeRun(ctx, runID, models.RunCompleted, 10, 6, 3, errs))

	run, err = st.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 10, run.ProductsFetched)
	assert.Equal(t, 6, run.ProductsCreated)
	assert.Equal(t, 3, run.ProductsUpdated)
	assert.Equal(t, errs, run.Errors)
	require.NotNil(t, run.CompletedAt)

	runs, err := st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}

func TestUpsertInspirationIsIdempotentPerPin(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	items := []models.InspirationItem{
		{PinID: "pin-1", ImageURL: "https://i.example.com/1.jpg", Title: "Marble countertop"},
		{PinID: "pin-2", ImageURL: "https://i.example.com/2.jpg", Title: "Subway tile"},
	}
	require.NoError(t, st.UpsertInspiration(ctx, items))

	items[0].Title = "Carrara marble countertop"
	require.NoError(t, st.UpsertInspiration(ctx, items[:1]))

	var count int
	require.NoError(t, st.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM inspiration_items`))
	assert.Equal(t, 2, count)

	var title string
	require.NoError(t, st.db.GetContext(ctx, &title,
		st.db.Rebind(`SELECT title FROM inspiration_items WHERE pin_id = ?`), "pin-1"))
	assert.Equal(t, "Carrara marble countertop", title)
}

func TestAssetsForProduct(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	src := seedSource(t, st)

	id, _, err := st.UpsertProduct(ctx, models.Product{
		SourceID: src.ID, ExternalID: "ext-1", Name: "Tile", Category: "flooring",
	})
	require.NoError(t, err)

	score := 75
	require.NoError(t, st.InsertAsset(ctx, models.Asset{
		ProductID:      id,
		AssetType:      models.AssetCutout,
		AssetURL:       "https://cdn.example.com/cutout.png",
		PoseScore:      &score,
		IsLiveEligible: true,
	}))
	require.NoError(t, st.InsertAsset(ctx, models.Asset{
		ProductID: id,
		AssetType: models.AssetThumbnail,
		AssetURL:  "https://cdn.example.com/thumb.png",
	}))

	got, err := st.AssetsForProduct(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byType := map[string]models.Asset{}
	for _, a := range got {
		byType[a.AssetType] = a
	}
	require.Contains(t, byType, models.AssetCutout)
	require.NotNil(t, byType[models.AssetCutout].PoseScore)
	assert.Equal(t, 75, *byType[models.AssetCutout].PoseScore)
	assert.True(t, byType[models.AssetCutout].IsLiveEligible)
	assert.False(t, byType[models.AssetThumbnail].IsLiveEligible)
}
