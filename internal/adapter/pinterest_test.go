package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-ingestion/internal/models"
)

type captureSink struct {
	items []models.InspirationItem
}

func (c *captureSink) UpsertInspiration(_ context.Context, items []models.InspirationItem) error {
	c.items = append(c.items, items...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pinterestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func searchPayload(bookmark string, pins ...map[string]any) []byte {
	body, _ := json.Marshal(map[string]any{"items": pins, "bookmark": bookmark})
	return body
}

func samplePin(id, title string) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       title,
		"description": "Inspiration for a kitchen remodel",
		"link":        "https://retailer.example.com/item/" + id,
		"board_id":    "board-1",
		"media": map[string]any{
			"images": map[string]any{
				"600x": map[string]any{"url": "https://i.pinimg.com/600x/" + id + ".jpg", "width": 600, "height": 900},
			},
		},
	}
}

func TestFetchProductsEmptyTokenIsNoOp(t *testing.T) {
	p := NewPinterest("", "", nil, nil, testLogger())

	result, err := p.FetchProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.Empty(t, result.NextCursor)
}

func TestFetchProductsMapsPinsToProducts(t *testing.T) {
	var gotAuth string
	srv := pinterestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/search/pins", r.URL.Path)
		require.Equal(t, "25", r.URL.Query().Get("page_size"))
		if r.URL.Query().Get("query") == "kitchen faucet matte black" {
			_, _ = w.Write(searchPayload("bm-1", samplePin("pin-1", "Delta Trinsic Matte Black Faucet")))
			return
		}
		_, _ = w.Write(searchPayload(""))
	})

	sink := &captureSink{}
	p := NewPinterest("tok", srv.URL, sink, nil, testLogger())

	result, err := p.FetchProducts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)

	require.Len(t, result.Products, 1)
	got := result.Products[0]
	assert.Equal(t, "pin-1", got.ExternalID)
	assert.Equal(t, "Pinterest", got.Retailer)
	assert.Equal(t, "Delta Trinsic", got.Brand)
	assert.Equal(t, "faucets", got.Category)
	assert.Equal(t, "https://retailer.example.com/item/pin-1", got.ProductURL)
	assert.Equal(t, "pin-1", got.Metadata["pinterest_pin_id"])

	require.Len(t, sink.items, 1)
	assert.Equal(t, "pin-1", sink.items[0].PinID)
	assert.Equal(t, "https://i.pinimg.com/600x/pin-1.jpg", sink.items[0].ImageURL)
	assert.Contains(t, sink.items[0].Tags, "faucet")
}

func TestFetchProductsCarriesBookmarkCursor(t *testing.T) {
	var bookmarks []string
	srv := pinterestServer(t, func(w http.ResponseWriter, r *http.Request) {
		bookmarks = append(bookmarks, r.URL.Query().Get("bookmark"))
		_, _ = w.Write(searchPayload("bm-next"))
	})

	p := NewPinterest("tok", srv.URL, nil, nil, testLogger())

	result, err := p.FetchProducts(context.Background(), "bm-prev")
	require.NoError(t, err)
	assert.Equal(t, "bm-next", result.NextCursor)
	for _, bm := range bookmarks {
		assert.Equal(t, "bm-prev", bm)
	}
}

func TestFetchProductsAPIError(t *testing.T) {
	srv := pinterestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	p := NewPinterest("tok", srv.URL, nil, nil, testLogger())

	_, err := p.FetchProducts(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestFetchImagesReturnsPrimary(t *testing.T) {
	srv := pinterestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pins/pin-9", r.URL.Path)
		body, _ := json.Marshal(samplePin("pin-9", "Quartz Counter"))
		_, _ = w.Write(body)
	})

	p := NewPinterest("tok", srv.URL, nil, nil, testLogger())

	images, err := p.FetchImages(context.Background(), "pin-9")
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, models.ImageTypePrimary, images[0].Type)
	assert.Equal(t, "https://i.pinimg.com/600x/pin-9.jpg", images[0].ImageURL)
	assert.Equal(t, 600, images[0].Width)
	assert.Equal(t, 900, images[0].Height)
}

func TestGuessCategory(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Matte black kitchen faucet", "faucets"},
		{"Subway tile backsplash ideas", "backsplash"},
		{"Engineered hardwood flooring", "flooring"},
		{"Brass cabinet pulls", "cabinets"},
		{"Freestanding soaking tub", "tub"},
		{"Mid-century credenza", "fixtures"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GuessCategory(tt.text), tt.text)
	}
}

func TestGuessBrand(t *testing.T) {
	assert.Equal(t, "Delta Trinsic", GuessBrand("Delta Trinsic Matte Black Faucet"))
	assert.Equal(t, "Kohler", GuessBrand("Kohler"))
	assert.Equal(t, "Unknown", GuessBrand(""))
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.ForType("mystery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")

	p := NewPinterest("", "", nil, nil, testLogger())
	r.Register(AdapterTypePinterest, p)
	got, err := r.ForType(AdapterTypePinterest)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
