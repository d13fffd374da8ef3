package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catalog-ingestion/internal/models"
)

// AdapterTypePinterest is the adapter_type value stored on Pinterest
// sources.
const AdapterTypePinterest = "pinterest"

// searchKeywords drives pin discovery; each cycle searches every keyword.
var searchKeywords = []string{
	"kitchen faucet matte black",
	"modern kitchen countertop",
	"luxury bathroom vanity",
	"kitchen backsplash tile",
	"hardwood flooring kitchen",
	"modern bathroom shower",
}

// InspirationSink receives raw pin items alongside the normalized products
// so they can later be promoted into the catalog.
type InspirationSink interface {
	UpsertInspiration(ctx context.Context, items []models.InspirationItem) error
}

// Waiter paces outbound API calls.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Pinterest ingests pins from the Pinterest v5 search API as lightweight
// products. It supports neither pricing nor inventory.
type Pinterest struct {
	token   string
	baseURL string
	client  *http.Client
	sink    InspirationSink
	limiter Waiter
	logger  *slog.Logger
}

// NewPinterest builds the adapter. sink and limiter may be nil; an empty
// token makes every fetch a safe no-op.
func NewPinterest(token, baseURL string, sink InspirationSink, limiter Waiter, logger *slog.Logger) *Pinterest {
	if baseURL == "" {
		baseURL = "https://api.pinterest.com/v5"
	}
	return &Pinterest{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		sink:    sink,
		limiter: limiter,
		logger:  logger,
	}
}

func (p *Pinterest) Name() string            { return "Pinterest Inspiration" }
func (p *Pinterest) SupportsPricing() bool   { return false }
func (p *Pinterest) SupportsInventory() bool { return false }

type pinImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type pin struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	BoardID     string `json:"board_id"`
	Media       struct {
		Images map[string]pinImage `json:"images"`
	} `json:"media"`
}

type pinSearchResponse struct {
	Items    []pin  `json:"items"`
	Bookmark string `json:"bookmark"`
}

// FetchProducts searches the keyword set, records the raw pins as
// inspiration items, and maps them to normalized products. The returned
// cursor is the last Pinterest bookmark.
func (p *Pinterest) FetchProducts(ctx context.Context, cursor string) (FetchResult, error) {
	if p.token == "" {
		p.logger.Warn("pinterest access token missing, returning empty page")
		return FetchResult{}, nil
	}

	var items []models.InspirationItem
	var nextCursor string
	for _, query := range searchKeywords {
		params := url.Values{"query": {query}, "page_size": {"25"}}
		if cursor != "" {
			params.Set("bookmark", cursor)
		}

		var page pinSearchResponse
		if err := p.get(ctx, "/search/pins", params, &page); err != nil {
			return FetchResult{}, fmt.Errorf("search pins %q: %w", query, err)
		}

		tags := strings.Fields(query)
		for _, item := range page.Items {
			items = append(items, pinToInspiration(item, tags))
		}
		if page.Bookmark != "" {
			nextCursor = page.Bookmark
		}
	}

	if p.sink != nil && len(items) > 0 {
		// Inspiration capture is best-effort; product ingestion continues
		// even if the sink is unavailable.
		if err := p.sink.UpsertInspiration(ctx, items); err != nil {
			p.logger.Error("upsert inspiration items", "error", err)
		}
	}

	products := make([]models.Product, 0, len(items))
	for _, item := range items {
		products = append(products, models.Product{
			ExternalID:  item.PinID,
			Retailer:    "Pinterest",
			Brand:       GuessBrand(item.Title),
			Name:        orUntitled(item.Title),
			Category:    GuessCategory(item.Title + " " + item.Description),
			Description: item.Description,
			ProductURL:  item.SourceURL,
			Tags:        item.Tags,
			Metadata:    models.Payload{"pinterest_pin_id": item.PinID},
		})
	}
	return FetchResult{Products: products, NextCursor: nextCursor}, nil
}

// FetchDetails returns nil: Pinterest has no product detail endpoint.
func (p *Pinterest) FetchDetails(_ context.Context, _ string) (*Detail, error) {
	return nil, nil
}

// FetchImages fetches a single pin and returns its image as the primary.
func (p *Pinterest) FetchImages(ctx context.Context, externalID string) ([]models.ProductImage, error) {
	if p.token == "" {
		return nil, nil
	}

	var item pin
	if err := p.get(ctx, "/pins/"+externalID, nil, &item); err != nil {
		return nil, fmt.Errorf("fetch pin %s: %w", externalID, err)
	}
	img, ok := item.Media.Images["600x"]
	if !ok || img.URL == "" {
		return nil, nil
	}
	return []models.ProductImage{{
		ImageURL: img.URL,
		Type:     models.ImageTypePrimary,
		Width:    img.Width,
		Height:   img.Height,
	}}, nil
}

func (p *Pinterest) get(ctx context.Context, path string, params url.Values, out any) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, "adapter:pinterest"); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	u := p.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pinterest api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pinterest api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func pinToInspiration(item pin, tags []string) models.InspirationItem {
	var imageURL string
	if img, ok := item.Media.Images["600x"]; ok {
		imageURL = img.URL
	}
	sourceURL := item.Link
	if sourceURL == "" {
		sourceURL = "https://www.pinterest.com/pin/" + item.ID + "/"
	}
	return models.InspirationItem{
		PinID:       item.ID,
		BoardID:     item.BoardID,
		ImageURL:    imageURL,
		Title:       item.Title,
		Description: item.Description,
		Tags:        tags,
		SourceURL:   sourceURL,
	}
}

// categoryKeywords maps text fragments to catalog categories; first match
// wins, so more specific fragments come first.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"faucet", "faucets"},
	{"sink", "sinks"},
	{"countertop", "countertops"},
	{"counter", "countertops"},
	{"cabinet", "cabinets"},
	{"backsplash", "backsplash"},
	{"tile", "backsplash"},
	{"floor", "flooring"},
	{"light", "lighting"},
	{"mirror", "mirrors"},
	{"hardware", "hardware"},
	{"knob", "hardware"},
	{"pull", "hardware"},
	{"appliance", "appliances"},
	{"range", "appliances"},
	{"refrigerator", "appliances"},
	{"shower", "shower"},
	{"tub", "tub"},
	{"bath", "tub"},
	{"vanity", "vanity"},
	{"toilet", "toilet"},
}

// GuessCategory maps free text to a catalog category, defaulting to
// "fixtures".
func GuessCategory(text string) string {
	lower := strings.ToLower(text)
	for _, kc := range categoryKeywords {
		if strings.Contains(lower, kc.keyword) {
			return kc.category
		}
	}
	return "fixtures"
}

// GuessBrand takes the first two words of a title; pin titles usually lead
// with the brand.
func GuessBrand(title string) string {
	words := strings.Fields(title)
	switch {
	case len(words) >= 2:
		return strings.Join(words[:2], " ")
	case len(words) == 1:
		return words[0]
	default:
		return "Unknown"
	}
}

func orUntitled(title string) string {
	if title == "" {
		return "Untitled"
	}
	return title
}
