// Package assets turns one raw product image into a set of studio-ready
// derived assets: a background-removed cutout, a seamless texture tile for
// surface categories, and a thumbnail.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/disintegration/imaging"

	"catalog-ingestion/internal/models"
	"catalog-ingestion/internal/telemetry"
)

const (
	minDimension        = 100
	brightnessThreshold = 240
	tileCropMax         = 512
	tileSize            = 256
	thumbSize           = 256
	liveEligibleScore   = 40
)

// surfaceCategories are the categories that get a texture tile: anything a
// renderer would repeat across a surface.
var surfaceCategories = map[string]struct{}{
	"countertops": {},
	"backsplash":  {},
	"flooring":    {},
	"cabinets":    {},
}

// Catalog is the slice of the catalog store the pipeline reads and writes.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (models.Product, error)
	PrimaryImage(ctx context.Context, productID string) (models.ProductImage, bool, error)
	InsertAsset(ctx context.Context, a models.Asset) error
}

// Uploader stores asset bytes addressed by (productID, filename) and
// returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, productID, filename string, data []byte) (string, error)
}

// Result is the outcome of preparing one product. Rejection is a normal
// terminal outcome, not an error.
type Result struct {
	Assets          []models.Asset
	Rejected        bool
	RejectionReason string
}

// Pipeline prepares assets for one product at a time.
type Pipeline struct {
	catalog  Catalog
	uploader Uploader
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewPipeline builds the pipeline. uploader may be nil, in which case every
// asset is embedded as a data URI.
func NewPipeline(catalog Catalog, uploader Uploader, downloadTimeout time.Duration, maxBytes int64, logger *slog.Logger) *Pipeline {
	if downloadTimeout == 0 {
		downloadTimeout = 30 * time.Second
	}
	if maxBytes == 0 {
		maxBytes = 25 * 1024 * 1024
	}
	return &Pipeline{
		catalog:  catalog,
		uploader: uploader,
		client:   &http.Client{Timeout: downloadTimeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Prepare runs the full pipeline for one product id. Errors are reserved
// for store failures; everything imaging-related resolves to a rejection.
func (p *Pipeline) Prepare(ctx context.Context, productID string) (Result, error) {
	product, err := p.catalog.GetProduct(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("load product: %w", err)
	}

	primary, ok, err := p.catalog.PrimaryImage(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("load primary image: %w", err)
	}
	if !ok || primary.ImageURL == "" {
		return reject("no primary image"), nil
	}

	data, err := p.download(ctx, primary.ImageURL)
	if err != nil {
		// No retry here: the queue retries the whole job if the handler
		// chooses to surface this, and the pipeline chooses not to.
		return reject(fmt.Sprintf("download failed: %v", err)), nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return reject(fmt.Sprintf("decode failed: %v", err)), nil
	}
	width := src.Bounds().Dx()
	height := src.Bounds().Dy()

	if width < minDimension || height < minDimension {
		return reject("image too small"), nil
	}

	if reason := lifestyleRejection(width, height); reason != "" {
		// The heuristic rejection leaves a marker asset so the scheduler
		// does not re-enqueue the product every cycle.
		score := 0
		marker := models.Asset{
			ProductID:       productID,
			AssetType:       models.AssetThumbnail,
			AssetURL:        primary.ImageURL,
			PoseScore:       &score,
			IsLiveEligible:  false,
			RejectionReason: &reason,
		}
		if err := p.catalog.InsertAsset(ctx, marker); err != nil {
			return Result{}, fmt.Errorf("store rejection marker: %w", err)
		}
		telemetry.AssetRejections.Inc()
		return Result{Rejected: true, RejectionReason: reason}, nil
	}

	var out []models.Asset

	cutout, err := encodePNG(removeBackground(src))
	if err != nil {
		return Result{}, fmt.Errorf("encode cutout: %w", err)
	}
	score := PoseScore(width, height)
	out = append(out, models.Asset{
		ProductID:      productID,
		AssetType:      models.AssetCutout,
		AssetURL:       p.upload(ctx, productID, "cutout.png", cutout),
		PoseScore:      &score,
		IsLiveEligible: score >= liveEligibleScore,
	})

	if _, surface := surfaceCategories[product.Category]; surface {
		tile, err := encodePNG(textureTile(src))
		if err != nil {
			return Result{}, fmt.Errorf("encode texture tile: %w", err)
		}
		out = append(out, models.Asset{
			ProductID:      productID,
			AssetType:      models.AssetTextureTile,
			AssetURL:       p.upload(ctx, productID, "texture_tile.png", tile),
			IsLiveEligible: true,
		})
	}

	thumb, err := encodePNG(imaging.Fill(src, thumbSize, thumbSize, imaging.Center, imaging.Lanczos))
	if err != nil {
		return Result{}, fmt.Errorf("encode thumbnail: %w", err)
	}
	out = append(out, models.Asset{
		ProductID:      productID,
		AssetType:      models.AssetThumbnail,
		AssetURL:       p.upload(ctx, productID, "thumbnail.png", thumb),
		IsLiveEligible: true,
	})

	for _, a := range out {
		if err := p.catalog.InsertAsset(ctx, a); err != nil {
			return Result{}, fmt.Errorf("store asset %s: %w", a.AssetType, err)
		}
	}
	telemetry.AssetsPrepared.Add(float64(len(out)))
	return Result{Assets: out}, nil
}

func reject(reason string) Result {
	return Result{Rejected: true, RejectionReason: reason}
}

// lifestyleRejection filters panoramic or contextual photos that make poor
// isolated product assets.
func lifestyleRejection(width, height int) string {
	ratio := float64(width) / float64(height)
	if ratio > 3 || ratio < 1.0/3 {
		return "extreme aspect ratio, likely a lifestyle or panoramic shot"
	}
	return ""
}

// PoseScore estimates how usable an image is as an isolated product asset,
// on a 0-100 scale, from aspect ratio and resolution alone. The thresholds
// are placeholders for a future learned classifier and must stay put until
// that replacement lands.
func PoseScore(width, height int) int {
	score := 50

	longer, shorter := width, height
	if shorter > longer {
		longer, shorter = shorter, longer
	}
	ratio := float64(longer) / float64(shorter)
	switch {
	case ratio <= 1.3:
		score += 20
	case ratio <= 1.8:
		score += 10
	default:
		score -= 10
	}

	megapixels := float64(width) * float64(height) / 1e6
	switch {
	case megapixels >= 2:
		score += 15
	case megapixels >= 1:
		score += 10
	case megapixels >= 0.5:
		score += 5
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// removeBackground marks near-white pixels transparent. This is a
// threshold stand-in for real segmentation, kept deliberately simple as an
// extension point.
func removeBackground(src image.Image) *image.NRGBA {
	img := imaging.Clone(src)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		r := int(img.Pix[i])
		g := int(img.Pix[i+1])
		b := int(img.Pix[i+2])
		if (r+g+b)/3 > brightnessThreshold {
			img.Pix[i+3] = 0
		}
	}
	return img
}

// textureTile crops the central square, downscales it, and composes a 2x2
// repeat so a single sample reads as a seamless texture.
func textureTile(src image.Image) *image.NRGBA {
	b := src.Bounds()
	crop := b.Dx()
	if b.Dy() < crop {
		crop = b.Dy()
	}
	if crop > tileCropMax {
		crop = tileCropMax
	}

	sample := imaging.Resize(imaging.CropCenter(src, crop, crop), tileSize, tileSize, imaging.Lanczos)

	tile := imaging.New(2*tileSize, 2*tileSize, color.NRGBA{})
	for _, pt := range []image.Point{{0, 0}, {tileSize, 0}, {0, tileSize}, {tileSize, tileSize}} {
		tile = imaging.Paste(tile, sample, pt)
	}
	return tile
}

func encodePNG(img image.Image) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// upload stores the asset bytes, falling back to an inline data URI when
// the sink is unavailable.
func (p *Pipeline) upload(ctx context.Context, productID, filename string, data []byte) string {
	if p.uploader != nil {
		url, err := p.uploader.Upload(ctx, productID, filename, data)
		if err == nil {
			return url
		}
		p.logger.Warn("asset upload failed, embedding data uri",
			"product_id", productID, "filename", filename, "error", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func (p *Pipeline) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return nil, fmt.Errorf("image too large (>%d bytes)", p.maxBytes)
	}
	return body, nil
}
