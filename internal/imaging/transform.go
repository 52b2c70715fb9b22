// Package imaging implements the page transform stage: decoding, spread
// handling, upscaling, device fitting, and JPEG re-encoding.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"

	// Register decoders for the formats accepted by the extractor.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"comic2kindle/internal/devices"
	"comic2kindle/internal/logging"
	"comic2kindle/internal/pages"
	"comic2kindle/internal/upscale"
)

// spreadAspectThreshold flags landscape pages as double-page spreads when
// width exceeds height by this ratio.
const spreadAspectThreshold = 1.3

// pageSizeOverhead is the per-page packaging overhead added to each page's
// size estimate.
const pageSizeOverhead = 500

// UpscaleMethod selects how undersized pages are enlarged.
type UpscaleMethod string

const (
	UpscaleNone     UpscaleMethod = "none"
	UpscaleLanczos  UpscaleMethod = "lanczos"
	UpscaleExternal UpscaleMethod = "external"
)

// TransformOptions controls the per-page pipeline.
//
// SplitSpreads takes precedence over RotateSpreads: when both are set a
// detected spread is split into two upright halves and rotation applies
// only to spreads left whole.
type TransformOptions struct {
	Profile       string                 `json:"device_profile"`
	CustomWidth   int                    `json:"custom_width,omitempty"`
	CustomHeight  int                    `json:"custom_height,omitempty"`
	UpscaleMethod UpscaleMethod          `json:"upscale_method"`
	DetectSpreads bool                   `json:"detect_spreads"`
	SplitSpreads  bool                   `json:"split_spreads"`
	RotateSpreads bool                   `json:"rotate_spreads"`
	FillScreen    bool                   `json:"fill_screen"`
	Quality       int                    `json:"quality"`
	Direction     pages.ReadingDirection `json:"direction"`
}

// DefaultTransformOptions returns the pipeline defaults used when a job
// does not override them.
func DefaultTransformOptions() TransformOptions {
	return TransformOptions{
		Profile:       "kindle_paperwhite_5",
		UpscaleMethod: UpscaleLanczos,
		DetectSpreads: true,
		RotateSpreads: true,
		Quality:       85,
		Direction:     pages.DirectionRightToLeft,
	}
}

// Transformer applies TransformOptions to pages. External upscaling is
// delegated to the configured Upscaler and falls back to Lanczos with a
// warning when the tool is unavailable.
type Transformer struct {
	opts         TransformOptions
	targetWidth  int
	targetHeight int
	external     upscale.Upscaler
	lanczos      upscale.Lanczos
	logger       *slog.Logger
}

// NewTransformer builds a transformer for one document's worth of options.
func NewTransformer(opts TransformOptions, external upscale.Upscaler, logger *slog.Logger) *Transformer {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	width, height := devices.Dimensions(opts.Profile, opts.CustomWidth, opts.CustomHeight)
	return &Transformer{
		opts:         opts,
		targetWidth:  width,
		targetHeight: height,
		external:     external,
		logger:       logging.NewComponentLogger(logger, "imaging"),
	}
}

// TargetDimensions returns the resolved device dimensions.
func (t *Transformer) TargetDimensions() (int, int) {
	return t.targetWidth, t.targetHeight
}

// Transform converts one raw page into one or two finished pages. Spread
// splitting yields two; everything else yields one. The returned warning
// is non-empty when a degraded path was taken.
func (t *Transformer) Transform(ctx context.Context, page *pages.Page) ([]*pages.Page, string, error) {
	img, _, err := image.Decode(bytes.NewReader(page.Data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", page.Name, err)
	}

	bounds := img.Bounds()
	isSpread := t.opts.DetectSpreads &&
		float64(bounds.Dx()) > spreadAspectThreshold*float64(bounds.Dy())

	var warning string
	if isSpread && t.opts.SplitSpreads {
		left := imaging.Crop(img, image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Min.X+bounds.Dx()/2, bounds.Max.Y))
		right := imaging.Crop(img, image.Rect(bounds.Min.X+bounds.Dx()/2, bounds.Min.Y, bounds.Max.X, bounds.Max.Y))

		halves := []struct {
			img  image.Image
			side pages.SpreadHalf
		}{{left, pages.SpreadLeft}, {right, pages.SpreadRight}}
		if t.opts.Direction == pages.DirectionRightToLeft {
			halves[0], halves[1] = halves[1], halves[0]
		}

		out := make([]*pages.Page, 0, 2)
		for _, half := range halves {
			result, warn, err := t.finishPage(ctx, page, half.img)
			if err != nil {
				return nil, "", err
			}
			if warn != "" {
				warning = warn
			}
			result.IsSpread = true
			result.SpreadHalf = half.side
			out = append(out, result)
		}
		return out, warning, nil
	}

	if isSpread && t.opts.RotateSpreads {
		// Clockwise, so the right page ends up on top in portrait.
		img = imaging.Rotate270(img)
	}

	result, warning, err := t.finishPage(ctx, page, img)
	if err != nil {
		return nil, "", err
	}
	result.IsSpread = isSpread
	return []*pages.Page{result}, warning, nil
}

// finishPage runs the upscale, fit, and encode steps shared by all paths.
func (t *Transformer) finishPage(ctx context.Context, src *pages.Page, img image.Image) (*pages.Page, string, error) {
	img, warning := t.upscaleIfNeeded(ctx, img)

	if t.opts.FillScreen {
		img = imaging.Fill(img, t.targetWidth, t.targetHeight, imaging.Center, imaging.Lanczos)
	} else {
		img = shrinkToFit(img, t.targetWidth, t.targetHeight)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.opts.Quality)); err != nil {
		return nil, "", fmt.Errorf("encode %s: %w", src.Name, err)
	}

	bounds := img.Bounds()
	return &pages.Page{
		DocumentID:    src.DocumentID,
		Index:         src.Index,
		Name:          src.Name,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		Data:          buf.Bytes(),
		EstimatedSize: int64(buf.Len()) + pageSizeOverhead,
	}, warning, nil
}

func (t *Transformer) upscaleIfNeeded(ctx context.Context, img image.Image) (image.Image, string) {
	if t.opts.UpscaleMethod == UpscaleNone {
		return img, ""
	}
	bounds := img.Bounds()
	scale := upscale.Scale(bounds.Dx(), bounds.Dy(), t.targetWidth, t.targetHeight)
	if scale <= 1 {
		return img, ""
	}

	if t.opts.UpscaleMethod == UpscaleExternal && t.external != nil {
		result, err := t.external.Upscale(ctx, img, scale)
		if err == nil {
			return result, ""
		}
		t.logger.Warn("external upscaler unavailable, using lanczos",
			logging.Error(err))
		result, _ = t.lanczos.Upscale(ctx, img, scale)
		return result, "external upscaler unavailable, pages enlarged with lanczos instead"
	}

	result, _ := t.lanczos.Upscale(ctx, img, scale)
	return result, ""
}

// shrinkToFit downscales to fit within the target box, never enlarging.
func shrinkToFit(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= width && bounds.Dy() <= height {
		return img
	}
	return imaging.Fit(img, width, height, imaging.Lanczos)
}
