// Package upscale provides the page enlargement capability used by the
// transform stage when a source image is smaller than the target screen.
package upscale

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// Upscaler enlarges an image to at least scale times its current dimensions.
type Upscaler interface {
	Name() string
	Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error)
}

// Scale returns the enlargement factor needed to cover the target
// dimensions, or 1 when the image already covers them.
func Scale(width, height, targetWidth, targetHeight int) float64 {
	if width <= 0 || height <= 0 {
		return 1
	}
	sw := float64(targetWidth) / float64(width)
	sh := float64(targetHeight) / float64(height)
	scale := sw
	if sh > scale {
		scale = sh
	}
	if scale < 1 {
		return 1
	}
	return scale
}

// Lanczos is the local resampling upscaler. It is always available and is
// the fallback when the external tool cannot run.
type Lanczos struct{}

func (Lanczos) Name() string { return "lanczos" }

func (Lanczos) Upscale(_ context.Context, img image.Image, scale float64) (image.Image, error) {
	if scale <= 1 {
		return img, nil
	}
	bounds := img.Bounds()
	width := int(float64(bounds.Dx())*scale + 0.5)
	height := int(float64(bounds.Dy())*scale + 0.5)
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}
