package upscale

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"

	"comic2kindle/internal/logging"
	"comic2kindle/internal/services"
)

var commandContext = exec.CommandContext

// RealESRGAN shells out to realesrgan-ncnn-vulkan via PNG temp files. The
// binary only supports integer factors 2, 3, and 4; requests are rounded up
// and the result is reduced to the exact scale afterwards.
type RealESRGAN struct {
	binary string
	logger *slog.Logger

	checkOnce sync.Once
	available bool
}

// NewRealESRGAN creates an external upscaler client for the given binary.
func NewRealESRGAN(binary string, logger *slog.Logger) *RealESRGAN {
	if binary == "" {
		binary = "realesrgan-ncnn-vulkan"
	}
	return &RealESRGAN{binary: binary, logger: logging.NewComponentLogger(logger, "upscale")}
}

func (r *RealESRGAN) Name() string { return "realesrgan" }

// Available reports whether the external binary can be found. The check
// runs once and is cached for the process lifetime.
func (r *RealESRGAN) Available() bool {
	r.checkOnce.Do(func() {
		_, err := exec.LookPath(r.binary)
		r.available = err == nil
	})
	return r.available
}

func (r *RealESRGAN) Upscale(ctx context.Context, img image.Image, scale float64) (image.Image, error) {
	if scale <= 1 {
		return img, nil
	}
	if !r.Available() {
		return nil, services.Wrap(services.ErrExternalTool, "processing", r.binary, "upscaler binary not found", exec.ErrNotFound)
	}

	factor := int(math.Ceil(scale))
	if factor < 2 {
		factor = 2
	}
	if factor > 4 {
		factor = 4
	}

	scratch, err := os.MkdirTemp("", "comic2kindle-upscale-*")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "processing", r.binary, "cannot create scratch directory", err)
	}
	defer os.RemoveAll(scratch)

	inPath := filepath.Join(scratch, "in.png")
	outPath := filepath.Join(scratch, "out.png")
	if err := imaging.Save(img, inPath); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "processing", r.binary, "cannot write scratch image", err)
	}

	cmd := commandContext(ctx, r.binary,
		"-i", inPath,
		"-o", outPath,
		"-s", strconv.Itoa(factor),
		"-n", "realesr-animevideov3",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "processing", r.binary,
			fmt.Sprintf("upscaler failed: %s", firstLine(output)), err)
	}

	result, err := imaging.Open(outPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "processing", r.binary, "cannot read upscaled image", err)
	}

	// Reduce to the exact requested scale when the integer factor overshot.
	if float64(factor) > scale {
		bounds := img.Bounds()
		width := int(float64(bounds.Dx())*scale + 0.5)
		height := int(float64(bounds.Dy())*scale + 0.5)
		result = imaging.Resize(result, width, height, imaging.Lanczos)
	}
	r.logger.Debug("page upscaled externally",
		logging.String("binary", r.binary),
		logging.Int("factor", factor))
	return result, nil
}

func firstLine(output []byte) string {
	for i, c := range output {
		if c == '\n' {
			return string(output[:i])
		}
	}
	return string(output)
}
