package imaging

import (
	"bytes"
	"context"
	"image"
	"testing"

	"comic2kindle/internal/pages"
	"comic2kindle/internal/testsupport"
)

func rawPage(t *testing.T, name string, index, width, height int) *pages.Page {
	t.Helper()
	return &pages.Page{
		DocumentID: "doc",
		Index:      index,
		Name:       name,
		Data:       testsupport.JPEGPage(t, width, height),
	}
}

func TestTransformPortraitPageShrinksToFit(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.Profile = "kindle_basic" // 600x800
	opts.UpscaleMethod = UpscaleNone
	tr := NewTransformer(opts, nil, nil)

	out, warning, err := tr.Transform(context.Background(), rawPage(t, "p1.jpg", 0, 1200, 1800))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if warning != "" {
		t.Fatalf("unexpected warning: %s", warning)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 page, got %d", len(out))
	}
	if out[0].Width > 600 || out[0].Height > 800 {
		t.Fatalf("page exceeds target: %dx%d", out[0].Width, out[0].Height)
	}
	if out[0].IsSpread {
		t.Fatal("portrait page flagged as spread")
	}
	if out[0].EstimatedSize != out[0].Size()+pageSizeOverhead {
		t.Fatalf("estimate %d does not match data length %d plus overhead", out[0].EstimatedSize, out[0].Size())
	}
}

func TestTransformSmallPageNotEnlargedWithoutUpscale(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.UpscaleMethod = UpscaleNone
	tr := NewTransformer(opts, nil, nil)

	out, _, err := tr.Transform(context.Background(), rawPage(t, "p1.jpg", 0, 400, 600))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out[0].Width != 400 || out[0].Height != 600 {
		t.Fatalf("small page should keep its size, got %dx%d", out[0].Width, out[0].Height)
	}
}

func TestTransformLanczosUpscaleReachesTarget(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.Profile = "kindle_basic"
	opts.UpscaleMethod = UpscaleLanczos
	tr := NewTransformer(opts, nil, nil)

	out, _, err := tr.Transform(context.Background(), rawPage(t, "p1.jpg", 0, 300, 400))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out[0].Width != 600 || out[0].Height != 800 {
		t.Fatalf("expected exact 600x800 after upscale+fit, got %dx%d", out[0].Width, out[0].Height)
	}
}

func TestTransformSpreadRotation(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.Profile = "kindle_basic"
	opts.UpscaleMethod = UpscaleNone
	opts.SplitSpreads = false
	opts.RotateSpreads = true
	tr := NewTransformer(opts, nil, nil)

	// 1600x1000 is wider than 1.3x height, so it is a spread.
	out, _, err := tr.Transform(context.Background(), rawPage(t, "spread.jpg", 0, 1600, 1000))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 rotated page, got %d", len(out))
	}
	if !out[0].IsSpread {
		t.Fatal("spread not flagged")
	}
	if out[0].Width >= out[0].Height {
		t.Fatalf("rotated spread should be portrait, got %dx%d", out[0].Width, out[0].Height)
	}
}

func TestTransformSpreadSplitRightToLeft(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.Profile = "kindle_basic"
	opts.UpscaleMethod = UpscaleNone
	opts.SplitSpreads = true
	opts.RotateSpreads = false
	opts.Direction = pages.DirectionRightToLeft
	tr := NewTransformer(opts, nil, nil)

	// JPEGPage paints the left half dark and the right half light.
	out, _, err := tr.Transform(context.Background(), rawPage(t, "spread.jpg", 3, 1600, 1000))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 halves, got %d", len(out))
	}
	if out[0].SpreadHalf != pages.SpreadRight || out[1].SpreadHalf != pages.SpreadLeft {
		t.Fatalf("right-to-left split must emit right half first, got %s then %s", out[0].SpreadHalf, out[1].SpreadHalf)
	}
	for _, half := range out {
		if !half.IsSpread {
			t.Fatal("split halves must carry the spread flag")
		}
		if half.Index != 3 {
			t.Fatalf("halves must keep the source index, got %d", half.Index)
		}
	}

	// The right half of the synthetic spread is the light one.
	img, _, err := image.Decode(bytes.NewReader(out[0].Data))
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := img.At(img.Bounds().Dx()/2, img.Bounds().Dy()/2).RGBA()
	if r>>8 < 0x80 {
		t.Fatalf("first emitted half should be the light right page, got shade %#x", r>>8)
	}
}

func TestTransformSpreadSplitLeftToRight(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.UpscaleMethod = UpscaleNone
	opts.SplitSpreads = true
	opts.RotateSpreads = false
	opts.Direction = pages.DirectionLeftToRight
	tr := NewTransformer(opts, nil, nil)

	out, _, err := tr.Transform(context.Background(), rawPage(t, "spread.jpg", 0, 1600, 1000))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out[0].SpreadHalf != pages.SpreadLeft || out[1].SpreadHalf != pages.SpreadRight {
		t.Fatalf("left-to-right split must emit left half first, got %s then %s", out[0].SpreadHalf, out[1].SpreadHalf)
	}
}

func TestTransformFillScreenExactDimensions(t *testing.T) {
	opts := DefaultTransformOptions()
	opts.Profile = "kindle_basic"
	opts.UpscaleMethod = UpscaleNone
	opts.FillScreen = true
	tr := NewTransformer(opts, nil, nil)

	out, _, err := tr.Transform(context.Background(), rawPage(t, "p1.jpg", 0, 900, 1000))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out[0].Width != 600 || out[0].Height != 800 {
		t.Fatalf("fill mode must produce exact target dimensions, got %dx%d", out[0].Width, out[0].Height)
	}
}

func TestTransformUndecodablePage(t *testing.T) {
	tr := NewTransformer(DefaultTransformOptions(), nil, nil)
	_, _, err := tr.Transform(context.Background(), &pages.Page{Name: "junk.jpg", Data: []byte("not an image")})
	if err == nil {
		t.Fatal("expected decode error")
	}
}
