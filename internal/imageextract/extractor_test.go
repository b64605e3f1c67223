package imageextract

import (
	"context"
	"image"
	"os"
	"testing"
)

func TestDownscaleToFitNoOpWhenWithinBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	out := downscaleToFit(img, 200, 200)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Fatalf("expected no-op, got %v", out.Bounds())
	}
}

func TestDownscaleToFitPreservesAspectRatio(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 500))
	out := downscaleToFit(img, 200, 1000)
	if out.Bounds().Dx() != 200 {
		t.Fatalf("expected width 200, got %d", out.Bounds().Dx())
	}
	if out.Bounds().Dy() != 100 {
		t.Fatalf("expected height 100 to preserve aspect ratio, got %d", out.Bounds().Dy())
	}
}

func TestIsOCRBinaryMissingDetectsLookPathFailure(t *testing.T) {
	_, err := os.Stat("/definitely/not/a/real/tesseract/binary")
	if err == nil {
		t.Skip("unexpected file exists")
	}

	ex := New(t.TempDir(), nil, "/definitely/not/a/real/tesseract/binary", nil)
	_, ocrErr := ex.runOCR(context.Background(), "nonexistent.png", "eng")
	if ocrErr == nil {
		t.Fatal("expected error invoking missing binary")
	}
	if !isOCRBinaryMissing(ocrErr) {
		t.Fatalf("expected missing-binary classification, got %v", ocrErr)
	}
}
