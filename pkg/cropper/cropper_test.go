package cropper

import (
	"image"
	"image/color"
	"testing"
)

// createTestImage draws a dark block on a white page
func createTestImage(width, height int, ink image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (image.Point{x, y}).In(ink) {
				img.Set(x, y, color.RGBA{20, 20, 20, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	return img
}

func TestNew(t *testing.T) {
	cropper := New()
	if cropper == nil {
		t.Fatal("New() returned nil")
	}

	if cropper.config != DefaultConfig() {
		t.Errorf("Expected default config, got %+v", cropper.config)
	}
}

func TestDetectContent(t *testing.T) {
	img := createTestImage(200, 100, image.Rect(50, 40, 150, 60))

	region, ok := New().DetectContent(img)
	if !ok {
		t.Fatal("Expected content to be detected")
	}

	if region.X != 50 || region.Y != 40 || region.Width != 100 || region.Height != 20 {
		t.Errorf("Unexpected region %+v", region)
	}

	if region.Area() != 2000 {
		t.Errorf("Expected area 2000, got %d", region.Area())
	}

	if region.Score <= 0 || region.Score >= 1 {
		t.Errorf("Score out of range: %f", region.Score)
	}
}

func TestDetectContentBlank(t *testing.T) {
	img := createTestImage(50, 50, image.Rectangle{})

	if _, ok := New().DetectContent(img); ok {
		t.Error("Expected no content in a blank image")
	}
}

func TestCrop(t *testing.T) {
	img := createTestImage(200, 100, image.Rect(50, 40, 150, 60))
	cropper := NewWithConfig(CropConfig{PaddingRatio: 0, MinPadding: 10, Threshold: 0.25})

	out, err := cropper.Crop(img)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	b := out.Bounds()
	if b.Dx() != 120 || b.Dy() != 40 {
		t.Errorf("Expected 120x40, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestCropClampsToImage(t *testing.T) {
	img := createTestImage(60, 30, image.Rect(2, 2, 58, 28))

	out, err := New().Crop(img)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	if out != img {
		t.Error("Expected image to be returned unchanged when padding covers it")
	}
}

func TestCropBlank(t *testing.T) {
	img := createTestImage(40, 40, image.Rectangle{})

	out, err := New().Crop(img)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	if out != img {
		t.Error("Expected blank image to be returned unchanged")
	}
}

func TestCropNil(t *testing.T) {
	if _, err := New().Crop(nil); err == nil {
		t.Error("Expected error for nil image")
	}
}

func BenchmarkDetectContent(b *testing.B) {
	img := createTestImage(800, 200, image.Rect(100, 50, 700, 150))
	cropper := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cropper.DetectContent(img)
	}
}
