package cropper

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ContentCropper trims the empty margin around a formula so the model sees
// the ink at a useful scale
type ContentCropper struct {
	config CropConfig
}

// CropConfig holds configuration for content cropping
type CropConfig struct {
	// PaddingRatio is the margin kept around the ink, relative to its larger side
	PaddingRatio float64
	// MinPadding is the minimum margin in pixels
	MinPadding int
	// Threshold is the luminance distance from the background that counts as ink (0..1)
	Threshold float64
}

// Region represents a rectangle in image coordinates
type Region struct {
	X, Y          int
	Width, Height int
	// Score is the share of the image area covered by the region
	Score float64
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect converts the region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// DefaultConfig returns the default crop configuration
func DefaultConfig() CropConfig {
	return CropConfig{
		PaddingRatio: 0.05,
		MinPadding:   8,
		Threshold:    0.25,
	}
}

// New creates a new ContentCropper with default configuration
func New() *ContentCropper {
	return &ContentCropper{config: DefaultConfig()}
}

// NewWithConfig creates a new ContentCropper with custom configuration
func NewWithConfig(config CropConfig) *ContentCropper {
	return &ContentCropper{config: config}
}

// DetectContent finds the bounding box of everything that differs from the
// background colour. The background is taken from the image corners. ok is
// false for blank images.
func (c *ContentCropper) DetectContent(img image.Image) (Region, bool) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Region{}, false
	}

	bg := backgroundLuminance(img)
	minX, minY, maxX, maxY := width, height, -1, -1
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if math.Abs(luminance(img, x+bounds.Min.X, y+bounds.Min.Y)-bg) < c.config.Threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < 0 {
		return Region{}, false
	}

	r := Region{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
	r.Score = float64(r.Area()) / float64(width*height)
	return r, true
}

// Crop returns img trimmed to its content plus padding. Blank images are
// returned unchanged.
func (c *ContentCropper) Crop(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("invalid image: nil")
	}
	region, ok := c.DetectContent(img)
	if !ok {
		return img, nil
	}

	padded := c.pad(region, img.Bounds().Dx(), img.Bounds().Dy())
	if padded.Width == img.Bounds().Dx() && padded.Height == img.Bounds().Dy() {
		return img, nil
	}
	return imaging.Crop(img, padded.Rect().Add(img.Bounds().Min)), nil
}

func (c *ContentCropper) pad(r Region, width, height int) Region {
	p := int(math.Round(c.config.PaddingRatio * float64(max(r.Width, r.Height))))
	if p < c.config.MinPadding {
		p = c.config.MinPadding
	}
	x0, y0 := max(r.X-p, 0), max(r.Y-p, 0)
	x1, y1 := min(r.X+r.Width+p, width), min(r.Y+r.Height+p, height)
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0, Score: r.Score}
}

// luminance returns the Rec. 601 luma of a pixel in 0..1
func luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 65535.0
}

func backgroundLuminance(img image.Image) float64 {
	b := img.Bounds()
	corners := [4]float64{
		luminance(img, b.Min.X, b.Min.Y),
		luminance(img, b.Max.X-1, b.Min.Y),
		luminance(img, b.Min.X, b.Max.Y-1),
		luminance(img, b.Max.X-1, b.Max.Y-1),
	}
	// mean of the two middle values so a stroke touching one corner doesn't skew it
	for i := 1; i < len(corners); i++ {
		for j := i; j > 0 && corners[j] < corners[j-1]; j-- {
			corners[j], corners[j-1] = corners[j-1], corners[j]
		}
	}
	return (corners[1] + corners[2]) / 2
}
