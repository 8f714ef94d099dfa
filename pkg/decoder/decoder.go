// Package decoder turns base64 payloads and raw bytes into raster images
// ready for a recognizer.
package decoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned when a payload decodes to zero bytes.
var ErrEmptyImage = errors.New("image data is empty")

// Decoder decodes and normalises images
type Decoder struct {
	config Config
}

// Config holds configuration for the decoder
type Config struct {
	SupportedFormats []string
	// MinDimension and MaxDimension bound each side in pixels. Zero disables the check.
	MinDimension int
	MaxDimension int
}

// DefaultConfig returns the decoder defaults
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"png", "jpeg", "gif", "webp", "bmp", "tiff"},
		MinDimension:     1,
		MaxDimension:     8192,
	}
}

// New creates a new Decoder with default configuration
func New() *Decoder {
	return &Decoder{config: DefaultConfig()}
}

// NewWithConfig creates a new Decoder with custom configuration
func NewWithConfig(config Config) *Decoder {
	return &Decoder{config: config}
}

// DecodeBase64 decodes a base64 payload. A leading data URL header is
// stripped; padded, unpadded and URL-safe alphabets are accepted.
func (d *Decoder) DecodeBase64(s string) ([]byte, error) {
	s = StripDataURL(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var alt []byte
		var altErr error
		for _, enc := range []*base64.Encoding{base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
			if alt, altErr = enc.DecodeString(s); altErr == nil {
				break
			}
		}
		if altErr != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		data = alt
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// Decode decodes raw image bytes and returns the image with its format name
func (d *Decoder) Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// x/image/webp only covers part of the container; try libwebp
		if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			img, format, err = wimg, "webp", nil
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	if !d.isFormatSupported(format) {
		return nil, "", fmt.Errorf("unsupported image format: %s", format)
	}

	if err := d.ValidateImage(img); err != nil {
		return nil, "", err
	}

	return img, format, nil
}

// DecodeRGB decodes bytes and normalises the result to RGB
func (d *Decoder) DecodeRGB(data []byte) (*image.NRGBA, error) {
	img, _, err := d.Decode(data)
	if err != nil {
		return nil, err
	}
	return ToRGB(img), nil
}

// LoadImage loads an image from file
func (d *Decoder) LoadImage(filepath string) (image.Image, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	img, _, err := d.Decode(data)
	return img, err
}

// ToRGB returns a copy of img with three colour channels and a fully opaque
// alpha channel. Colour values are kept as-is; alpha is discarded, not
// composited.
func ToRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// StripDataURL removes a "data:<mime>;base64," prefix if present
func StripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); i != -1 && strings.HasPrefix(strings.ToLower(s[:i]), "data:") {
		return s[i+1:]
	}
	return s
}

func (d *Decoder) isFormatSupported(format string) bool {
	if len(d.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range d.config.SupportedFormats {
		if strings.EqualFold(format, supported) || (strings.EqualFold(supported, "jpg") && format == "jpeg") {
			return true
		}
	}
	return false
}

// ValidateImage checks the image against the configured dimension bounds
func (d *Decoder) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if lo := d.config.MinDimension; lo > 0 && (w < lo || h < lo) {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)", w, h, lo)
	}
	if hi := d.config.MaxDimension; hi > 0 && (w > hi || h > hi) {
		return fmt.Errorf("image too large: %dx%d (maximum: %d)", w, h, hi)
	}
	return nil
}
