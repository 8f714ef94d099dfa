package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/latex-ocr/pkg/cropper"
)

// Options control how an image is encoded before it is sent to a model backend
type Options struct {
	Format  string // png|jpg|webp
	MaxDim  int    // max long side in px, 0 = original
	Quality int    // JPEG/WebP quality (1-100)
	Trim    bool   // crop blank margins around the formula first
}

// DefaultOptions keeps formulas lossless; thin strokes suffer under JPEG.
func DefaultOptions() Options {
	return Options{Format: "png", MaxDim: 1536, Quality: 90}
}

// Processor handles image transport encoding
type Processor struct {
	opts    Options
	cropper *cropper.ContentCropper
}

// NewProcessor creates a new image processor with default options
func NewProcessor() *Processor {
	return &Processor{opts: DefaultOptions(), cropper: cropper.New()}
}

// NewProcessorWithOptions creates a processor with custom options
func NewProcessorWithOptions(opts Options) *Processor {
	if opts.Format == "" {
		opts.Format = "png"
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	return &Processor{opts: opts, cropper: cropper.New()}
}

// MIMEType returns the content type of the encoded payload
func (p *Processor) MIMEType() string {
	switch strings.ToLower(p.opts.Format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// Encode trims and downscales img if configured and encodes it in the
// configured format
func (p *Processor) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	if p.opts.Trim {
		cropped, err := p.cropper.Crop(img)
		if err != nil {
			return nil, fmt.Errorf("trim: %w", err)
		}
		img = cropped
	}
	if maxDim := p.opts.MaxDim; maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(p.opts.Format) {
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true, Quality: float32(p.opts.Quality)}); err != nil {
			return nil, fmt.Errorf("webp encode: %w", err)
		}
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.opts.Quality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
	default:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("png encode: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// PrepareImageForModel encodes img and returns it as standard base64
func (p *Processor) PrepareImageForModel(img image.Image) (string, error) {
	data, err := p.Encode(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURL returns img as a data URL, the form OpenAI-compatible servers expect
func (p *Processor) DataURL(img image.Image) (string, error) {
	b64, err := p.PrepareImageForModel(img)
	if err != nil {
		return "", err
	}
	return "data:" + p.MIMEType() + ";base64," + b64, nil
}
