// Package recognizer defines the contract between the service and the
// pretrained image-to-LaTeX model, wherever it runs.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"golang.org/x/sync/semaphore"
)

// Recognizer maps a raster image to LaTeX markup.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// Warmer is implemented by recognizers that need a readiness check (model
// loaded, server reachable) before they can serve requests.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Namer is implemented by recognizers that can report the backend and model
// they talk to.
type Namer interface {
	Name() string
}

// Func adapts a plain function to the Recognizer interface.
type Func func(ctx context.Context, img image.Image) (string, error)

// Recognize calls f(ctx, img).
func (f Func) Recognize(ctx context.Context, img image.Image) (string, error) {
	return f(ctx, img)
}

// Static returns a recognizer that answers every image with text.
func Static(text string) Recognizer {
	return Func(func(ctx context.Context, _ image.Image) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return text, nil
	})
}

// Warmup runs r's readiness check if it has one.
func Warmup(ctx context.Context, r Recognizer) error {
	if w, ok := r.(Warmer); ok {
		return w.Warmup(ctx)
	}
	return nil
}

// Name reports r's name, or "custom" for recognizers that don't implement Namer.
func Name(r Recognizer) string {
	if n, ok := r.(Namer); ok {
		return n.Name()
	}
	return "custom"
}

// Close releases r's resources if it holds any.
func Close(r Recognizer) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Limited bounds the number of concurrent Recognize calls on the wrapped
// recognizer. A limit of 1 serialises access.
type Limited struct {
	next Recognizer
	sem  *semaphore.Weighted
}

// Limit wraps r so that at most n calls run at once. n <= 0 returns r unchanged.
func Limit(r Recognizer, n int) Recognizer {
	if n <= 0 {
		return r
	}
	return &Limited{next: r, sem: semaphore.NewWeighted(int64(n))}
}

// Recognize waits for a free slot, then delegates.
func (l *Limited) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for recognizer: %w", err)
	}
	defer l.sem.Release(1)
	return l.next.Recognize(ctx, img)
}

// Warmup delegates to the wrapped recognizer.
func (l *Limited) Warmup(ctx context.Context) error {
	return Warmup(ctx, l.next)
}

// Name reports the wrapped recognizer's name.
func (l *Limited) Name() string {
	return Name(l.next)
}

// Close releases the wrapped recognizer.
func (l *Limited) Close() error {
	return Close(l.next)
}

// ErrNotConfigured is returned by backends constructed without a usable endpoint.
var ErrNotConfigured = errors.New("recognizer not configured")

// DefaultPrompt is sent to general-purpose vision models along with the image.
const DefaultPrompt = `Transcribe the mathematical expression in this image into LaTeX.
Reply with the LaTeX source only: no $ or \[ delimiters, no code fences, no explanations.
If the image contains no mathematics, reply with an empty string.`
