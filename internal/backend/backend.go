// Package backend builds the configured recognizer.
package backend

import (
	"context"
	"fmt"

	"github.com/menta2k/latex-ocr/internal/config"
	"github.com/menta2k/latex-ocr/pkg/gemini"
	"github.com/menta2k/latex-ocr/pkg/llamacpp"
	"github.com/menta2k/latex-ocr/pkg/modelserver"
	"github.com/menta2k/latex-ocr/pkg/ollama"
	"github.com/menta2k/latex-ocr/pkg/processing"
	"github.com/menta2k/latex-ocr/pkg/recognizer"
)

// New constructs the recognizer selected by cfg.Backend. The result is
// wrapped with recognizer.Limit when MaxConcurrency is set.
func New(ctx context.Context, cfg config.RecognizerConfig) (recognizer.Recognizer, error) {
	processor := processing.NewProcessorWithOptions(processing.Options{
		Format:  cfg.SendFormat,
		MaxDim:  cfg.SendSize,
		Quality: cfg.SendQuality,
		Trim:    cfg.SendTrim,
	})

	if cfg.Backend == "" {
		cfg.Backend = "http"
	}

	var (
		rec recognizer.Recognizer
		err error
	)
	switch cfg.Backend {
	case "http":
		var c *modelserver.Client
		c, err = modelserver.New(modelserver.Config{
			InferURL:       cfg.URL,
			AuthToken:      cfg.APIKey,
			Prompt:         cfg.Prompt,
			RequestTimeout: cfg.Timeout(),
			MaxConns:       cfg.MaxConcurrency,
		})
		if err == nil {
			rec = c.WithProcessor(processor)
		}
	case "ollama":
		var c *ollama.Client
		c, err = ollama.NewClient(cfg.URL, cfg.Model)
		if err == nil {
			rec = c.WithPrompt(cfg.Prompt).WithProcessor(processor).WithTimeout(cfg.Timeout())
		}
	case "llamacpp":
		var c *llamacpp.Client
		c, err = llamacpp.NewClient(cfg.URL, cfg.Model)
		if err == nil {
			rec = c.WithPrompt(cfg.Prompt).WithAPIKey(cfg.APIKey).WithProcessor(processor).WithTimeout(cfg.Timeout())
		}
	case "gemini":
		var e *gemini.Engine
		e, err = gemini.New(ctx, cfg.APIKey, cfg.Model)
		if err == nil {
			rec = e.WithPrompt(cfg.Prompt).WithProcessor(processor).WithTimeout(cfg.Timeout())
		}
	default:
		return nil, fmt.Errorf("unknown backend: %s (use one of %v)", cfg.Backend, config.Backends)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s recognizer: %w", cfg.Backend, err)
	}

	return recognizer.Limit(rec, cfg.MaxConcurrency), nil
}
