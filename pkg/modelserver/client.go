// Package modelserver talks to a sidecar process that hosts a dedicated
// image-to-LaTeX model (pix2tex or similar) behind a small JSON API:
//
//	POST <url>       {"image_base64": "...", "prompt": "..."} -> {"text": "..."}
//	GET  <health>    200 once the model is loaded
package modelserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/latex-ocr/pkg/processing"
	"github.com/menta2k/latex-ocr/pkg/types"
)

// Config describes how to reach the sidecar
type Config struct {
	InferURL       string
	HealthURL      string // defaults to <scheme://host>/health
	AuthToken      string
	Prompt         string
	RequestTimeout time.Duration
	MaxConns       int
}

// Client is a recognizer backed by the sidecar
type Client struct {
	cfg       Config
	httpc     *http.Client
	processor *processing.Processor
}

// New creates a client for the sidecar described by cfg
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.InferURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid infer URL %q", cfg.InferURL)
	}
	if cfg.HealthURL == "" {
		cfg.HealthURL = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/health"}).String()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.MaxConns,
		MaxIdleConnsPerHost: cfg.MaxConns,
		MaxIdleConns:        cfg.MaxConns * 2,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		cfg:       cfg,
		httpc:     &http.Client{Transport: transport},
		processor: processing.NewProcessor(),
	}, nil
}

// WithProcessor overrides how images are encoded for transport
func (c *Client) WithProcessor(p *processing.Processor) *Client {
	if p != nil {
		c.processor = p
	}
	return c
}

// Timeout returns the per-request deadline
func (c *Client) Timeout() time.Duration { return c.cfg.RequestTimeout }

func (c *Client) Name() string { return "http/" + c.cfg.InferURL }

// Recognize posts the image to the sidecar. Empty text is a valid answer.
func (c *Client) Recognize(ctx context.Context, img image.Image) (string, error) {
	imageB64, err := c.processor.PrepareImageForModel(img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	body, err := json.Marshal(types.InferenceRequest{
		Prompt:   c.cfg.Prompt,
		ImageB64: imageB64,
		Format:   strings.TrimPrefix(c.processor.MIMEType(), "image/"),
	})
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	request, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.InferURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		request.Header.Set("X-Internal-Token", c.cfg.AuthToken)
	}

	resp, err := c.httpc.Do(request)
	if err != nil {
		return "", fmt.Errorf("model server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var parsed types.InferenceResponse
		if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
			return "", fmt.Errorf("inference failed: status %d: %s", resp.StatusCode, parsed.Error)
		}
		return "", fmt.Errorf("inference failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed types.InferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("inference response: %w", err)
	}
	if parsed.Error != "" {
		return "", errors.New(parsed.Error)
	}
	return strings.TrimSpace(parsed.Text), nil
}

// Warmup polls the health endpoint until it answers 200 or ctx expires.
// The sidecar typically needs a while to load model weights.
func (c *Client) Warmup(ctx context.Context) error {
	if c.ping(ctx) == nil {
		return nil
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return fmt.Errorf("timeout waiting for model server: %w", lastErr)
		case <-ticker.C:
			if lastErr = c.ping(ctx); lastErr == nil {
				return nil
			}
		}
	}
}

func (c *Client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}
