package ollama

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/latex-ocr/pkg/processing"
	"github.com/menta2k/latex-ocr/pkg/recognizer"
)

// DefaultTimeout applies when the caller's context has no deadline (long for CPU inference)
const DefaultTimeout = 300 * time.Second

// Client recognizes formulas with a vision model served by Ollama
type Client struct {
	client    *api.Client
	model     string
	prompt    string
	processor *processing.Processor
	timeout   time.Duration
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}

	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q", ollamaURL)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	// Create client with the specified URL, ignoring environment
	client := api.NewClient(baseURL, http.DefaultClient)

	return &Client{
		client:    client,
		model:     model,
		prompt:    recognizer.DefaultPrompt,
		processor: processing.NewProcessor(),
		timeout:   DefaultTimeout,
	}, nil
}

// WithPrompt overrides the instruction sent with every image
func (c *Client) WithPrompt(prompt string) *Client {
	if prompt != "" {
		c.prompt = prompt
	}
	return c
}

// WithProcessor overrides how images are encoded for transport
func (c *Client) WithProcessor(p *processing.Processor) *Client {
	if p != nil {
		c.processor = p
	}
	return c
}

// WithTimeout overrides DefaultTimeout; zero keeps the default
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Timeout returns the deadline applied to calls without one
func (c *Client) Timeout() time.Duration { return c.timeout }

func (c *Client) Name() string { return "ollama/" + c.model }

// Warmup checks that the server is up and the model is pulled
func (c *Client) Warmup(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	if _, err := c.client.Show(ctx, &api.ShowRequest{Model: c.model}); err != nil {
		return fmt.Errorf("ollama model %s: %w", c.model, err)
	}
	return nil
}

// Recognize sends the image to the model and returns the cleaned LaTeX
func (c *Client) Recognize(ctx context.Context, img image.Image) (string, error) {
	// Add timeout if context doesn't have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	imgBytes, err := c.processor.Encode(img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": 0,
		},
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	return processing.SanitizeLatex(responseContent), nil
}
