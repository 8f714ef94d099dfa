package gemini

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/menta2k/latex-ocr/pkg/processing"
	"github.com/menta2k/latex-ocr/pkg/recognizer"
)

// Engine recognizes formulas with a Gemini model
type Engine struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	prompt    string
	processor *processing.Processor
	timeout   time.Duration
}

// DefaultTimeout applies when the caller's context has no deadline
const DefaultTimeout = 300 * time.Second

// New creates the Gemini client once; it is shared by all requests.
func New(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	model = strings.TrimSpace(model)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	m := cl.GenerativeModel(model)
	if m == nil {
		_ = cl.Close()
		return nil, fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "text/plain",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(recognizer.DefaultPrompt)},
	}

	return &Engine{
		client:    cl,
		model:     m,
		modelName: model,
		prompt:    recognizer.DefaultPrompt,
		processor: processing.NewProcessor(),
		timeout:   DefaultTimeout,
	}, nil
}

// WithPrompt overrides the instruction sent with every image
func (e *Engine) WithPrompt(prompt string) *Engine {
	if prompt != "" {
		e.prompt = prompt
		e.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
	}
	return e
}

// WithProcessor overrides how images are encoded for transport
func (e *Engine) WithProcessor(p *processing.Processor) *Engine {
	if p != nil {
		e.processor = p
	}
	return e
}

// WithTimeout overrides DefaultTimeout; zero keeps the default
func (e *Engine) WithTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Timeout returns the deadline applied to calls without one
func (e *Engine) Timeout() time.Duration { return e.timeout }

func (e *Engine) Name() string { return "gemini/" + e.modelName }

// Warmup checks the API key and model name against the models endpoint
func (e *Engine) Warmup(ctx context.Context) error {
	if _, err := e.model.Info(ctx); err != nil {
		return fmt.Errorf("gemini model %s: %w", e.modelName, err)
	}
	return nil
}

// Recognize sends the image inline and returns the cleaned LaTeX
func (e *Engine) Recognize(ctx context.Context, img image.Image) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	data, err := e.processor.Encode(img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	resp, err := e.model.GenerateContent(ctx,
		genai.Text("LaTeX only."),
		genai.Blob{MIMEType: e.processor.MIMEType(), Data: data},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return processing.SanitizeLatex(firstText(resp)), nil
}

// Close releases the underlying client
func (e *Engine) Close() error {
	return e.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
