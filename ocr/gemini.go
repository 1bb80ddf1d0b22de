package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"golang.org/x/time/rate"

	"github.com/moyoez/bill2sheet/tool"
	"github.com/moyoez/bill2sheet/types"
)

const SystemPrompt = "You are an OCR assistant that extracts structured bill data from an image of a Vietnamese VAT invoice."

const UserPrompt = `Return a JSON object with two keys: "invoice" and "items".
"invoice" describes invoice-level metadata with these keys: form_no, serial_no, invoice_no, issued_date (YYYY-MM-DD), seller_name, seller_tax_code.
"items" is an array where every element contains: item_name, unit, quantity, unit_price, total_amount, vat_rate, vat_amount.
vat_rate is a percentage number, e.g. 10 for 10%.
Use null for any value that cannot be determined. Respond with JSON only (no markdown, no code fences).`

const maxAttempts = 3

// Gemini extracts fields with a Gemini model on Vertex AI.
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter
	timeout time.Duration
}

var _ Extractor = (*Gemini)(nil)

// NewGemini connects to Vertex AI. requestsPerMinute bounds the call rate across all sessions.
func NewGemini(ctx context.Context, cfg types.VertexConfig, timeout time.Duration) (*Gemini, error) {
	if cfg.ProjectId == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewGemini: projectId and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, cfg.ProjectId, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      genai.Ptr[float32](0.1),
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Gemini{
		client:  client,
		model:   model,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 2),
		timeout: timeout,
	}, nil
}

func responseSchema() *genai.Schema {
	str := &genai.Schema{Type: genai.TypeString, Nullable: true}
	num := &genai.Schema{Type: genai.TypeNumber, Nullable: true}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"invoice": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"form_no":         str,
					"serial_no":       str,
					"invoice_no":      str,
					"issued_date":     str,
					"seller_name":     str,
					"seller_tax_code": str,
				},
			},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"item_name":    str,
						"unit":         str,
						"quantity":     num,
						"unit_price":   num,
						"total_amount": num,
						"vat_rate":     num,
						"vat_amount":   num,
					},
				},
			},
		},
		Required: []string{"invoice", "items"},
	}
}

// Extract sends the image to the model, retrying transient failures with a short backoff.
func (g *Gemini) Extract(ctx context.Context, image []byte, mimeType string) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("extract: empty image")
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("extract: %w", err)
		}
		text, err := g.generate(ctx, image, mimeType)
		if err == nil {
			return ParseResponse(text)
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrNoContent) {
			break
		}
		tool.DefaultLogger.Warnf("[OCR] Attempt %d/%d failed: %v", attempt, maxAttempts, err)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return Result{}, fmt.Errorf("extract: %w", lastErr)
}

func (g *Gemini) generate(ctx context.Context, image []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: image}, genai.Text(UserPrompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrNoContent
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", ErrNoContent
	}
	return sb.String(), nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}
