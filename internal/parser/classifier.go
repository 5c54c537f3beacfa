package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gikundiro/fanpay-backend/pkg/config"
)

// Classification is what the classification aid returned for one SMS.
type Classification struct {
	Amount     *int64
	Currency   string
	Reference  string
	PayerMask  string
	Confidence float64
	Model      string
}

// ClassifyRequest carries the redacted SMS text and the prompt to apply.
type ClassifyRequest struct {
	Text          string
	Prompt        string
	PromptVersion *int
}

// Classifier is the external classification aid consulted when no carrier
// template matched exactly.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
}

const defaultClassifierPrompt = "Extract the mobile money payment received in this SMS. " +
	"Return amount as an integer in francs, currency, ref, payer_mask and a confidence between 0 and 1."

// OpenAIClassifier calls the OpenAI Responses API with a strict JSON schema.
type OpenAIClassifier struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenAIClassifier(cfg config.ParserConfig) *OpenAIClassifier {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenAIClassifier{
		apiKey:  cfg.ClassifierAPIKey,
		baseURL: cfg.ClassifierURL,
		model:   cfg.ClassifierModel,
		client:  &http.Client{Timeout: timeout},
	}
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  responsesText  `json:"text"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesText struct {
	Format responsesFormat `json:"format"`
}

type responsesFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responsesResponse struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

type responsesError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

type receiptOutput struct {
	Amount     *int64   `json:"amount"`
	Currency   string   `json:"currency"`
	PayerMask  string   `json:"payer_mask"`
	Ref        string   `json:"ref"`
	Confidence *float64 `json:"confidence"`
}

var receiptSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"amount":     map[string]any{"type": []string{"integer", "null"}},
		"currency":   map[string]any{"type": "string"},
		"payer_mask": map[string]any{"type": "string"},
		"ref":        map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
	"required":             []string{"amount", "currency", "payer_mask", "ref", "confidence"},
	"additionalProperties": false,
}

func (c *OpenAIClassifier) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return Classification{}, errors.New("classifier api key not configured")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = defaultClassifierPrompt
	}
	body, err := json.Marshal(responsesRequest{
		Model: c.model,
		Input: []inputMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: req.Text},
		},
		Text: responsesText{Format: responsesFormat{
			Type:   "json_schema",
			Name:   "momo_payment_receipt",
			Strict: true,
			Schema: receiptSchema,
		}},
	})
	if err != nil {
		return Classification{}, fmt.Errorf("marshal classifier request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Classification{}, fmt.Errorf("build classifier request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Classification{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Classification{}, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr responsesError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return Classification{}, fmt.Errorf("classifier error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return Classification{}, fmt.Errorf("classifier error (%d)", resp.StatusCode)
	}

	var parsed responsesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}
	var raw string
	for _, item := range parsed.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" && content.Text != "" {
				raw = content.Text
				break
			}
		}
	}
	if raw == "" {
		return Classification{}, errors.New("classifier returned no output")
	}
	var out receiptOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Classification{}, fmt.Errorf("decode classifier output: %w", err)
	}

	confidence := 0.5
	if out.Confidence != nil {
		confidence = *out.Confidence
	}
	return Classification{
		Amount:     out.Amount,
		Currency:   out.Currency,
		Reference:  out.Ref,
		PayerMask:  out.PayerMask,
		Confidence: confidence,
		Model:      c.model,
	}, nil
}
