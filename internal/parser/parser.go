// Package parser turns inbound SMS text into structured payment fields.
// Known carrier templates are matched first; the classification aid is only
// consulted when no template matched exactly, and always through a breaker.
package parser

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gikundiro/fanpay-backend/pkg/breaker"
	"github.com/gikundiro/fanpay-backend/pkg/db/models"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/google/uuid"
)

const degradedSuffix = "+degraded"

// Result is the outcome of parsing one SMS. Amount is nil when nothing
// usable was found.
type Result struct {
	Amount        *int64         `json:"amount"`
	Currency      enums.Currency `json:"currency"`
	Reference     *string        `json:"reference,omitempty"`
	PayerMask     *string        `json:"payerMask,omitempty"`
	Confidence    float64        `json:"confidence"`
	ParserVersion string         `json:"parserVersion"`
	Template      string         `json:"template,omitempty"`
	Degraded      bool           `json:"degraded"`
}

// Parsed reports whether the result may enter matching.
func (r Result) Parsed() bool {
	return r.Amount != nil && r.Confidence > 0
}

type promptSource interface {
	Active(ctx context.Context) (*models.SmsParserPrompt, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SmsParserPrompt, error)
}

type Options struct {
	Classifier      Classifier
	Breaker         *breaker.Breaker
	Prompts         promptSource
	DegradedPenalty float64
	Logger          *logger.Logger
}

type Parser struct {
	classifier Classifier
	breaker    *breaker.Breaker
	prompts    promptSource
	penalty    float64
	logg       *logger.Logger
}

// NewParser builds a parser. A nil classifier means rules only.
func NewParser(opts Options) *Parser {
	penalty := opts.DegradedPenalty
	if penalty < 0 {
		penalty = 0
	}
	return &Parser{
		classifier: opts.Classifier,
		breaker:    opts.Breaker,
		prompts:    opts.Prompts,
		penalty:    penalty,
		logg:       opts.Logger,
	}
}

// SampleOptions selects the prompt used by ParseSample. PromptBody wins over
// PromptID; with neither the active prompt is used.
type SampleOptions struct {
	PromptBody string
	PromptID   *uuid.UUID
}

// Parse extracts payment fields from the SMS text using the active prompt.
func (p *Parser) Parse(ctx context.Context, text string) Result {
	return p.parse(ctx, text, p.activePrompt(ctx))
}

// ParseSample parses operator-supplied text without persisting anything.
func (p *Parser) ParseSample(ctx context.Context, text string, opts SampleOptions) (Result, error) {
	prompt := resolvedPrompt{}
	switch {
	case strings.TrimSpace(opts.PromptBody) != "":
		prompt = resolvedPrompt{body: opts.PromptBody, tag: "custom"}
	case opts.PromptID != nil:
		if p.prompts == nil {
			return Result{}, fmt.Errorf("prompt store not configured")
		}
		stored, err := p.prompts.Get(ctx, *opts.PromptID)
		if err != nil {
			return Result{}, err
		}
		prompt = resolvedPrompt{body: stored.Body, tag: strconv.Itoa(stored.Version)}
	default:
		prompt = p.activePrompt(ctx)
	}
	return p.parse(ctx, text, prompt), nil
}

type resolvedPrompt struct {
	body string
	tag  string
}

func (p *Parser) activePrompt(ctx context.Context) resolvedPrompt {
	if p.prompts == nil || p.classifier == nil {
		return resolvedPrompt{}
	}
	active, err := p.prompts.Active(ctx)
	if err != nil {
		if p.logg != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "active parser prompt unavailable")
		}
		return resolvedPrompt{}
	}
	if active == nil {
		return resolvedPrompt{}
	}
	return resolvedPrompt{body: active.Body, tag: strconv.Itoa(active.Version)}
}

func (p *Parser) parse(ctx context.Context, text string, prompt resolvedPrompt) Result {
	f, confidence, version := extract(text)
	rules := Result{
		Amount:        f.Amount,
		Currency:      f.Currency,
		Reference:     f.Reference,
		PayerMask:     f.PayerMask,
		Confidence:    clamp(confidence),
		ParserVersion: version,
		Template:      f.Template,
	}
	if rules.Currency == "" {
		rules.Currency = enums.CurrencyRWF
	}
	if f.Exact || p.classifier == nil {
		return rules
	}

	classification, err := p.classify(ctx, ClassifyRequest{Text: RedactPhones(text), Prompt: prompt.body})
	if err != nil {
		if p.logg != nil {
			logCtx := p.logg.WithFields(ctx, map[string]any{
				"error":           err.Error(),
				"breaker_tripped": breaker.IsBreakerError(err),
			})
			p.logg.Warn(logCtx, "classifier unavailable; using rule-based extraction")
		}
		return p.degrade(rules)
	}

	if classified, ok := fromClassification(classification, rules, prompt.tag); ok {
		return classified
	}
	return rules
}

func (p *Parser) classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	if p.breaker == nil {
		return p.classifier.Classify(ctx, req)
	}
	return breaker.Execute(ctx, p.breaker, func(ctx context.Context) (Classification, error) {
		return p.classifier.Classify(ctx, req)
	})
}

func (p *Parser) degrade(rules Result) Result {
	rules.Degraded = true
	rules.ParserVersion += degradedSuffix
	if rules.Amount == nil {
		rules.Confidence = 0
		return rules
	}
	rules.Confidence = clamp(rules.Confidence - p.penalty)
	return rules
}

// fromClassification prefers the classifier fields and keeps rule-based
// values where the classifier left gaps.
func fromClassification(c Classification, rules Result, promptTag string) (Result, bool) {
	if c.Amount == nil || *c.Amount <= 0 {
		return Result{}, false
	}
	currency := enums.CurrencyRWF
	if strings.TrimSpace(c.Currency) != "" {
		parsed, err := enums.ParseCurrency(c.Currency)
		if err != nil {
			return Result{}, false
		}
		currency = parsed
	}
	amount := *c.Amount
	out := Result{
		Amount:        &amount,
		Currency:      currency,
		Reference:     rules.Reference,
		PayerMask:     rules.PayerMask,
		Confidence:    clamp(c.Confidence),
		ParserVersion: "classifier:" + c.Model,
		Template:      rules.Template,
	}
	if promptTag != "" {
		out.ParserVersion += ":prompt:" + promptTag
	}
	if ref := strings.ToUpper(strings.TrimSpace(c.Reference)); ref != "" && ref != "UNKNOWN" {
		out.Reference = &ref
	}
	if mask := strings.TrimSpace(c.PayerMask); mask != "" {
		out.PayerMask = &mask
	}
	return out, true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Round(math.Max(0, math.Min(1, v))*1000) / 1000
}
