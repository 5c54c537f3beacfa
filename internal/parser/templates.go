package parser

import (
	"regexp"
	"strings"

	"github.com/gikundiro/fanpay-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Template is one known carrier notification layout. Amount and currency
// groups are mandatory; payer is optional per layout.
type Template struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence float64
}

const (
	genericConfidence     = 0.45
	missingRefPenalty     = 0.10
	missingPayerPenalty   = 0.07
	genericParserVersion  = "heuristic:v1"
	templateVersionSuffix = ":v1"
)

var carrierTemplates = []Template{
	{
		Name:       "mtn_momo_received",
		Pattern:    regexp.MustCompile(`(?i)you have received\s+(?P<amount>\d[\d,]*(?:\.\d+)?)\s*(?P<currency>RWF|FRW|RF)\s+from\s+(?P<payer>[^.]+?)(?:\s+on your|\s+at\s|\.|$)`),
		Confidence: 0.92,
	},
	{
		Name:       "airtel_money_received",
		Pattern:    regexp.MustCompile(`(?i)received\s+(?P<currency>RWF|FRW|RF)\s*(?P<amount>\d[\d,]*(?:\.\d+)?)\s+from\s+(?P<payer>\+?\d[\d ]{6,}\d)`),
		Confidence: 0.90,
	},
	{
		Name:       "mtn_momo_transfer",
		Pattern:    regexp.MustCompile(`(?i)(?:payment|transfer) of\s+(?P<amount>\d[\d,]*(?:\.\d+)?)\s*(?P<currency>RWF|FRW|RF)\s+(?:to|for)\s+.+?\s+(?:has been|was)\s+completed`),
		Confidence: 0.88,
	},
}

var (
	genericAmountPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(RWF|FRW|RF)\b`)
	referencePattern     = regexp.MustCompile(`(?i)\b(?:financial transaction id|transaction id|trans(?:action)? id|txid|ref(?:erence)?)\s*[:.#]?\s*([A-Z0-9][A-Z0-9-]{3,})`)
	phoneDigitsPattern   = regexp.MustCompile(`\+?\d[\d ]{6,}\d`)
	carrierMaskedPattern = regexp.MustCompile(`\+?\d{2,}[xX*]{3,}\d*`)
)

// fields is what the rule-based pass could pull out of the text.
type fields struct {
	Amount    *int64
	Currency  enums.Currency
	Reference *string
	PayerMask *string
	Template  string
	Exact     bool
}

// extract runs the carrier templates in order and falls back to a generic
// amount-and-currency scan. It returns confidence 0 when nothing matched.
func extract(text string) (fields, float64, string) {
	for _, tpl := range carrierTemplates {
		match := tpl.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		amount, ok := parseAmount(group(tpl.Pattern, match, "amount"))
		if !ok {
			continue
		}
		currency, err := enums.ParseCurrency(group(tpl.Pattern, match, "currency"))
		if err != nil {
			continue
		}
		out := fields{
			Amount:    &amount,
			Currency:  currency,
			Reference: findReference(text),
			PayerMask: maskPayer(group(tpl.Pattern, match, "payer")),
			Template:  tpl.Name,
		}
		confidence := tpl.Confidence
		if out.Reference == nil {
			confidence -= missingRefPenalty
		}
		if out.PayerMask == nil && hasGroup(tpl.Pattern, "payer") {
			confidence -= missingPayerPenalty
		}
		out.Exact = out.Reference != nil && (out.PayerMask != nil || !hasGroup(tpl.Pattern, "payer"))
		return out, confidence, "template:" + tpl.Name + templateVersionSuffix
	}

	match := genericAmountPattern.FindStringSubmatch(text)
	if match == nil {
		return fields{}, 0, genericParserVersion
	}
	amount, ok := parseAmount(match[1])
	if !ok {
		return fields{}, 0, genericParserVersion
	}
	currency, err := enums.ParseCurrency(match[2])
	if err != nil {
		return fields{}, 0, genericParserVersion
	}
	return fields{
		Amount:    &amount,
		Currency:  currency,
		Reference: findReference(text),
		Template:  "generic",
	}, genericConfidence, genericParserVersion
}

// parseAmount reads carrier amounts like "15,000" or "15000.00". Francs have
// no minor unit, so a non-zero fraction is rejected.
func parseAmount(raw string) (int64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || !d.IsPositive() || !d.IsInteger() {
		return 0, false
	}
	return d.IntPart(), true
}

func findReference(text string) *string {
	match := referencePattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	ref := strings.ToUpper(strings.TrimSpace(match[1]))
	return &ref
}

// maskPayer keeps the last three digits of the payer number. Numbers the
// carrier already masked are kept with the mask normalized to '*'; names
// without a number are not stored.
func maskPayer(raw string) *string {
	number := phoneDigitsPattern.FindString(raw)
	if number == "" {
		masked := carrierMaskedPattern.FindString(raw)
		if masked == "" {
			return nil
		}
		masked = strings.NewReplacer("x", "*", "X", "*").Replace(masked)
		return &masked
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, number)
	if len(digits) <= 3 {
		return nil
	}
	masked := strings.Repeat("*", len(digits)-3) + digits[len(digits)-3:]
	return &masked
}

// RedactPhones replaces every phone-like digit run before text leaves the
// process.
func RedactPhones(text string) string {
	return phoneDigitsPattern.ReplaceAllStringFunc(text, func(number string) string {
		masked := maskPayer(number)
		if masked == nil {
			return number
		}
		return *masked
	})
}

func group(re *regexp.Regexp, match []string, name string) string {
	idx := re.SubexpIndex(name)
	if idx < 0 || idx >= len(match) {
		return ""
	}
	return match[idx]
}

func hasGroup(re *regexp.Regexp, name string) bool {
	return re.SubexpIndex(name) >= 0
}
