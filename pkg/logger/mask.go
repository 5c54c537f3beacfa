package logger

import (
	"fmt"
	"strings"
)

// visibleTail is how many trailing characters Mask leaves readable.
const visibleTail = 3

// sensitive keys carry payer phone numbers or raw SMS bodies.
func sensitive(key string) bool {
	switch key {
	case "from", "to", "phone", "sms_text", "raw_text":
		return true
	}
	return false
}

// Mask hides all but the last three characters of a string, *string or
// Stringer value. Other values mask to "".
func Mask(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case *string:
		if t != nil {
			s = *t
		}
	case fmt.Stringer:
		s = t.String()
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) <= visibleTail {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-visibleTail) + string(r[len(r)-visibleTail:])
}
