package gateway

import "strings"

// RedactionMarker replaces the value of any sensitive field before a gateway
// payload is persisted.
const RedactionMarker = "[REDACTED]"

// sensitiveSubstrings is the denylist matched against normalized key names.
var sensitiveSubstrings = []string{
	"cardnumber",
	"cardno",
	"cvv",
	"cvc",
	"password",
	"secret",
	"token",
	"authorization",
	"accountnumber",
	"routingnumber",
	"iban",
	"ssn",
}

// Sanitize returns a deep copy of the payload with every value whose key name
// matches the sensitive denylist replaced by the redaction marker. The input
// is never modified; nested objects and arrays are walked recursively.
func Sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if isSensitiveKey(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(key)
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(normalized, s) {
			return true
		}
	}
	return false
}
