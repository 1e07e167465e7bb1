package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the placeholder written in place of sensitive log values.
const RedactedValue = "[REDACTED]"

// clearKeys lists the operational attribute keys whose values may reach the
// log stream unmasked. Any other key routed through MaskField is assumed to
// carry a wallet address, a payment reference or credential material.
var clearKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"component": {},
	"module":    {},
	"method":    {},
	"op":        {},
	"status":    {},
	"reason":    {},
	"error":     {},
	"severity":  {},
	"message":   {},
	"timestamp": {},
}

// IsAllowlisted reports whether key may carry its value into the log stream.
// The lookup ignores case and surrounding whitespace.
func IsAllowlisted(key string) bool {
	_, ok := clearKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the clear-text keys in sorted order. Tests use
// it to pin down which keys are exempt from masking.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(clearKeys))
	for key := range clearKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue replaces value with the redaction placeholder. Blank values pass
// through unchanged so absent fields stay recognisable in the output.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// ShortAddress reduces a hex account address to its first and last four
// digits, enough to correlate log entries with ledger state without writing
// the full wallet. Values that do not parse as an address are fully masked.
func ShortAddress(value string) string {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if len(hex) != 40 || !isHexDigits(hex) {
		return MaskValue(value)
	}
	return "0x" + hex[:4] + ".." + hex[36:]
}

func isHexDigits(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// MaskField builds a slog attribute with the value masked unless the key is
// allowlisted. The original key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
