package identity

import (
	"strings"
	"unicode"
)

// NormalizeUsername performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps ASCII digits only. The '+' prefix and separators are
// dropped, so "+1 (555) 010-9999", "+15550109999" and "15550109999" share
// one canonical form. A value without digits normalizes to "".
func NormalizePhone(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeField(field Field, value string) string {
	switch field {
	case FieldEmail:
		return NormalizeEmail(value)
	case FieldUsername:
		return NormalizeUsername(value)
	case FieldPhoneNumber:
		return NormalizePhone(value)
	default:
		return strings.TrimSpace(value)
	}
}

func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// normPhonePtr returns nil for an absent phone or one with no digits.
func normPhonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	n := NormalizePhone(*p)
	if n == "" {
		return nil
	}
	return &n
}
