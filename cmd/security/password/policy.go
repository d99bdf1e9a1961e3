package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minIdentifierRunes is the shortest account identifier checked for inclusion.
const minIdentifierRunes = 3

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"123456": {}, "12345678": {}, "123456789": {}, "1234567890": {},
	"qwerty": {}, "qwerty123": {}, "qwertyuiop": {}, "11111111": {},
	"letmein": {}, "iloveyou": {}, "welcome1": {}, "admin123": {},
}

// Validate checks length bounds (in runes) and, when enabled, trivial patterns.
func (c Config) Validate(password string) error {
	return c.ValidateFor(password)
}

// ValidateFor is Validate plus a check that the password does not embed one of the
// account's own identifiers. For emails only the local part is compared.
// Identifiers shorter than three characters are ignored.
func (c Config) ValidateFor(password string, identifiers ...string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}

	if c.Policy.RequireClasses && !hasAllClasses(password) {
		return ErrPasswordTooSimple
	}

	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}

	lower := strings.ToLower(password)
	for _, id := range identifiers {
		id = strings.ToLower(strings.TrimSpace(id))
		if at := strings.IndexByte(id, '@'); at >= 0 {
			id = id[:at]
		}
		if utf8.RuneCountInString(id) >= minIdentifierRunes && strings.Contains(lower, id) {
			return ErrPasswordContainsIdentifier
		}
	}
	return nil
}

// hasAllClasses reports whether pw mixes lower case, upper case, digits and
// at least one symbol (anything that is not a letter, digit or space).
func hasAllClasses(pw string) bool {
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// looksVeryWeak is a small, conservative filter, not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	runes := []rune(s)
	if isRun(runes) {
		return true
	}

	// PIN-like: digits only and shorter than 12.
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(runes) < 12
}

// isRun reports a single repeated rune or a strictly ascending/descending
// sequence such as "aaaaaaaa", "abcdefgh" or "87654321".
func isRun(rs []rune) bool {
	if len(rs) < 2 {
		return true
	}
	step := rs[1] - rs[0]
	if step < -1 || step > 1 {
		return false
	}
	for i := 2; i < len(rs); i++ {
		if rs[i]-rs[i-1] != step {
			return false
		}
	}
	return true
}
