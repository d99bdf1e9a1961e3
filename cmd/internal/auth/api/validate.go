package authapi

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"idreg/cmd/identity"
	"idreg/cmd/security/password"
)

// fieldError is a shape-validation failure reported as 400 with a stable code.
type fieldError struct {
	Code  string
	Field string
	Msg   string
}

func (e fieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{2,31}$`)
	// E.164 digits after normalization: leading non-zero digit, 7..15 digits total.
	phoneRe = regexp.MustCompile(`^[1-9][0-9]{6,14}$`)
)

const (
	maxEmailLen  = 254
	maxNameLen   = 100
	maxURLLen    = 2048
	maxGenderLen = 32
	maxBioLen    = 500
)

func invalid(field, msg string) error {
	return fieldError{Code: "invalid_" + field, Field: field, Msg: msg}
}

func validateUsername(s string) error {
	if !usernameRe.MatchString(strings.TrimSpace(s)) {
		return invalid("username", "3-32 characters: letters, digits, '_', '.', '-'")
	}
	return nil
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxEmailLen {
		return invalid("email", "a valid email address is required")
	}
	addr, err := mail.ParseAddress(s)
	// Reject display-name forms like "Alice <a@x.com>".
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndexByte(s, '@')+1:], ".") {
		return invalid("email", "a valid email address is required")
	}
	return nil
}

func validatePhone(s string) error {
	if !phoneRe.MatchString(identity.NormalizePhone(s)) {
		return invalid("phone_number", "expected an international phone number such as +15550109999")
	}
	return nil
}

func validatePassword(policy password.Config, s string, identifiers ...string) error {
	err := policy.ValidateFor(s, identifiers...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, password.ErrPasswordTooShort):
		return fieldError{Code: "password_too_short", Field: "password", Msg: fmt.Sprintf("at least %d characters", policy.Policy.MinLength)}
	case errors.Is(err, password.ErrPasswordTooLong):
		return fieldError{Code: "password_too_long", Field: "password", Msg: fmt.Sprintf("at most %d characters", policy.Policy.MaxLength)}
	case errors.Is(err, password.ErrPasswordTooSimple):
		return fieldError{Code: "password_too_simple", Field: "password", Msg: "use upper and lower case letters, a digit and a symbol"}
	case errors.Is(err, password.ErrWeakPassword):
		return fieldError{Code: "weak_password", Field: "password", Msg: "password is too weak"}
	case errors.Is(err, password.ErrPasswordContainsIdentifier):
		return fieldError{Code: "password_contains_identifier", Field: "password", Msg: "password must not contain the username or email"}
	default:
		return invalid("password", "password rejected")
	}
}

// profileFromRequest validates and converts optional profile fields.
func profileFromRequest(p profileFields, now time.Time) (identity.Profile, error) {
	out := identity.Profile{
		FirstName:      trimPtr(p.FirstName),
		LastName:       trimPtr(p.LastName),
		ProfilePicture: trimPtr(p.ProfilePicture),
		CoverPicture:   trimPtr(p.CoverPicture),
		Gender:         trimPtr(p.Gender),
		Bio:            trimPtr(p.Bio),
	}

	checks := []struct {
		field string
		v     *string
		max   int
	}{
		{"first_name", out.FirstName, maxNameLen},
		{"last_name", out.LastName, maxNameLen},
		{"profile_picture", out.ProfilePicture, maxURLLen},
		{"cover_picture", out.CoverPicture, maxURLLen},
		{"gender", out.Gender, maxGenderLen},
		{"bio", out.Bio, maxBioLen},
	}
	for _, c := range checks {
		if c.v != nil && utf8.RuneCountInString(*c.v) > c.max {
			return identity.Profile{}, invalid(c.field, fmt.Sprintf("at most %d characters", c.max))
		}
	}

	if bd := trimPtr(p.BirthDate); bd != nil {
		d, err := time.Parse(birthDateLayout, *bd)
		if err != nil {
			return identity.Profile{}, invalid("birth_date", "expected YYYY-MM-DD")
		}
		if d.After(now) {
			return identity.Profile{}, invalid("birth_date", "must not be in the future")
		}
		out.BirthDate = &d
	}
	return out, nil
}
