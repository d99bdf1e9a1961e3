package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort           = errors.New("password too short")
	ErrPasswordTooLong            = errors.New("password too long")
	ErrPasswordTooSimple          = errors.New("password needs upper, lower, digit and symbol")
	ErrWeakPassword               = errors.New("weak password")
	ErrPasswordContainsIdentifier = errors.New("password contains account identifier")
	ErrInvalidHash                = errors.New("invalid password hash")
)
