package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind MUST be one of the sentinel kinds when applicable. Msg may carry human-readable
// context; it never carries secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e OpError) Error() string {
	switch {
	case e.Msg != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Unwrap exposes both the kind and the underlying cause.
func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Duplicate field names reported by ConflictError.
const (
	FieldNameUsername    = "username"
	FieldNameEmail       = "email"
	FieldNamePhoneNumber = "phone_number"
)

// ConflictError reports a uniqueness violation for a specific logical field
// ("username", "email", "phone_number").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing identity row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// invalidCredentials is the single, undifferentiated login failure.
// Unknown identifier, inactive identity and hash mismatch all produce this exact value.
func invalidCredentials() error {
	return OpError{Op: "identity.Authenticate", Kind: ErrInvalidCredentials}
}

func invalidInput(op, msg string) error {
	return OpError{Op: op, Kind: ErrValidationFailed, Msg: msg}
}

func unavailable(op string, err error) error {
	return OpError{Op: op, Kind: ErrStorageUnavailable, Err: err}
}

// DuplicateField returns the conflicting field name when err is a ConflictError.
func DuplicateField(err error) (string, bool) {
	var ce ConflictError
	if !errors.As(err, &ce) {
		return "", false
	}
	return ce.Field, true
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	_, ok := DuplicateField(err)
	return ok
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidCredentials reports whether err represents ErrInvalidCredentials.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }

// IsRetryable reports whether the caller may retry the request.
// Only storage unavailability is transient; every other kind is terminal.
func IsRetryable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }
