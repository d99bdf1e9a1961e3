package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrValidationFailed    = errors.New("validation_failed")
	ErrNotFound            = errors.New("not_found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidCredentials  = errors.New("invalid_credentials")
	ErrAmbiguousIdentifier = errors.New("ambiguous_identifier")
	ErrMissingIdentifier   = errors.New("missing_identifier")
	ErrStorageUnavailable  = errors.New("storage_unavailable")
)
