// Package identity implements identity registration and credential verification.
//
// It contains the identity record model, the store boundary (Postgres, SQLite and
// in-memory implementations), the Argon2id credential manager, the identifier
// resolver and the register/authenticate workflows consumed by the HTTP layer.
//
// Uniqueness of username, email and phone number is enforced by the store as part of
// the insert itself; callers never pre-check.
package identity
