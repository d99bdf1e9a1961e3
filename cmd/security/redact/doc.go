// Package redact produces stable fingerprints for personal identifiers so they can be
// correlated in logs without being written in clear text.
//
// Design goals:
// - Default dev mode: SHA-256(value) when no HMAC key is configured.
// - Production mode: HMAC-SHA256(value, key) so fingerprints cannot be brute-forced
//   from a dictionary of known emails or phone numbers.
// - Stable hex output, truncated for log readability.
//
// Environment:
// - IDREG_LOG_HMAC_KEY: when set, enables HMAC mode.
package redact
