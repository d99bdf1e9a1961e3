// Package password hashes and verifies secrets with Argon2id and checks password policy.
//
// Hashes are PHC strings ($argon2id$v=19$m=..,t=..,p=..$salt$key) carrying their own
// salt and cost, so older hashes keep verifying after the configured cost changes.
// Verify treats the stored string as untrusted: malformed strings and costs above
// twice the configured maxima return ErrInvalidHash without running a derivation.
//
// Policy (Validate, ValidateFor) covers length bounds, an optional weak-pattern
// filter and rejection of passwords that embed the account's username or email.
package password
