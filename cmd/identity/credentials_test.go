package identity

import (
	"errors"
	"strings"
	"testing"

	"idreg/cmd/security/password"
)

func fastPasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func newTestCredentials(t *testing.T) *Credentials {
	t.Helper()
	c, err := NewCredentials(fastPasswordConfig())
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	return c
}

func TestCredentials_SameSecretDistinctHashesBothVerify(t *testing.T) {
	t.Parallel()

	c := newTestCredentials(t)

	h1, err := c.Hash("Secr3t!A")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := c.Hash("Secr3t!A")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected different salted outputs")
	}
	if strings.Contains(h1, "Secr3t!A") {
		t.Fatalf("hash embeds the secret")
	}
	if !c.Verify("Secr3t!A", h1) || !c.Verify("Secr3t!A", h2) {
		t.Fatalf("both hashes must verify")
	}
	if c.Verify("secr3t!a", h1) {
		t.Fatalf("wrong secret verified")
	}
}

func TestCredentials_MalformedStoredValuesNeverVerify(t *testing.T) {
	t.Parallel()

	c := newTestCredentials(t)
	for _, stored := range []string{"", "Secr3t!A", "$argon2id$v=19$garbage", "$bcrypt$xyz"} {
		if c.Verify("Secr3t!A", stored) {
			t.Fatalf("Verify accepted stored value %q", stored)
		}
	}
}

func TestCredentials_DecoyMatchesNothing(t *testing.T) {
	t.Parallel()

	c := newTestCredentials(t)
	if !strings.HasPrefix(c.DecoyHash(), "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("decoy must use the configured params: %q", c.DecoyHash())
	}
	for _, guess := range []string{"", "password", "Secr3t!A"} {
		if c.Verify(guess, c.DecoyHash()) {
			t.Fatalf("decoy verified %q", guess)
		}
	}
}

func TestCredentials_HashBoundsAreValidationErrors(t *testing.T) {
	t.Parallel()

	c := newTestCredentials(t)
	_, err := c.Hash(strings.Repeat("a", 1000))
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	_, err = c.Hash("")
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for empty, got %v", err)
	}
}
