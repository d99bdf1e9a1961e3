package identity

import (
	"context"
	"errors"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	conflict := ConflictError{Op: "identity.Create", Field: FieldNameEmail}
	if !errors.Is(conflict, ErrConflict) || !IsConflict(conflict) {
		t.Fatalf("ConflictError must match ErrConflict")
	}
	if f, ok := DuplicateField(conflict); !ok || f != FieldNameEmail {
		t.Fatalf("DuplicateField=%q,%v", f, ok)
	}
	if IsRetryable(conflict) {
		t.Fatalf("conflict is not retryable")
	}

	nf := NotFoundError{Op: "identity.FindBy", Resource: "identity"}
	if !IsNotFound(nf) || IsConflict(nf) {
		t.Fatalf("NotFoundError classification wrong")
	}

	un := unavailable("identity.FindBy", context.DeadlineExceeded)
	if !IsRetryable(un) || !errors.Is(un, context.DeadlineExceeded) {
		t.Fatalf("unavailable must be retryable and keep its cause: %v", un)
	}

	ic := invalidCredentials()
	if !IsInvalidCredentials(ic) || IsRetryable(ic) {
		t.Fatalf("invalid credentials classification wrong")
	}
	if ic.Error() != invalidCredentials().Error() {
		t.Fatalf("invalid credentials must be a single undifferentiated message")
	}
}
