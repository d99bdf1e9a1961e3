package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// spyStore counts every store call and can inject failures.
type spyStore struct {
	Store
	calls atomic.Int64

	lastLoginErr error
	block        bool
}

func (s *spyStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	s.calls.Add(1)
	return s.Store.Create(ctx, in)
}

func (s *spyStore) FindBy(ctx context.Context, field Field, value string) (Identity, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return Identity{}, ctx.Err()
	}
	return s.Store.FindBy(ctx, field, value)
}

func (s *spyStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	s.calls.Add(1)
	if s.lastLoginErr != nil {
		return s.lastLoginErr
	}
	return s.Store.UpdateLastLogin(ctx, id, at)
}

// countingHasher counts Verify calls.
type countingHasher struct {
	*Credentials
	verifies atomic.Int64
}

func (c *countingHasher) Verify(secret, encoded string) bool {
	c.verifies.Add(1)
	return c.Credentials.Verify(secret, encoded)
}

type harness struct {
	svc    *Service
	store  *spyStore
	hasher *countingHasher
	reg    *prometheus.Registry
}

func newHarness(t *testing.T, inner Store) *harness {
	t.Helper()

	if inner == nil {
		inner = NewInMemoryStore()
	}
	st := &spyStore{Store: inner}
	h := &countingHasher{Credentials: newTestCredentials(t)}
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	svc, err := NewService(Config{StoreTimeout: 2 * time.Second}, st, h, WithMetrics(m))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &harness{svc: svc, store: st, hasher: h, reg: reg}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func aliceInput() RegisterInput {
	return RegisterInput{Username: "alice", Email: "a@x.com", Password: "Secr3t!A"}
}

func TestService_RegisterThenAuthenticate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	pub, err := h.svc.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if pub.ID == "" || pub.Username != "alice" || pub.Email != "a@x.com" {
		t.Fatalf("unexpected public identity: %+v", pub)
	}

	res, err := h.svc.Authenticate(ctx, LoginInput{Email: strPtr("a@x.com"), Password: "Secr3t!A"})
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Warning != nil {
		t.Fatalf("unexpected warning: %v", res.Warning)
	}
	if res.Session.ID != pub.ID || res.Session.Username != "alice" {
		t.Fatalf("session does not match registered identity: %+v", res.Session)
	}

	stored, err := h.svc.GetByID(ctx, pub.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last_login_at to be stamped")
	}

	if _, err := h.svc.Authenticate(ctx, LoginInput{Email: strPtr("a@x.com"), Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if got := counterValue(t, h.reg, "idreg_registrations_total", resultOK); got != 1 {
		t.Fatalf("registrations ok=%v want 1", got)
	}
	if got := counterValue(t, h.reg, "idreg_authentications_total", resultInvalid); got != 1 {
		t.Fatalf("authentications invalid=%v want 1", got)
	}
}

func TestService_RegisterStoresOnlyTheHash(t *testing.T) {
	t.Parallel()

	mem := NewInMemoryStore()
	h := newHarness(t, mem)

	pub, err := h.svc.Register(context.Background(), aliceInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	row, err := mem.GetByID(context.Background(), pub.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row.CredentialHash == "Secr3t!A" || !h.hasher.Credentials.Verify("Secr3t!A", row.CredentialHash) {
		t.Fatalf("stored credential is not a verifying hash")
	}
}

func TestService_UnknownAndWrongPasswordAreIndistinguishable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	before := h.hasher.verifies.Load()
	_, errUnknown := h.svc.Authenticate(ctx, LoginInput{Email: strPtr("nobody@x.com"), Password: "Secr3t!A"})
	afterUnknown := h.hasher.verifies.Load()

	_, errWrong := h.svc.Authenticate(ctx, LoginInput{Email: strPtr("a@x.com"), Password: "nope"})
	afterWrong := h.hasher.verifies.Load()

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("both must be ErrInvalidCredentials: %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("messages differ: %q vs %q", errUnknown, errWrong)
	}
	if afterUnknown-before != 1 || afterWrong-afterUnknown != 1 {
		t.Fatalf("each path must verify exactly once: unknown=%d wrong=%d", afterUnknown-before, afterWrong-afterUnknown)
	}
}

func TestService_AmbiguousOrMissingIdentifierNeverTouchesStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	cases := []struct {
		in   LoginInput
		want error
	}{
		{LoginInput{Email: strPtr("a@x.com"), PhoneNumber: strPtr("+15550100000"), Password: "x"}, ErrAmbiguousIdentifier},
		{LoginInput{Password: "x"}, ErrMissingIdentifier},
	}
	for _, tc := range cases {
		_, err := h.svc.Authenticate(ctx, tc.in)
		if !errors.Is(err, tc.want) {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
	if n := h.store.calls.Load(); n != 0 {
		t.Fatalf("expected zero store calls, got %d", n)
	}
	if n := h.hasher.verifies.Load(); n != 0 {
		t.Fatalf("expected zero verifications, got %d", n)
	}
}

func TestService_SoftDeletedCannotAuthenticate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	pub, err := h.svc.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := h.svc.SoftDelete(ctx, pub.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	_, err = h.svc.Authenticate(ctx, LoginInput{Email: strPtr("a@x.com"), Password: "Secr3t!A"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deleted identity authenticated: %v", err)
	}
	if err := h.svc.SoftDelete(ctx, pub.ID); !IsNotFound(err) {
		t.Fatalf("second delete must be NotFound, got %v", err)
	}
}

func TestService_ConcurrentRegisterSameEmail(t *testing.T) {
	t.Parallel()

	for name, open := range map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewInMemoryStore() },
		"sqlite": openTestSQLite,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, open(t))

			var (
				wg   sync.WaitGroup
				errs [2]error
			)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = h.svc.Register(context.Background(), RegisterInput{
						Username: fmt.Sprintf("user%d", i),
						Email:    "same@x.com",
						Password: "Secr3t!A",
					})
				}(i)
			}
			wg.Wait()

			var ok, dup int
			for _, err := range errs {
				switch field, isDup := DuplicateField(err); {
				case err == nil:
					ok++
				case isDup && field == FieldNameEmail:
					dup++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if ok != 1 || dup != 1 {
				t.Fatalf("expected one success and one duplicate email, got ok=%d dup=%d", ok, dup)
			}
		})
	}
}

func TestService_RegisterFailuresWriteNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	cases := []RegisterInput{
		{Username: "", Email: "a@x.com", Password: "Secr3t!A"},
		{Username: "alice", Email: " ", Password: "Secr3t!A"},
		{Username: "alice", Email: "a@x.com", Password: ""},
	}
	for i, in := range cases {
		if _, err := h.svc.Register(ctx, in); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("case %d: expected ErrValidationFailed, got %v", i, err)
		}
	}
	if n := h.store.calls.Load(); n != 0 {
		t.Fatalf("validation failures must not reach the store, got %d calls", n)
	}

	list, err := h.svc.List(ctx, ListInput{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no rows, got %d", len(list))
	}
}

func TestService_LastLoginFailureIsWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	h.store.lastLoginErr = unavailable("identity.UpdateLastLogin", errors.New("disk full"))

	res, err := h.svc.Authenticate(ctx, LoginInput{Email: strPtr("a@x.com"), Password: "Secr3t!A"})
	if err != nil {
		t.Fatalf("login must succeed despite the stamp failure: %v", err)
	}
	if !errors.Is(res.Warning, ErrStorageUnavailable) {
		t.Fatalf("expected warning carrying ErrStorageUnavailable, got %v", res.Warning)
	}
}

func TestService_StoreTimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	st := &spyStore{Store: NewInMemoryStore(), block: true}
	svc, err := NewService(Config{StoreTimeout: 20 * time.Millisecond}, st, newTestCredentials(t))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Authenticate(context.Background(), LoginInput{Email: strPtr("a@x.com"), Password: "x"})
	if !errors.Is(err, ErrStorageUnavailable) || !IsRetryable(err) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if IsInvalidCredentials(err) {
		t.Fatalf("timeout must not be reported as bad credentials")
	}
}

func TestService_UpdateProfileAndList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx := context.Background()

	a, err := h.svc.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := h.svc.Register(ctx, RegisterInput{Username: "bob", Email: "b@x.com", Password: "Secr3t!B"}); err != nil {
		t.Fatalf("Register bob: %v", err)
	}

	taken := "B@X.com"
	if _, err := h.svc.UpdateProfile(ctx, a.ID, ProfilePatch{Email: &taken}); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	bio := "hi"
	updated, err := h.svc.UpdateProfile(ctx, a.ID, ProfilePatch{Profile: Profile{Bio: &bio}})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Profile.Bio == nil || *updated.Profile.Bio != "hi" {
		t.Fatalf("bio not applied")
	}
	if updated.UpdatedAt.Before(a.UpdatedAt) {
		t.Fatalf("updated_at went backwards")
	}

	// Password still works after a profile update.
	if _, err := h.svc.Authenticate(ctx, LoginInput{Email: strPtr("a@x.com"), Password: "Secr3t!A"}); err != nil {
		t.Fatalf("Authenticate after update: %v", err)
	}

	list, err := h.svc.List(ctx, ListInput{Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one row, got %d", len(list))
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewService(DefaultConfig(), nil, newTestCredentials(t)); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewService(DefaultConfig(), NewInMemoryStore(), nil); err == nil {
		t.Fatalf("expected error for nil hasher")
	}
	if _, err := NewService(Config{StoreTimeout: -time.Second}, NewInMemoryStore(), newTestCredentials(t)); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
}
