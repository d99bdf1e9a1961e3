package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"idreg/cmd/security/redact"
)

// Config bounds the workflows' use of the store.
type Config struct {
	// StoreTimeout caps every individual store call. Zero means "caller's context only".
	StoreTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{StoreTimeout: 3 * time.Second}
}

// Service runs the registration and authentication workflows over a Store.
//
// It holds no mutable state of its own: uniqueness is serialized by the store and
// logins need no locking, so one Service is shared by all requests.
type Service struct {
	cfg      Config
	store    Store
	resolver *Resolver
	creds    Hasher

	log     *slog.Logger
	fp      redact.Fingerprinter
	metrics *Metrics
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Identifiers are fingerprinted before logging.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFingerprinter sets how identifiers are redacted in logs.
func WithFingerprinter(fp redact.Fingerprinter) Option {
	return func(s *Service) { s.fp = fp }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the workflows. store and creds are required.
func NewService(cfg Config, store Store, creds Hasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	if creds == nil {
		return nil, errors.New("identity: nil credential manager")
	}
	if cfg.StoreTimeout < 0 {
		return nil, fmt.Errorf("identity: negative store timeout %s", cfg.StoreTimeout)
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		resolver: NewResolver(store),
		creds:    creds,
		log:      slog.New(slog.DiscardHandler),
		fp:       redact.New(nil),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput is a registration candidate. Shapes are validated by the transport;
// the workflow only requires username, email and password to be present.
type RegisterInput struct {
	Username    string
	Email       string
	PhoneNumber *string
	Password    string
	Profile     Profile
}

// Register hashes the password and creates the identity in one atomic store write.
//
// Duplicate username/email/phone surface as ConflictError naming the field. No write
// happens on any failure path.
func (s *Service) Register(ctx context.Context, in RegisterInput) (PublicIdentity, error) {
	const op = "identity.Register"

	out, err := s.register(ctx, op, in)
	if err != nil {
		result := resultFor(err)
		s.metrics.registration(result)

		attrs := []any{"result", result, "email_fp", s.fp.Fingerprint(in.Email)}
		if field, ok := DuplicateField(err); ok {
			attrs = append(attrs, "field", field)
		}
		if result == resultError || result == resultUnavailable {
			s.log.ErrorContext(ctx, "identity.register.fail", append(attrs, "err", err)...)
		} else {
			s.log.InfoContext(ctx, "identity.register.fail", attrs...)
		}
		return PublicIdentity{}, err
	}

	s.metrics.registration(resultOK)
	s.log.InfoContext(ctx, "identity.register.ok", "identity_id", out.ID)
	return out.Public(), nil
}

func (s *Service) register(ctx context.Context, op string, in RegisterInput) (Identity, error) {
	if strings.TrimSpace(in.Username) == "" {
		return Identity{}, invalidInput(op, "username is required")
	}
	if strings.TrimSpace(in.Email) == "" {
		return Identity{}, invalidInput(op, "email is required")
	}
	if in.Password == "" {
		return Identity{}, invalidInput(op, "password is required")
	}

	// Hash before touching storage so a hashing failure can never leave a row behind.
	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return Identity{}, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	created, err := s.store.Create(sctx, CreateInput{
		Username:       in.Username,
		Email:          in.Email,
		PhoneNumber:    in.PhoneNumber,
		CredentialHash: hash,
		Profile:        in.Profile,
		Now:            s.now(),
	})
	if err != nil {
		return Identity{}, storeErr(op, err)
	}
	return created, nil
}

// LoginInput carries exactly one identifier (email or phone) and the presented password.
type LoginInput struct {
	Email       *string
	PhoneNumber *string
	Password    string
}

// Authenticate verifies a presented credential.
//
// Unknown identifier, inactive or deleted identity and wrong password all return the
// same ErrInvalidCredentials, and each costs exactly one Argon2id verification.
// A failed last-login stamp is reported in AuthResult.Warning.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (AuthResult, error) {
	id, err := ParseIdentifier(in.Email, in.PhoneNumber)
	if err != nil {
		s.metrics.authentication(resultRejected)
		s.log.InfoContext(ctx, "identity.authenticate.rejected", "err", err)
		return AuthResult{}, err
	}

	ident, err := s.resolve(ctx, id)
	switch {
	case err == nil:
	case IsNotFound(err):
		// Pay the same derivation cost as a real comparison; result is discarded.
		s.verify(in.Password, s.creds.DecoyHash())
		s.authFailed(ctx, id)
		return AuthResult{}, invalidCredentials()
	default:
		s.metrics.authentication(resultFor(err))
		s.log.ErrorContext(ctx, "identity.authenticate.error",
			"identifier_kind", id.Kind().String(),
			"identifier_fp", s.fp.Fingerprint(id.Value()),
			"err", err,
		)
		return AuthResult{}, err
	}

	if !s.verify(in.Password, ident.CredentialHash) {
		s.authFailed(ctx, id)
		return AuthResult{}, invalidCredentials()
	}

	res := AuthResult{Session: ident.session()}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.store.UpdateLastLogin(sctx, ident.ID, s.now()); err != nil {
		res.Warning = storeErr("identity.UpdateLastLogin", err)
		s.log.WarnContext(ctx, "identity.authenticate.last_login_failed",
			"identity_id", ident.ID,
			"err", res.Warning,
		)
	}

	s.metrics.authentication(resultOK)
	s.log.InfoContext(ctx, "identity.authenticate.ok", "identity_id", ident.ID)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, id Identifier) (Identity, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	out, err := s.resolver.Resolve(sctx, id)
	if err != nil {
		return Identity{}, storeErr("identity.Resolve", err)
	}
	return out, nil
}

func (s *Service) verify(secret, encoded string) bool {
	started := time.Now()
	defer s.metrics.observeVerify(started)
	return s.creds.Verify(secret, encoded)
}

func (s *Service) authFailed(ctx context.Context, id Identifier) {
	s.metrics.authentication(resultInvalid)
	s.log.InfoContext(ctx, "identity.authenticate.fail",
		"identifier_kind", id.Kind().String(),
		"identifier_fp", s.fp.Fingerprint(id.Value()),
	)
}

// GetByID is the unfiltered administrative read; it also returns inactive and deleted identities.
func (s *Service) GetByID(ctx context.Context, id string) (PublicIdentity, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	out, err := s.store.GetByID(sctx, id)
	if err != nil {
		return PublicIdentity{}, storeErr("identity.GetByID", err)
	}
	return out.Public(), nil
}

// List returns one page of active, non-deleted identities ordered by id.
func (s *Service) List(ctx context.Context, in ListInput) ([]PublicIdentity, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	rows, err := s.store.List(sctx, in)
	if err != nil {
		return nil, storeErr("identity.List", err)
	}
	out := make([]PublicIdentity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Public())
	}
	return out, nil
}

// UpdateProfile patches contact and profile fields. The credential hash is never touched.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (PublicIdentity, error) {
	if patch.Now.IsZero() {
		patch.Now = s.now()
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	out, err := s.store.UpdateProfile(sctx, id, patch)
	if err != nil {
		return PublicIdentity{}, storeErr("identity.UpdateProfile", err)
	}
	s.log.InfoContext(ctx, "identity.profile.updated", "identity_id", out.ID)
	return out.Public(), nil
}

// SoftDelete hides the identity from lookups and logins and releases its unique values.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	if err := s.store.SoftDelete(sctx, id, s.now()); err != nil {
		return storeErr("identity.SoftDelete", err)
	}
	s.log.InfoContext(ctx, "identity.deleted", "identity_id", strings.TrimSpace(id))
	return nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.StoreTimeout)
}

// storeErr maps raw context expiry to ErrStorageUnavailable for stores that did not.
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailable(op, err)
	}
	return err
}

func resultFor(err error) string {
	switch {
	case err == nil:
		return resultOK
	case IsConflict(err):
		return resultConflict
	case errors.Is(err, ErrValidationFailed):
		return resultInvalid
	case errors.Is(err, ErrAmbiguousIdentifier), errors.Is(err, ErrMissingIdentifier):
		return resultRejected
	case errors.Is(err, ErrInvalidCredentials):
		return resultInvalid
	case IsRetryable(err):
		return resultUnavailable
	default:
		return resultError
	}
}
