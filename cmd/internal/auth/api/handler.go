package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"idreg/cmd/identity"
	"idreg/cmd/identity/ids"
	"idreg/cmd/security/password"
	"idreg/cmd/security/redact"
)

// IdentityService is the core surface the HTTP layer drives.
type IdentityService interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.PublicIdentity, error)
	Authenticate(ctx context.Context, in identity.LoginInput) (identity.AuthResult, error)
	GetByID(ctx context.Context, id string) (identity.PublicIdentity, error)
	List(ctx context.Context, in identity.ListInput) ([]identity.PublicIdentity, error)
	UpdateProfile(ctx context.Context, id string, patch identity.ProfilePatch) (identity.PublicIdentity, error)
	SoftDelete(ctx context.Context, id string) error
}

// Handler wires HTTP endpoints to the identity workflows.
// It parses and shape-validates payloads and maps error kinds to statuses; nothing else.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	policy password.Config
	svc    IdentityService
	fp     redact.Fingerprinter
	now    func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithFingerprinter sets how client IPs are redacted in logs.
func WithFingerprinter(fp redact.Fingerprinter) HandlerOption {
	return func(h *Handler) { h.fp = fp }
}

// NewHandler constructs a Handler. policy drives password shape checks at registration.
func NewHandler(log *slog.Logger, cfg Config, policy password.Config, svc IdentityService, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil identity service")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	h := &Handler{
		log:    log,
		cfg:    cfg,
		policy: policy,
		svc:    svc,
		fp:     redact.New(nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires the route table onto mux. Called once at startup.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	routes := []struct {
		pattern string
		fn      http.HandlerFunc
	}{
		{"POST /auth/register", h.handleRegister},
		{"POST /auth/login", h.handleLogin},
		{"GET /users", h.handleListUsers},
		{"GET /users/{id}", h.handleGetUser},
		{"PATCH /users/{id}", h.handlePatchUser},
		{"DELETE /users/{id}", h.handleDeleteUser},
	}
	for _, rt := range routes {
		mux.HandleFunc(rt.pattern, rt.fn)
	}
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	in, err := h.registerInput(req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	out, err := h.svc.Register(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(out)})
}

func (h *Handler) registerInput(req registerRequest) (identity.RegisterInput, error) {
	if err := validateUsername(req.Username); err != nil {
		return identity.RegisterInput{}, err
	}
	if err := validateEmail(req.Email); err != nil {
		return identity.RegisterInput{}, err
	}
	phone := trimPtr(req.PhoneNumber)
	if phone != nil {
		if err := validatePhone(*phone); err != nil {
			return identity.RegisterInput{}, err
		}
	}
	if err := validatePassword(h.policy, req.Password, req.Username, req.Email); err != nil {
		return identity.RegisterInput{}, err
	}
	profile, err := profileFromRequest(req.profileFields, h.now())
	if err != nil {
		return identity.RegisterInput{}, err
	}

	return identity.RegisterInput{
		Username:    strings.TrimSpace(req.Username),
		Email:       strings.TrimSpace(req.Email),
		PhoneNumber: phone,
		Password:    req.Password,
		Profile:     profile,
	}, nil
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := h.svc.Authenticate(r.Context(), identity.LoginInput{
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.log.InfoContext(r.Context(), "auth.login.fail",
				"ip_fp", h.fp.Fingerprint(ipString(clientIP(r, h.cfg.TrustProxy))),
			)
		}
		h.writeErr(w, r, err)
		return
	}

	resp := loginResponse{Session: toSessionResponse(res.Session)}
	if res.Warning != nil {
		resp.Warning = "last_login_not_recorded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := queryInt(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	offset, ok := queryInt(q.Get("offset"))
	if !ok || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return
	}

	in := identity.ListInput{Limit: limit, Offset: offset}.Normalized()
	users, err := h.svc.List(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	out := listResponse{Users: make([]userResponse, 0, len(users)), Limit: in.Limit, Offset: in.Offset}
	for _, u := range users {
		out.Users = append(out.Users, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

func (h *Handler) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req patchUserRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	patch, err := h.patchInput(req)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	u, err := h.svc.UpdateProfile(r.Context(), id, patch)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

func (h *Handler) patchInput(req patchUserRequest) (identity.ProfilePatch, error) {
	email := trimPtr(req.Email)
	if email != nil {
		if err := validateEmail(*email); err != nil {
			return identity.ProfilePatch{}, err
		}
	}
	phone := trimPtr(req.PhoneNumber)
	if phone != nil {
		if err := validatePhone(*phone); err != nil {
			return identity.ProfilePatch{}, err
		}
	}
	profile, err := profileFromRequest(req.profileFields, h.now())
	if err != nil {
		return identity.ProfilePatch{}, err
	}
	return identity.ProfilePatch{Email: email, PhoneNumber: phone, Profile: profile}, nil
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- error mapping ----

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var fe fieldError
	if errors.As(err, &fe) {
		writeError(w, http.StatusBadRequest, fe.Code, fe.Error())
		return
	}
	if field, ok := identity.DuplicateField(err); ok {
		writeError(w, http.StatusConflict, "duplicate_"+field, field+" is already registered")
		return
	}

	switch {
	case errors.Is(err, identity.ErrAmbiguousIdentifier):
		writeError(w, http.StatusBadRequest, "ambiguous_identifier", "supply either email or phone_number, not both")
	case errors.Is(err, identity.ErrMissingIdentifier):
		writeError(w, http.StatusBadRequest, "missing_identifier", "email or phone_number is required")
	case errors.Is(err, identity.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request")
	case identity.IsInvalidCredentials(err):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "identity not found")
	case identity.IsRetryable(err):
		h.log.WarnContext(r.Context(), "http.storage_unavailable", "path", r.URL.Path, "err", err)
		if h.cfg.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(h.cfg.RetryAfterSeconds))
		}
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry later")
	default:
		h.log.ErrorContext(r.Context(), "http.internal_error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := ids.Canonical(strings.TrimSpace(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "identity not found")
		return "", false
	}
	return id, true
}

func queryInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
