package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"idreg/cmd/identity/ids"
)

// InMemoryStore is a dev-only fallback when no database is configured.
// A single mutex serializes writers, so the uniqueness check and the insert in Create
// are one atomic step.
type InMemoryStore struct {
	mu   sync.Mutex
	rows map[string]*rowDraft
}

type rowDraft struct {
	ident        Identity
	usernameNorm string
	emailNorm    string
	phoneNorm    *string
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory Store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[string]*rowDraft)}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// Create inserts a new identity, enforcing uniqueness among non-deleted rows.
func (s *InMemoryStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}
	row, err := prepareCreate(op, in)
	if err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if field, ok := s.collision("", row.usernameNorm, row.emailNorm, row.phoneNorm); ok {
		return Identity{}, ConflictError{Op: op, Field: field}
	}
	s.rows[row.ident.ID] = row
	return cloneIdentity(row.ident), nil
}

// FindBy returns the visible identity whose field equals value (normalized).
func (s *InMemoryStore) FindBy(ctx context.Context, field Field, value string) (Identity, error) {
	const op = "identity.FindBy"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}
	v := normalizeField(field, value)
	if v == "" {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if !r.ident.Visible() {
			continue
		}
		var match bool
		switch field {
		case FieldID:
			match = r.ident.ID == v
		case FieldEmail:
			match = r.emailNorm == v
		case FieldUsername:
			match = r.usernameNorm == v
		case FieldPhoneNumber:
			match = r.phoneNorm != nil && *r.phoneNorm == v
		default:
			return Identity{}, invalidInput(op, "unsupported lookup field")
		}
		if match {
			return cloneIdentity(r.ident), nil
		}
	}
	return Identity{}, NotFoundError{Op: op, Resource: "identity"}
}

// GetByID returns the identity regardless of active/deleted state.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (Identity, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[strings.TrimSpace(id)]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return cloneIdentity(r.ident), nil
}

// List pages through visible identities ordered by id.
func (s *InMemoryStore) List(ctx context.Context, in ListInput) ([]Identity, error) {
	const op = "identity.List"

	if err := ctx.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	in = in.Normalized()

	s.mu.Lock()
	visible := make([]Identity, 0, len(s.rows))
	for _, r := range s.rows {
		if r.ident.Visible() {
			visible = append(visible, cloneIdentity(r.ident))
		}
	}
	s.mu.Unlock()

	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })

	if in.Offset >= len(visible) {
		return []Identity{}, nil
	}
	end := in.Offset + in.Limit
	if end > len(visible) {
		end = len(visible)
	}
	return visible[in.Offset:end], nil
}

// UpdateProfile applies patch to a non-deleted identity.
func (s *InMemoryStore) UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Identity, error) {
	const op = "identity.UpdateProfile"

	if err := ctx.Err(); err != nil {
		return Identity{}, unavailable(op, err)
	}
	email := trimPtr(patch.Email)
	phone := trimPtr(patch.PhoneNumber)
	if phone != nil && NormalizePhone(*phone) == "" {
		return Identity{}, invalidInput(op, "phone_number has no digits")
	}
	now := nowOr(patch.Now)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[strings.TrimSpace(id)]
	if !ok || r.ident.DeletedAt != nil {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	emailNorm := r.emailNorm
	if email != nil {
		emailNorm = NormalizeEmail(*email)
	}
	phoneNorm := r.phoneNorm
	if phone != nil {
		phoneNorm = normPhonePtr(phone)
	}
	if field, ok := s.collision(r.ident.ID, "", emailNorm, phoneNorm); ok {
		return Identity{}, ConflictError{Op: op, Field: field}
	}

	if email != nil {
		r.ident.Email = *email
		r.emailNorm = emailNorm
	}
	if phone != nil {
		r.ident.PhoneNumber = phone
		r.phoneNorm = phoneNorm
	}
	r.ident.Profile = mergeProfile(r.ident.Profile, patch.Profile)
	r.ident.UpdatedAt = now

	return cloneIdentity(r.ident), nil
}

// UpdateLastLogin stamps last_login_at on a visible identity.
func (s *InMemoryStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const op = "identity.UpdateLastLogin"

	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	at = nowOr(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[strings.TrimSpace(id)]
	if !ok || !r.ident.Visible() {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	r.ident.LastLoginAt = &at
	return nil
}

// SoftDelete tombstones a non-deleted identity.
func (s *InMemoryStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const op = "identity.SoftDelete"

	if err := ctx.Err(); err != nil {
		return unavailable(op, err)
	}
	at = nowOr(at)

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[strings.TrimSpace(id)]
	if !ok || r.ident.DeletedAt != nil {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	r.ident.DeletedAt = &at
	r.ident.IsActive = false
	r.ident.UpdatedAt = at
	return nil
}

// collision must be called with s.mu held. Empty username / nil phone are skipped.
func (s *InMemoryStore) collision(selfID, usernameNorm, emailNorm string, phoneNorm *string) (string, bool) {
	for id, r := range s.rows {
		if id == selfID || r.ident.DeletedAt != nil {
			continue
		}
		switch {
		case usernameNorm != "" && r.usernameNorm == usernameNorm:
			return FieldNameUsername, true
		case emailNorm != "" && r.emailNorm == emailNorm:
			return FieldNameEmail, true
		case phoneNorm != nil && r.phoneNorm != nil && *r.phoneNorm == *phoneNorm:
			return FieldNamePhoneNumber, true
		}
	}
	return "", false
}

// prepareCreate validates and normalizes a CreateInput and assigns the id.
// Shared by all stores so they agree on what a valid row is.
func prepareCreate(op string, in CreateInput) (*rowDraft, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	phone := trimPtr(in.PhoneNumber)

	if username == "" {
		return nil, invalidInput(op, "username is required")
	}
	if email == "" {
		return nil, invalidInput(op, "email is required")
	}
	if strings.TrimSpace(in.CredentialHash) == "" {
		return nil, invalidInput(op, "credential hash is required")
	}
	phoneNorm := normPhonePtr(phone)
	if phone != nil && phoneNorm == nil {
		return nil, invalidInput(op, "phone_number has no digits")
	}

	now := nowOr(in.Now)
	id, err := ids.NewULID(now)
	if err != nil {
		return nil, err
	}

	return &rowDraft{
		ident: Identity{
			ID:             id,
			Username:       username,
			Email:          email,
			PhoneNumber:    phone,
			CredentialHash: in.CredentialHash,
			Profile:        cloneProfile(in.Profile),
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		usernameNorm: NormalizeUsername(username),
		emailNorm:    NormalizeEmail(email),
		phoneNorm:    phoneNorm,
	}, nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func mergeProfile(base, patch Profile) Profile {
	out := cloneProfile(base)
	if v := trimPtr(patch.FirstName); v != nil {
		out.FirstName = v
	}
	if v := trimPtr(patch.LastName); v != nil {
		out.LastName = v
	}
	if v := trimPtr(patch.ProfilePicture); v != nil {
		out.ProfilePicture = v
	}
	if v := trimPtr(patch.CoverPicture); v != nil {
		out.CoverPicture = v
	}
	if patch.BirthDate != nil {
		d := *patch.BirthDate
		out.BirthDate = &d
	}
	if v := trimPtr(patch.Gender); v != nil {
		out.Gender = v
	}
	if v := trimPtr(patch.Bio); v != nil {
		out.Bio = v
	}
	return out
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneProfile(p Profile) Profile {
	return Profile{
		FirstName:      cloneStr(p.FirstName),
		LastName:       cloneStr(p.LastName),
		ProfilePicture: cloneStr(p.ProfilePicture),
		CoverPicture:   cloneStr(p.CoverPicture),
		BirthDate:      cloneTime(p.BirthDate),
		Gender:         cloneStr(p.Gender),
		Bio:            cloneStr(p.Bio),
	}
}

func cloneIdentity(i Identity) Identity {
	out := i
	out.PhoneNumber = cloneStr(i.PhoneNumber)
	out.Profile = cloneProfile(i.Profile)
	out.DeletedAt = cloneTime(i.DeletedAt)
	out.LastLoginAt = cloneTime(i.LastLoginAt)
	return out
}
