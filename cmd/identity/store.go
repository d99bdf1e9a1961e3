package identity

import (
	"context"
	"time"
)

// Profile holds descriptive identity fields. None of them carry a uniqueness constraint.
type Profile struct {
	FirstName      *string
	LastName       *string
	ProfilePicture *string
	CoverPicture   *string
	BirthDate      *time.Time
	Gender         *string
	Bio            *string
}

// Identity is the durable record for one registered user.
// IMPORTANT: CredentialHash is a PHC Argon2id string; the plain secret is never stored.
type Identity struct {
	ID          string
	Username    string
	Email       string
	PhoneNumber *string

	CredentialHash string

	Profile Profile

	IsActive    bool
	DeletedAt   *time.Time
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Visible reports whether the identity may be resolved or authenticated.
func (i Identity) Visible() bool {
	return i.IsActive && i.DeletedAt == nil
}

// Field selects the attribute used by Store.FindBy.
type Field int

const (
	FieldID Field = iota + 1
	FieldEmail
	FieldUsername
	FieldPhoneNumber
)

func (f Field) String() string {
	switch f {
	case FieldID:
		return "id"
	case FieldEmail:
		return FieldNameEmail
	case FieldUsername:
		return FieldNameUsername
	case FieldPhoneNumber:
		return FieldNamePhoneNumber
	default:
		return "unknown"
	}
}

// CreateInput describes a new identity as handed to the store.
// CredentialHash must already be derived; stores never see a plain password.
type CreateInput struct {
	Username       string
	Email          string
	PhoneNumber    *string
	CredentialHash string
	Profile        Profile
	Now            time.Time
}

// ProfilePatch is a COALESCE-style patch: nil fields are left untouched.
type ProfilePatch struct {
	Email       *string
	PhoneNumber *string
	Profile     Profile
	Now         time.Time
}

// ListInput pages through visible identities ordered by id.
type ListInput struct {
	Limit  int
	Offset int
}

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// Normalized clamps Limit to [1, 100] (default 10) and Offset to >= 0.
func (in ListInput) Normalized() ListInput {
	if in.Limit <= 0 {
		in.Limit = defaultListLimit
	}
	if in.Limit > maxListLimit {
		in.Limit = maxListLimit
	}
	if in.Offset < 0 {
		in.Offset = 0
	}
	return in
}

// Store is the identity persistence boundary.
//
// Contract shared by every implementation:
//   - Create enforces username/email/phone uniqueness among non-deleted rows atomically,
//     as part of the write. Violations return ConflictError with the field name.
//   - FindBy and List only see rows with deleted_at IS NULL AND is_active = true.
//   - GetByID is the unfiltered administrative read.
//   - Timeouts and unreachable storage surface as ErrStorageUnavailable.
type Store interface {
	Create(ctx context.Context, in CreateInput) (Identity, error)
	FindBy(ctx context.Context, field Field, value string) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	List(ctx context.Context, in ListInput) ([]Identity, error)
	UpdateProfile(ctx context.Context, id string, patch ProfilePatch) (Identity, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	Close() error
}
