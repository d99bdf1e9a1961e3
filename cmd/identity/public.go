package identity

import "time"

// PublicIdentity is the externally visible projection of an Identity.
// It deliberately has no credential field.
type PublicIdentity struct {
	ID          string
	Username    string
	Email       string
	PhoneNumber *string
	Profile     Profile
	IsActive    bool
	DeletedAt   *time.Time
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PublicSession is what a successful login hands back to the caller.
type PublicSession struct {
	ID       string
	Username string
	Email    string
}

// AuthResult is the outcome of a successful Authenticate.
// Warning is set when the last-login stamp could not be persisted; the login still stands.
type AuthResult struct {
	Session PublicSession
	Warning error
}

// Public strips the credential hash.
func (i Identity) Public() PublicIdentity {
	c := cloneIdentity(i)
	return PublicIdentity{
		ID:          c.ID,
		Username:    c.Username,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
		Profile:     c.Profile,
		IsActive:    c.IsActive,
		DeletedAt:   c.DeletedAt,
		LastLoginAt: c.LastLoginAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (i Identity) session() PublicSession {
	return PublicSession{ID: i.ID, Username: i.Username, Email: i.Email}
}
