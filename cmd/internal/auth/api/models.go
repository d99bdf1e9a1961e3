package authapi

import "time"

type profileFields struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	ProfilePicture *string `json:"profile_picture"`
	CoverPicture   *string `json:"cover_picture"`
	BirthDate      *string `json:"birth_date"` // YYYY-MM-DD
	Gender         *string `json:"gender"`
	Bio            *string `json:"bio"`
}

type registerRequest struct {
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Password    string  `json:"password"`
	profileFields
}

type loginRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	Password    string  `json:"password"`
}

type patchUserRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	profileFields
}

type userResponse struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PhoneNumber    *string    `json:"phone_number"`
	FirstName      *string    `json:"first_name"`
	LastName       *string    `json:"last_name"`
	ProfilePicture *string    `json:"profile_picture"`
	CoverPicture   *string    `json:"cover_picture"`
	BirthDate      *string    `json:"birth_date"`
	Gender         *string    `json:"gender"`
	Bio            *string    `json:"bio"`
	IsActive       bool       `json:"is_active"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type sessionResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type registerResponse struct {
	User userResponse `json:"user"`
}

type loginResponse struct {
	Session sessionResponse `json:"session"`
	Warning string          `json:"warning,omitempty"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

type listResponse struct {
	Users  []userResponse `json:"users"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
