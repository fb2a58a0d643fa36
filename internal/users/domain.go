package users

import (
	"time"

	"github.com/google/uuid"
)

// User holds profile and account-state fields. Credentials live with the
// authentication provider; the password hash column is only touched by the
// auth package's local provider.
type User struct {
	ID          uuid.UUID
	Username    string
	Email       string
	FullName    string
	PhoneNumber string
	IsActive    bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	CreatedBy   *uuid.UUID
	UpdatedAt   time.Time
	UpdatedBy   *uuid.UUID
}

// Snapshot renders the user as an audit payload.
func (u User) Snapshot() map[string]any {
	return map[string]any{
		"user_id":      u.ID.String(),
		"username":     u.Username,
		"email":        u.Email,
		"full_name":    u.FullName,
		"phone_number": u.PhoneNumber,
		"is_active":    u.IsActive,
	}
}

// CreateParams carries validated input for user creation.
type CreateParams struct {
	Username    string `validate:"required,min=3,max=50"`
	Email       string `validate:"required,email,max=255"`
	FullName    string `validate:"max=150"`
	PhoneNumber string `validate:"max=50"`
	Password    string `validate:"omitempty,min=8"`
}

// UpdateParams carries validated input for profile updates. Nil fields are
// left untouched.
type UpdateParams struct {
	Email       *string `validate:"omitempty,email,max=255"`
	FullName    *string `validate:"omitempty,max=150"`
	PhoneNumber *string `validate:"omitempty,max=50"`
}
