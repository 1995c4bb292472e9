package user

import (
	"time"

	"github.com/google/uuid"

	"github.com/yisivlay/account-service/internal/types"
)

// UserResponse is the external representation of an account.
type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Firstname   string     `json:"firstname"`
	Lastname    string     `json:"lastname"`
	Email       string     `json:"email"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Enabled     bool       `json:"enabled"`
	Locked      bool       `json:"locked"`
	Roles       []string   `json:"roles,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewUserResponse maps the domain account onto the response shape.
func NewUserResponse(u *types.UserAccount) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Firstname:   u.Firstname,
		Lastname:    u.Lastname,
		Email:       u.Email,
		DateOfBirth: u.DateOfBirth,
		Enabled:     u.Enabled,
		Locked:      u.Locked,
		CreatedAt:   u.CreatedAt,
	}
	for _, r := range u.Roles {
		resp.Roles = append(resp.Roles, r.Name)
	}
	return resp
}

// UpdateUserParams carries the mutable profile fields. Nil pointers leave
// the stored value untouched.
type UpdateUserParams struct {
	Firstname   *string    `json:"firstname,omitempty"`
	Lastname    *string    `json:"lastname,omitempty"`
	Email       *string    `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Password    *string    `json:"password,omitempty"`
}
