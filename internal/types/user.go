package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserAccount represents the core user entity in the domain.
type UserAccount struct {
	ID          uuid.UUID  `json:"id" example:"d290f1ee-6c54-4b01-90e6-d701748f0851"` // Unique identifier (UUID).
	Firstname   string     `json:"firstname" example:"John"`
	Lastname    string     `json:"lastname" example:"Doe"`
	Email       string     `json:"email" example:"john.doe@example.com"` // Unique email address used for login.
	Password    string     `json:"-"`                                    // Hashed password (never exposed).
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Enabled     bool       `json:"enabled"` // False until account activation completes.
	Locked      bool       `json:"locked"`
	Roles       []Role     `json:"roles"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FullName joins first and last name for display and token claims.
func (u *UserAccount) FullName() string {
	return strings.TrimSpace(u.Firstname + " " + u.Lastname)
}

// HasRole reports whether the account carries the named role.
func (u *UserAccount) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Role is a flat label associated with accounts. Roles are looked up, never
// created, by this service.
type Role struct {
	ID        int       `json:"id"`
	Name      string    `json:"name" example:"USER"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultRoleName is assigned to every account at registration.
const DefaultRoleName = "USER"
