package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ActivationToken is a short numeric code mailed to an account owner.
// Tokens are never mutated after consumption and superseded tokens are left
// in place as an audit trail.
type ActivationToken struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Code        string     `json:"-"` // Plaintext digits, only ever sent by email.
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"` // Nil until consumed.
}

// Expired reports whether the token's TTL has passed at the given instant.
func (t *ActivationToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Consumed reports whether the token was already used to activate.
func (t *ActivationToken) Consumed() bool {
	return t.ValidatedAt != nil
}

// Claims is the payload embedded in issued bearer credentials.
type Claims struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
