package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yisivlay/account-service/config"
	"github.com/yisivlay/account-service/internal/types"
)

// TokenIssuer mints and verifies signed bearer credentials. The signing key
// is process-wide configuration, loaded once at startup.
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
	audience  string
}

func NewTokenIssuer(cfg config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{
		secretKey: []byte(cfg.SecretKey),
		ttl:       cfg.TokenTTL,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
	}
}

// Mint issues a signed credential for the account carrying its identity,
// display name, email and primary role.
func (ti *TokenIssuer) Mint(user *types.UserAccount) (string, error) {
	now := time.Now()

	role := ""
	if len(user.Roles) > 0 {
		role = user.Roles[0].Name
	}

	claims := types.Claims{
		UserID:   user.ID.String(),
		FullName: user.FullName(),
		Email:    user.Email,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    ti.issuer,
			Audience:  jwt.ClaimStrings{ti.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the credential's signature and expiry and returns its
// claims. The returned error wraps the jwt package sentinels
// (jwt.ErrTokenExpired, jwt.ErrSignatureInvalid, ...) so callers can
// distinguish failure modes with errors.Is.
func (ti *TokenIssuer) Parse(tokenString string) (*types.Claims, error) {
	claims := &types.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token validation failed: %w", jwt.ErrTokenUnverifiable)
	}
	return claims, nil
}
