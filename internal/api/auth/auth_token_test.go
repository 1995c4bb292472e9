package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yisivlay/account-service/config"
	"github.com/yisivlay/account-service/internal/types"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey: "test-secret-key-with-enough-length",
		TokenTTL:  24 * time.Hour,
		Issuer:    "account-service",
		Audience:  "account-service-clients",
	}
}

func testUser() *types.UserAccount {
	return &types.UserAccount{
		ID:        uuid.New(),
		Firstname: "Sok",
		Lastname:  "Dara",
		Email:     "dara@example.com",
		Roles:     []types.Role{{ID: 1, Name: types.DefaultRoleName}},
	}
}

func TestTokenIssuer_MintAndParse(t *testing.T) {
	issuer := NewTokenIssuer(testJWTConfig())
	user := testUser()

	tokenString, err := issuer.Mint(user)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := issuer.Parse(tokenString)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.UserID)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "Sok Dara", claims.FullName)
	assert.Equal(t, "dara@example.com", claims.Email)
	assert.Equal(t, types.DefaultRoleName, claims.Role)
	assert.Equal(t, "account-service", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenIssuer(testJWTConfig())

	otherCfg := testJWTConfig()
	otherCfg.SecretKey = "a-completely-different-signing-key"
	forged, err := NewTokenIssuer(otherCfg).Mint(testUser())
	require.NoError(t, err)

	_, err = issuer.Parse(forged)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenIssuer_RejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	cfg.TokenTTL = -time.Minute
	issuer := NewTokenIssuer(cfg)

	tokenString, err := issuer.Mint(testUser())
	require.NoError(t, err)

	_, err = issuer.Parse(tokenString)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer(testJWTConfig())
	_, err := issuer.Parse("not-a-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
}
