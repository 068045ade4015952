package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func newClaims(sub string, ttl time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "user-service",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Roles: []string{RoleUser},
	}
}

func TestLoadKeysAndValidate(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pubkey.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	k, err := LoadKeys(path)
	require.NoError(t, err)

	claims, err := k.ValidateToken(signToken(t, priv, jwt.SigningMethodRS256, newClaims("user-1", time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.HasRole(RoleUser))
	assert.False(t, claims.HasRole(RoleAdmin))
}

func TestValidateToken_Rejects(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	k, err := NewKeys(&priv.PublicKey)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", signToken(t, priv, jwt.SigningMethodRS256, newClaims("user-1", -time.Minute))},
		{"wrong key", signToken(t, other, jwt.SigningMethodRS256, newClaims("user-1", time.Hour))},
		{"wrong alg", signToken(t, priv, jwt.SigningMethodRS512, newClaims("user-1", time.Hour))},
		{"no subject", signToken(t, priv, jwt.SigningMethodRS256, newClaims("", time.Hour))},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestLoadKeys_MissingFile(t *testing.T) {
	_, err := LoadKeys(filepath.Join(t.TempDir(), "nope.pem"))
	assert.Error(t, err)
}
