package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const ClaimsKey ctxKey = 1

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

func (c Claims) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

// Keys verifies tokens issued by the user service. This service never signs tokens.
type Keys struct {
	publicKey *rsa.PublicKey
}

func NewKeys(publicKey *rsa.PublicKey) (*Keys, error) {
	if publicKey == nil {
		return nil, errors.New("public key cannot be nil")
	}
	return &Keys{publicKey: publicKey}, nil
}

func LoadKeys(publicKeyPath string) (*Keys, error) {
	pem, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading auth public key %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parsing auth public key %w", err)
	}
	return NewKeys(publicKey)
}

func (k *Keys) ValidateToken(tokenStr string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		return k.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
