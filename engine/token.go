package engine

import (
	"crypto/rand"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs short-lived HS256 session tokens for a single audience.
// The key lives only in memory, so tokens do not survive a restart.
type TokenIssuer struct {
	key      []byte
	audience string
}

func NewTokenIssuer(audience string) *TokenIssuer {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	return &TokenIssuer{key: key, audience: audience}
}

func (t *TokenIssuer) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.RegisteredClaims{
		Issuer:    t.audience,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{t.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(t.key)
}

func (t *TokenIssuer) Verify(tok string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tok, claims, func(token *jwt.Token) (any, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || !slices.Contains(claims.Audience, t.audience) {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
