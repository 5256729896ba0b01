package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/formwell/formwell-portal/internal/rbac"
)

// ErrInvalidToken covers malformed, expired and badly signed bearer tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

const tokenIssuer = "formwell-portal"

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 bearer tokens carrying the actor.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer with the given signing secret and lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for actor.
func (t *TokenIssuer) Issue(actor *rbac.Actor) (string, time.Time, error) {
	if actor == nil || actor.UserID == "" || !actor.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: incomplete actor", ErrInvalidToken)
	}
	now := t.now()
	expiresAt := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a token and returns the actor it describes.
func (t *TokenIssuer) Verify(raw string) (*rbac.Actor, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	role := rbac.ParseRole(c.Role)
	if c.Subject == "" || !role.Valid() {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	return &rbac.Actor{Role: role, UserID: c.Subject}, nil
}
