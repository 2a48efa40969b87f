package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mirkwood-lang/mirkwood/internal/errors"
)

// ErrMissingSecret is returned when tokens are used without a configured secret
var ErrMissingSecret = stderrors.New("auth: token secret is not configured")

// DefaultTokenTTL is used when the issuer is created with a zero TTL
const DefaultTokenTTL = 24 * time.Hour

// Claims are the signed contents of a bearer token
type Claims struct {
	Role        string  `json:"role"`
	User        string  `json:"user,omitempty"`
	Permissions []Entry `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 bearer tokens
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer with the given secret and token TTL
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Token signs the identity's role, user and permissions
func (i *Issuer) Token(id Identity) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrMissingSecret
	}
	role := id.Role
	if role == "" {
		role = Anonymous
	}

	now := i.now()
	claims := Claims{
		Role:        role,
		User:        id.User,
		Permissions: id.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.User,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the identity it carries. Expired
// tokens give AuthenticationTokenExpired; anything else that fails
// validation gives AuthenticationTokenInvalid.
func (i *Issuer) Parse(tokenString string) (*Identity, error) {
	if len(i.secret) == 0 {
		return nil, errors.TokenInvalid().WithCause(ErrMissingSecret)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))

	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.TokenExpired().WithCause(err)
	case err != nil:
		return nil, errors.TokenInvalid().WithCause(err)
	}

	role := claims.Role
	if role == "" {
		role = Anonymous
	}
	return &Identity{Role: role, User: claims.User, Permissions: claims.Permissions}, nil
}
