package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirkwood-lang/mirkwood/internal/errors"
)

func TestIssuerRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Token(Identity{Role: "staff", User: "u1", Permissions: []Entry{
		{Resolvers: []string{"Order.one"}, Entities: []string{"42"}},
	}})
	require.NoError(t, err)

	id, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "staff", id.Role)
	assert.Equal(t, "u1", id.User)
	assert.Equal(t, []Entry{{Resolvers: []string{"Order.one"}, Entities: []string{"42"}}}, id.Permissions)

	token, err = issuer.Token(Identity{})
	require.NoError(t, err)
	id, err = issuer.Parse(token)
	require.NoError(t, err)
	assert.True(t, id.IsAnonymous())
}

func TestIssuerMissingSecret(t *testing.T) {
	issuer := NewIssuer("", 0)

	_, err := issuer.Token(Identity{Role: "staff"})
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = issuer.Parse("anything")
	assert.True(t, errors.Is(err, errors.CodeAuthenticationTokenInvalid))
}

func TestIssuerExpiredToken(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Token(Identity{Role: "staff"})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	assert.True(t, errors.Is(err, errors.CodeAuthenticationTokenExpired))
}

func TestIssuerInvalidTokens(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	other := NewIssuer("other-secret", time.Hour)

	foreign, err := other.Token(Identity{Role: "admin"})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"role": "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"none alg":     none,
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.True(t, errors.Is(err, errors.CodeAuthenticationTokenInvalid))
		})
	}
}
