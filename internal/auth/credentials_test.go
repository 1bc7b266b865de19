package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Setenv(TokenEnv, "")
	path := filepath.Join(t.TempDir(), "rehearse", "credentials.json")

	in := Credentials{
		AccessToken: "abc",
		TokenType:   "bearer",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		User:        User{ID: "u1", Email: "a@example.com"},
	}
	require.NoError(t, Save(path, in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}

func TestLoad_Missing(t *testing.T) {
	t.Setenv(TokenEnv, "")
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")
	c, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.AccessToken)
}

func TestExpiry_FallsBackToJWTClaim(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	c := Credentials{AccessToken: signed(t, jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(exp),
	})}

	assert.True(t, c.Expiry().Equal(exp))
	assert.Equal(t, "user-42", c.Subject())
}

func TestExpiry_OpaqueTokenIsUnknown(t *testing.T) {
	c := Credentials{AccessToken: "opaque"}
	assert.True(t, c.Expiry().IsZero())

	tok, err := c.Token(time.Now())
	require.NoError(t, err)
	assert.Equal(t, "opaque", tok.AccessToken)
	assert.Equal(t, "bearer", tok.TokenType)
}

func TestToken_Expired(t *testing.T) {
	c := Credentials{AccessToken: "abc", ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	_, err := c.Token(time.Now())
	assert.ErrorIs(t, err, ErrExpired)

	_, err = c.TokenSource()
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenSource(t *testing.T) {
	c := Credentials{AccessToken: "abc", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	ts, err := c.TokenSource()
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.True(t, tok.Valid())
}
