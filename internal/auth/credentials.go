package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// TokenEnv overrides any stored credentials with a raw access token.
const TokenEnv = "REHEARSE_ACCESS_TOKEN"

var (
	// ErrNoCredentials is returned when neither the env override nor a
	// credentials file is available.
	ErrNoCredentials = errors.New("no credentials: run `rehearse login`")

	// ErrExpired is returned when the stored access token is past its expiry.
	ErrExpired = errors.New("credentials expired: run `rehearse login`")
)

// User identifies the signed-in account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Credentials is the persisted auth session.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresAt is unix seconds; zero means unknown.
	ExpiresAt int64 `json:"expires_at,omitempty"`
	User      User  `json:"user"`
}

// Load reads credentials from the environment override or from path.
func Load(path string) (*Credentials, error) {
	if tok := os.Getenv(TokenEnv); tok != "" {
		return &Credentials{AccessToken: tok, TokenType: "bearer"}, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if c.AccessToken == "" {
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// Save writes credentials to path with owner-only permissions.
func Save(path string, c Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Expiry returns when the access token stops being valid. The stored
// expires_at wins; otherwise the token's own exp claim is used. The zero time
// means the expiry is unknown.
func (c Credentials) Expiry() time.Time {
	if c.ExpiresAt > 0 {
		return time.Unix(c.ExpiresAt, 0)
	}
	claims, err := ParseClaims(c.AccessToken)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Subject returns the user id, falling back to the token's sub claim.
func (c Credentials) Subject() string {
	if c.User.ID != "" {
		return c.User.ID
	}
	claims, err := ParseClaims(c.AccessToken)
	if err != nil {
		return ""
	}
	return claims.Subject
}

// Token converts the credentials to an oauth2 token, rejecting expired ones.
func (c Credentials) Token(now time.Time) (*oauth2.Token, error) {
	exp := c.Expiry()
	if !exp.IsZero() && !now.Before(exp) {
		return nil, ErrExpired
	}
	typ := c.TokenType
	if typ == "" {
		typ = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    typ,
		RefreshToken: c.RefreshToken,
		Expiry:       exp,
	}, nil
}

// TokenSource returns a static source for the access token. Refresh is the
// auth provider's job; an expired token is reported up front instead.
func (c Credentials) TokenSource() (oauth2.TokenSource, error) {
	tok, err := c.Token(time.Now())
	if err != nil {
		return nil, err
	}
	return oauth2.StaticTokenSource(tok), nil
}

// ParseClaims decodes the JWT payload without verifying the signature. The
// backend verifies tokens; the client only reads exp and sub.
func ParseClaims(token string) (*jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &claims, nil
}
