package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*Credentials)(nil)

// Credentials holds the process-wide bearer token with an explicit load/set/clear lifecycle.
//
// Reads take a shared lock so a token swap never races an in-flight request building its header.
// When path is empty the token lives in memory only.
type Credentials struct {
	path string
	now  func() time.Time

	mu  sync.RWMutex
	tok *oauth2.Token
}

// TokenClaims are the unverified claims of the stored JWT.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// NewCredentials creates a store persisted at path (~ is expanded).
func NewCredentials(path string) *Credentials {
	if path != "" {
		path = shared.ExpandPath(path)
	}
	return &Credentials{path: path, now: time.Now}
}

// Path returns the file backing the store.
func (c *Credentials) Path() string { return c.path }

// Load reads the persisted token. A missing file leaves the store empty without error.
func (c *Credentials) Load() error {
	if c.path == "" {
		return nil
	}

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("failed to parse token file: %w", err)
	}

	c.mu.Lock()
	c.tok = &tok
	c.mu.Unlock()
	return nil
}

// Set stores a freshly issued token and persists it.
//
// The expiry is taken from the JWT exp claim when present.
func (c *Credentials) Set(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidInput)
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if claims, err := parseClaims(raw); err == nil {
		tok.Expiry = claims.ExpiresAt
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path != "" {
		if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
		data, err := json.MarshalIndent(tok, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode token: %w", err)
		}
		if err := os.WriteFile(c.path, data, 0600); err != nil {
			return fmt.Errorf("failed to write token file: %w", err)
		}
	}

	c.tok = tok
	return nil
}

// Clear forgets the token and removes the persisted copy.
func (c *Credentials) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tok = nil
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// Token implements [oauth2.TokenSource], returning a copy of the current token.
func (c *Credentials) Token() (*oauth2.Token, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tok == nil || c.tok.AccessToken == "" {
		return nil, shared.ErrNotAuthenticated
	}
	if !c.tok.Expiry.IsZero() && c.now().After(c.tok.Expiry) {
		return nil, fmt.Errorf("%w: expired at %s", shared.ErrTokenExpired, c.tok.Expiry.Format(time.RFC3339))
	}

	tok := *c.tok
	return &tok, nil
}

// Claims decodes the stored token's claims without verifying its signature.
func (c *Credentials) Claims() (*TokenClaims, error) {
	c.mu.RLock()
	tok := c.tok
	c.mu.RUnlock()

	if tok == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return parseClaims(tok.AccessToken)
}

func parseClaims(raw string) (*TokenClaims, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: token is not a JWT: %v", shared.ErrInvalidInput, err)
	}

	out := &TokenClaims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
