// Package auth resolves bearer tokens to caller identities by delegating
// to the hosted identity provider. Verification fails closed: any
// provider-side rejection, malformed response, or transport failure is
// normalized to ErrInvalidToken.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/becomeliminal/multimem/internal/config"
)

var (
	// ErrMissingToken means the Authorization header was absent or not a
	// bearer scheme.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken means the identity provider rejected the token or
	// could not be reached.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotConfigured means the provider URL or anonymous key is unset.
	// This is an operator fault, not a caller fault.
	ErrNotConfigured = errors.New("auth provider not configured")
)

// Identity is the caller resolved from a bearer token. It lives for one
// request and is never persisted.
type Identity struct {
	ID string `json:"id"`
}

// Verifier verifies bearer tokens against the provider's user endpoint
// using the public (anonymous) credential. No caching: every request
// re-verifies.
type Verifier struct {
	baseURL string
	anonKey string
	client  *http.Client
	logger  *log.Logger
}

// NewVerifier creates a Verifier from settings.
func NewVerifier(cfg config.Settings, logger *log.Logger) *Verifier {
	return &Verifier{
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/"),
		anonKey: cfg.SupabaseAnonKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Verify resolves the Authorization header value to an Identity.
// The scheme prefix is matched case-insensitively.
func (v *Verifier) Verify(ctx context.Context, authorization string) (Identity, error) {
	if authorization == "" || !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return Identity{}, ErrMissingToken
	}
	token := strings.TrimSpace(authorization[len("bearer "):])
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	if v.baseURL == "" || v.anonKey == "" {
		v.logger.Error("supabase not configured")
		return Identity{}, ErrNotConfigured
	}

	v.logger.Debug("verifying token", "token", preview(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("token verification failed", "err", err)
		return Identity{}, ErrInvalidToken
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("token rejected", "status", resp.StatusCode)
		return Identity{}, ErrInvalidToken
	}

	var user Identity
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil || user.ID == "" {
		v.logger.Warn("token verification returned no user", "err", err)
		return Identity{}, ErrInvalidToken
	}

	return user, nil
}

// preview truncates a token for logging.
func preview(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10] + "..."
}
