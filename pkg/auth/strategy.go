package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrInvalidSession indicates the identity provider rejected the session.
// Transport failures, malformed responses, and missing configuration all
// collapse into this error: authentication fails closed.
var ErrInvalidSession = errors.New("invalid session")

// SessionStrategy confirms a caller's identity. Exactly one strategy is
// selected at startup; the two validation paths never coexist at runtime.
type SessionStrategy interface {
	// Authenticate returns the verified claims for the request, or
	// ErrInvalidSession when the caller cannot be authenticated.
	Authenticate(ctx context.Context, r *http.Request) (*Claims, error)
}

// ProviderConfig configures the ProviderStrategy endpoints.
type ProviderConfig struct {
	// PublicSessionURL validates regular user sessions.
	PublicSessionURL string
	// AdminSessionURL validates admin sessions; tried when the public
	// endpoint reports the session invalid.
	AdminSessionURL string
	// Timeout bounds each outbound validation call.
	Timeout time.Duration
}

// ProviderStrategy validates sessions by forwarding the inbound cookie
// header verbatim to the identity provider's session endpoints.
type ProviderStrategy struct {
	config ProviderConfig
	client *http.Client
}

// NewProviderStrategy creates a cookie-forwarding session strategy
func NewProviderStrategy(config ProviderConfig) *ProviderStrategy {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ProviderStrategy{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

// sessionVerdict is the identity provider's response shape
type sessionVerdict struct {
	IsValid bool    `json:"isValid"`
	User    *Claims `json:"user,omitempty"`
}

// Authenticate forwards the session cookie to the public endpoint and falls
// back to the admin endpoint when the public one reports invalid.
func (s *ProviderStrategy) Authenticate(ctx context.Context, r *http.Request) (*Claims, error) {
	if s.config.PublicSessionURL == "" {
		return nil, ErrInvalidSession
	}

	cookie := r.Header.Get("Cookie")

	claims, err := s.check(ctx, s.config.PublicSessionURL, cookie)
	if err == nil {
		return claims, nil
	}

	// Two session kinds are supported; admin sessions are issued by a
	// separate endpoint.
	if s.config.AdminSessionURL != "" {
		if claims, err := s.check(ctx, s.config.AdminSessionURL, cookie); err == nil {
			return claims, nil
		}
	}

	return nil, ErrInvalidSession
}

func (s *ProviderStrategy) check(ctx context.Context, url, cookie string) (*Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build validation request: %w", err)
	}
	if cookie != "" {
		// The cookie header is forwarded unmodified; the provider owns
		// the session format.
		req.Header.Set("Cookie", cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var verdict sessionVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("malformed identity provider response: %w", err)
	}

	if !verdict.IsValid || verdict.User == nil || verdict.User.ID == "" {
		return nil, ErrInvalidSession
	}

	return verdict.User, nil
}
