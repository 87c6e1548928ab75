package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures the OIDC session strategy.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TokenCookie names the cookie carrying the ID token. A bearer
	// Authorization header takes precedence when present.
	TokenCookie string
}

// OIDCStrategy validates sessions by verifying OIDC ID tokens locally.
// This is the authorization-code-exchange path: the token the caller holds
// was minted by the provider during login and is verified offline here.
type OIDCStrategy struct {
	config       OIDCConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCStrategy discovers the provider and builds a token verifier
func NewOIDCStrategy(ctx context.Context, config OIDCConfig) (*OIDCStrategy, error) {
	if config.IssuerURL == "" || config.ClientID == "" {
		return nil, fmt.Errorf("oidc issuer_url and client_id are required")
	}
	if config.TokenCookie == "" {
		config.TokenCookie = "linkdeck_session"
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.RedirectURL,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	return &OIDCStrategy{
		config:       config,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// AuthCodeURL returns the provider login URL for the given state
func (s *OIDCStrategy) AuthCodeURL(state string) string {
	return s.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a verified identity. Used by the
// login callback handler; request-path validation goes through Authenticate.
func (s *OIDCStrategy) Exchange(ctx context.Context, code string) (*Claims, string, error) {
	token, err := s.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, "", fmt.Errorf("missing id_token in token response")
	}

	claims, err := s.verify(ctx, rawIDToken)
	if err != nil {
		return nil, "", err
	}
	return claims, rawIDToken, nil
}

// Authenticate verifies the ID token carried by the request
func (s *OIDCStrategy) Authenticate(ctx context.Context, r *http.Request) (*Claims, error) {
	rawToken := ""
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		rawToken = strings.TrimPrefix(authHeader, "Bearer ")
	} else if cookie, err := r.Cookie(s.config.TokenCookie); err == nil {
		rawToken = cookie.Value
	}
	if rawToken == "" {
		return nil, ErrInvalidSession
	}

	claims, err := s.verify(ctx, rawToken)
	if err != nil {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

func (s *OIDCStrategy) verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var tokenClaims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}
	if err := idToken.Claims(&tokenClaims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	if tokenClaims.Email == "" {
		return nil, fmt.Errorf("missing email claim")
	}

	return &Claims{
		ID:    idToken.Subject,
		Email: tokenClaims.Email,
		Name:  tokenClaims.Name,
		Role:  tokenClaims.Role,
	}, nil
}
