package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkdeck/linkdeck/pkg/httputil"
)

// fakeProvider simulates the identity provider's session endpoints
type fakeProvider struct {
	publicSessions map[string]*Claims // cookie header -> claims
	adminSessions  map[string]*Claims
	publicStatus   int // non-zero forces this status from the public endpoint
	publicCalls    int
	adminCalls     int
	lastCookie     string
}

func (f *fakeProvider) start(t *testing.T) ProviderConfig {
	t.Helper()

	handler := func(sessions map[string]*Claims, calls *int, status int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			*calls++
			f.lastCookie = r.Header.Get("Cookie")
			if status != 0 {
				w.WriteHeader(status)
				return
			}
			claims := sessions[r.Header.Get("Cookie")]
			httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"isValid": claims != nil,
				"user":    claims,
			})
		}
	}

	publicSrv := httptest.NewServer(handler(f.publicSessions, &f.publicCalls, f.publicStatus))
	adminSrv := httptest.NewServer(handler(f.adminSessions, &f.adminCalls, 0))
	t.Cleanup(publicSrv.Close)
	t.Cleanup(adminSrv.Close)

	return ProviderConfig{
		PublicSessionURL: publicSrv.URL,
		AdminSessionURL:  adminSrv.URL,
	}
}

func requestWithCookie(cookie string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req
}

func TestProviderStrategyValidPublicSession(t *testing.T) {
	provider := &fakeProvider{
		publicSessions: map[string]*Claims{
			"session=abc": {ID: "u1", Email: "u1@example.com", Role: "user"},
		},
	}
	strategy := NewProviderStrategy(provider.start(t))

	claims, err := strategy.Authenticate(context.Background(), requestWithCookie("session=abc"))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.ID)
	assert.Equal(t, 0, provider.adminCalls, "valid public session must not consult the admin endpoint")
}

func TestProviderStrategyAdminFallback(t *testing.T) {
	provider := &fakeProvider{
		publicSessions: map[string]*Claims{},
		adminSessions: map[string]*Claims{
			"session=admin": {ID: "a1", Email: "a1@example.com", Role: "admin"},
		},
	}
	strategy := NewProviderStrategy(provider.start(t))

	claims, err := strategy.Authenticate(context.Background(), requestWithCookie("session=admin"))
	require.NoError(t, err)
	assert.Equal(t, "a1", claims.ID)
	assert.Equal(t, 1, provider.publicCalls)
	assert.Equal(t, 1, provider.adminCalls)
}

func TestProviderStrategyBothEndpointsReject(t *testing.T) {
	provider := &fakeProvider{publicSessions: map[string]*Claims{}, adminSessions: map[string]*Claims{}}
	strategy := NewProviderStrategy(provider.start(t))

	_, err := strategy.Authenticate(context.Background(), requestWithCookie("session=bogus"))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestProviderStrategyCookieForwardedVerbatim(t *testing.T) {
	cookie := "session=abc; theme=dark; _ga=GA1.2"
	provider := &fakeProvider{
		publicSessions: map[string]*Claims{cookie: {ID: "u1"}},
	}
	strategy := NewProviderStrategy(provider.start(t))

	_, err := strategy.Authenticate(context.Background(), requestWithCookie(cookie))
	require.NoError(t, err)
	assert.Equal(t, cookie, provider.lastCookie)
}

func TestProviderStrategyServerErrorFailsClosed(t *testing.T) {
	provider := &fakeProvider{publicStatus: http.StatusInternalServerError, adminSessions: map[string]*Claims{}}
	strategy := NewProviderStrategy(provider.start(t))

	_, err := strategy.Authenticate(context.Background(), requestWithCookie("session=abc"))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestProviderStrategyUnreachableProviderFailsClosed(t *testing.T) {
	strategy := NewProviderStrategy(ProviderConfig{
		PublicSessionURL: "http://127.0.0.1:1/session",
	})

	_, err := strategy.Authenticate(context.Background(), requestWithCookie("session=abc"))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestProviderStrategyMissingConfigurationFailsClosed(t *testing.T) {
	strategy := NewProviderStrategy(ProviderConfig{})

	_, err := strategy.Authenticate(context.Background(), requestWithCookie("session=abc"))
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestProviderStrategyValidVerdictWithoutUserRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"isValid": true})
	}))
	t.Cleanup(srv.Close)
	strategy := NewProviderStrategy(ProviderConfig{PublicSessionURL: srv.URL})

	_, err := strategy.Authenticate(context.Background(), requestWithCookie("session=abc"))
	assert.ErrorIs(t, err, ErrInvalidSession)
}
