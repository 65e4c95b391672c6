package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestbook/internal/config"
)

func newTestAuth() (*TokenIssuer, http.Handler, *Identity) {
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: "s", SessionSecret: "cookie-secret", TokenTTLHours: 1}}
	tokens := NewTokenIssuer(cfg)
	store := NewSessionStore(cfg)

	seen := new(Identity)
	handler := AuthMiddleware(tokens, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity := IdentityFromContext(r.Context()); identity != nil {
			*seen = *identity
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return tokens, handler, seen
}

func TestAuthMiddleware_Anonymous(t *testing.T) {
	_, handler, seen := newTestAuth()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, seen.ID)
}

func TestAuthMiddleware_Bearer(t *testing.T) {
	tokens, handler, seen := newTestAuth()
	token, err := tokens.GenerateToken(Identity{ID: "github:1", Name: "Ada"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "github:1", seen.ID)
	assert.Equal(t, "Ada", seen.Name)
}

func TestAuthMiddleware_BadBearer(t *testing.T) {
	_, handler, _ := newTestAuth()

	for _, header := range []string{"Bearer nope", "Token abc", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuthMiddleware_Cookie(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: "s", SessionSecret: "cookie-secret", TokenTTLHours: 1}}
	tokens := NewTokenIssuer(cfg)
	store := NewSessionStore(cfg)

	token, err := tokens.GenerateToken(Identity{ID: "google:9"})
	require.NoError(t, err)

	// write the cookie the same way the OAuth callback does
	rec := httptest.NewRecorder()
	require.NoError(t, SaveToken(store, rec, httptest.NewRequest(http.MethodGet, "/", nil), token))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	var got *Identity
	handler := AuthMiddleware(tokens, store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "google:9", got.ID)
}

func TestClientKey(t *testing.T) {
	trusted := []string{"10.0.0.1", "10.0.0.2"}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trusted    []string
		want       string
	}{
		{"direct peer", "10.0.0.9:5555", "", trusted, "ip:10.0.0.9"},
		{"forwarded header ignored without trusted proxies", "10.0.0.1:5555", "1.2.3.4", nil, "ip:10.0.0.1"},
		{"forwarded header ignored from an untrusted peer", "8.8.8.8:5555", "1.2.3.4", trusted, "ip:8.8.8.8"},
		{"client behind a trusted proxy", "10.0.0.1:5555", "1.2.3.4", trusted, "ip:1.2.3.4"},
		{"spoofed left-most hop skipped", "10.0.0.1:5555", "6.6.6.6, 1.2.3.4, 10.0.0.2", trusted, "ip:1.2.3.4"},
		{"only trusted hops", "10.0.0.1:5555", "10.0.0.2", trusted, "ip:10.0.0.1"},
		{"address without port", "10.0.0.9", "", trusted, "ip:10.0.0.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientKey(req, tt.trusted))
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{ID: "github:3"}))
	assert.Equal(t, "user:github:3", ClientKey(req, trusted))
}

func TestLimiterPool_KeyIgnoresSpoofedHeader(t *testing.T) {
	pool := NewLimiterPool(&config.Config{RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1, Enabled: true}})

	first := httptest.NewRequest(http.MethodPost, "/", nil)
	first.RemoteAddr = "8.8.8.8:1000"
	first.Header.Set("X-Forwarded-For", "1.1.1.1")
	second := httptest.NewRequest(http.MethodPost, "/", nil)
	second.RemoteAddr = "8.8.8.8:1001"
	second.Header.Set("X-Forwarded-For", "2.2.2.2")

	assert.Equal(t, pool.Key(first), pool.Key(second))
	assert.True(t, pool.Allow(pool.Key(first)))
	assert.False(t, pool.Allow(pool.Key(second)))
}

func TestLimiterPool_Allow(t *testing.T) {
	pool := NewLimiterPool(&config.Config{RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 2, Enabled: true}})

	assert.True(t, pool.Allow("a"))
	assert.True(t, pool.Allow("a"))
	assert.False(t, pool.Allow("a"))
	// separate bucket per key
	assert.True(t, pool.Allow("b"))

	disabled := NewLimiterPool(&config.Config{RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 1}})
	for i := 0; i < 5; i++ {
		assert.True(t, disabled.Allow("a"))
	}
}
