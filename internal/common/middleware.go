package common

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/sessions"

	"guestbook/internal/config"
)

const (
	// AuthSessionName is the cookie holding the signed-in visitor's token.
	AuthSessionName = "guestbook-auth"
	tokenKey        = "token"
)

type ctxKey int

const identityKey ctxKey = iota

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns nil for anonymous visitors.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

func NewSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.Auth.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SaveToken stores the session token in the auth cookie.
func SaveToken(store sessions.Store, w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := store.Get(r, AuthSessionName)
	session.Values[tokenKey] = token
	return session.Save(r, w)
}

func ClearToken(store sessions.Store, w http.ResponseWriter, r *http.Request) error {
	session, _ := store.Get(r, AuthSessionName)
	delete(session.Values, tokenKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// AuthMiddleware resolves the visitor identity from a Bearer header or the
// auth cookie and puts it in the request context. Requests without
// credentials go through as anonymous. A bad Bearer token is rejected, a
// bad cookie is ignored.
func AuthMiddleware(tokens *TokenIssuer, store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// vals = Bearer <token>
			if header := r.Header.Get("Authorization"); header != "" {
				parts := strings.Fields(header)
				if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
					http.Error(w, "invalid auth header", http.StatusUnauthorized)
					return
				}
				identity, err := tokens.ValidToken(parts[1])
				if err != nil {
					http.Error(w, "invalid or expired token!!", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
				return
			}

			if session, err := store.Get(r, AuthSessionName); err == nil {
				if token, ok := session.Values[tokenKey].(string); ok && token != "" {
					if identity, err := tokens.ValidToken(token); err == nil {
						r = r.WithContext(WithIdentity(r.Context(), identity))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey picks the rate limit key: the user id when signed in, the
// client address otherwise. X-Forwarded-For counts only when the direct
// peer is a trusted proxy, and then the right-most untrusted hop wins.
func ClientKey(r *http.Request, trustedProxies []string) string {
	if identity := IdentityFromContext(r.Context()); identity != nil {
		return "user:" + identity.ID
	}

	peer := remoteHost(r.RemoteAddr)
	if !slices.Contains(trustedProxies, peer) {
		return "ip:" + peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !slices.Contains(trustedProxies, hop) {
			return "ip:" + hop
		}
	}
	return "ip:" + peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
