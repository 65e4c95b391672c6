package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/log"
)

// oauthSessionName holds the pending state while the visitor is away at the provider.
const oauthSessionName = "guestbook-oauth"

// Handler serves the sign-in routes. It redirects back to the public site
// once the provider calls back.
type Handler struct {
	auth      AuthService
	store     sessions.Store
	returnURL string
}

func NewHandler(auth AuthService, store sessions.Store, cfg *config.Config) *Handler {
	return &Handler{auth: auth, store: store, returnURL: strings.TrimRight(cfg.Server.PublicURL, "/")}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/auth/providers", h.Providers).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/login", h.Login).Methods(http.MethodGet)
	r.HandleFunc("/auth/callback", h.Callback).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
}

func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"providers": h.auth.Providers()})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	state := uuid.NewString()

	target, err := h.auth.SignInURL(provider, state)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	session, _ := h.store.Get(r, oauthSessionName)
	session.Values["state"] = state
	session.Values["provider"] = provider
	session.Options.MaxAge = 600
	if err := session.Save(r, w); err != nil {
		log.Error.Printf("Error saving oauth state: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	session, _ := h.store.Get(r, oauthSessionName)
	want, _ := session.Values["state"].(string)
	provider, _ := session.Values["provider"].(string)

	// the state is single use
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Warn.Printf("Error clearing oauth state: %v", err)
	}

	q := r.URL.Query()
	if want == "" || q.Get("state") != want {
		h.returnWithError(w, r, "invalid_state")
		return
	}
	if reason := q.Get("error"); reason != "" {
		h.returnWithError(w, r, reason)
		return
	}

	identity, token, err := h.auth.Callback(r.Context(), provider, q.Get("code"))
	if err != nil {
		log.Error.Printf("Sign-in with %s failed: %v", provider, err)
		h.returnWithError(w, r, "sign_in_failed")
		return
	}
	if err := common.SaveToken(h.store, w, r, token); err != nil {
		log.Error.Printf("Error saving session token: %v", err)
		h.returnWithError(w, r, "sign_in_failed")
		return
	}

	log.Info.Printf("Signed in %s via %s", identity.ID, provider)
	http.Redirect(w, r, h.returnURL, http.StatusFound)
}

func (h *Handler) returnWithError(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.returnURL + "/?" + url.Values{"auth_error": {reason}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := common.ClearToken(h.store, w, r); err != nil {
		log.Warn.Printf("Error clearing session token: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in identity, with the stored profile when there is one.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity := common.IdentityFromContext(r.Context())
	if identity == nil {
		respondError(w, http.StatusUnauthorized, "not signed in")
		return
	}

	resp := map[string]interface{}{"identity": identity}
	profile, err := h.auth.GetProfile(r.Context(), identity.ID)
	switch {
	case err == nil:
		resp["profile"] = profile
	case !errors.Is(err, common.ErrNotFound):
		log.Warn.Printf("Error loading profile %s: %v", identity.ID, err)
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
