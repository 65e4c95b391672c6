package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"guestbook/internal/common"
	"guestbook/internal/config"
	"guestbook/internal/dbsql"
	"guestbook/internal/log"
)

var (
	ErrUnknownProvider = errors.New("unknown sign-in provider")
	ErrExchangeFailed  = errors.New("failed to exchange authorization code")
)

const (
	googleProfileURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	githubProfileURL = "https://api.github.com/user"
)

// Provider is one OAuth sign-in option. Profile turns the provider's user
// endpoint response into an identity.
type Provider struct {
	Name       string
	OAuth      *oauth2.Config
	ProfileURL string
	Profile    func(body []byte) (common.Identity, error)
}

// DefaultProviders returns the providers with client credentials set.
func DefaultProviders(cfg *config.Config) []Provider {
	var providers []Provider
	if cfg.Auth.GoogleClientID != "" {
		providers = append(providers, Provider{
			Name: "google",
			OAuth: &oauth2.Config{
				ClientID:     cfg.Auth.GoogleClientID,
				ClientSecret: cfg.Auth.GoogleClientSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  cfg.RedirectURL(),
				Scopes:       []string{"openid", "email", "profile"},
			},
			ProfileURL: googleProfileURL,
			Profile:    googleProfile,
		})
	}
	if cfg.Auth.GitHubClientID != "" {
		providers = append(providers, Provider{
			Name: "github",
			OAuth: &oauth2.Config{
				ClientID:     cfg.Auth.GitHubClientID,
				ClientSecret: cfg.Auth.GitHubClientSecret,
				Endpoint:     endpoints.GitHub,
				RedirectURL:  cfg.RedirectURL(),
				Scopes:       []string{"read:user", "user:email"},
			},
			ProfileURL: githubProfileURL,
			Profile:    githubProfile,
		})
	}
	return providers
}

func googleProfile(body []byte) (common.Identity, error) {
	var p struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return common.Identity{}, err
	}
	if p.Sub == "" {
		return common.Identity{}, errors.New("google profile has no subject")
	}
	return common.Identity{ID: "google:" + p.Sub, Email: p.Email, Name: p.Name, AvatarURL: p.Picture}, nil
}

func githubProfile(body []byte) (common.Identity, error) {
	var p struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return common.Identity{}, err
	}
	if p.ID == 0 {
		return common.Identity{}, errors.New("github profile has no id")
	}
	name := p.Name
	if name == "" {
		name = p.Login
	}
	return common.Identity{ID: "github:" + strconv.FormatInt(p.ID, 10), Email: p.Email, Name: name, AvatarURL: p.AvatarURL}, nil
}

// AuthService signs visitors in through an OAuth provider and issues the
// session token.
type AuthService interface {
	Providers() []string
	SignInURL(provider, state string) (string, error)
	Callback(ctx context.Context, provider, code string) (*common.Identity, string, error)
	GetProfile(ctx context.Context, id string) (*dbsql.User, error)
}

type authService struct {
	users     UserRepository
	tokens    *common.TokenIssuer
	providers map[string]Provider
}

func NewAuthService(users UserRepository, tokens *common.TokenIssuer, providers []Provider) AuthService {
	s := &authService{
		users:     users,
		tokens:    tokens,
		providers: make(map[string]Provider, len(providers)),
	}
	for _, p := range providers {
		s.providers[p.Name] = p
	}
	return s
}

func (s *authService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *authService) SignInURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	return p.OAuth.AuthCodeURL(state), nil
}

// Callback exchanges the code, reads the profile, records the user and
// returns the identity with its signed token. A failed profile write does
// not block sign-in.
func (s *authService) Callback(ctx context.Context, provider, code string) (*common.Identity, string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, "", ErrUnknownProvider
	}
	if code == "" {
		return nil, "", ErrExchangeFailed
	}

	token, err := p.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	identity, err := s.fetchProfile(ctx, p, token)
	if err != nil {
		return nil, "", err
	}

	if err := s.users.Upsert(ctx, &dbsql.User{
		ID:    identity.ID,
		Name:  identity.Name,
		Email: identity.Email,
		Image: identity.AvatarURL,
	}); err != nil {
		log.Error.Printf("Error saving profile for %s: %v", identity.ID, err)
	}

	signed, err := s.tokens.GenerateToken(identity)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}
	return &identity, signed, nil
}

func (s *authService) fetchProfile(ctx context.Context, p Provider, token *oauth2.Token) (common.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return common.Identity{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.OAuth.Client(ctx, token).Do(req)
	if err != nil {
		return common.Identity{}, fmt.Errorf("failed to fetch %s profile: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return common.Identity{}, fmt.Errorf("failed to read %s profile: %w", p.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return common.Identity{}, fmt.Errorf("%s profile returned %d", p.Name, resp.StatusCode)
	}

	identity, err := p.Profile(body)
	if err != nil {
		return common.Identity{}, fmt.Errorf("failed to parse %s profile: %w", p.Name, err)
	}
	return identity, nil
}

func (s *authService) GetProfile(ctx context.Context, id string) (*dbsql.User, error) {
	return s.users.GetByID(ctx, id)
}
