package common

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"guestbook/internal/config"
)

// claim represents the identity stored in the session token
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(cfg *config.Config) *TokenIssuer {
	ttl := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret: []byte(cfg.Auth.JWTSecret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *TokenIssuer) GenerateToken(identity Identity) (string, error) {
	now := t.now()
	claims := &Claims{
		UserID:    identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		AvatarURL: identity.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "guestbook",
			Subject:   identity.ID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(t.secret)
}

func (t *TokenIssuer) ValidToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrUnauthorized
	}
	return &Identity{
		ID:        claims.UserID,
		Email:     claims.Email,
		Name:      claims.Name,
		AvatarURL: claims.AvatarURL,
	}, nil
}
