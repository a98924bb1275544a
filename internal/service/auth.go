package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sumire/hiring/internal/domain"
)

// TokenConfig holds bearer token settings.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// TokenService issues and verifies the bearer tokens that identify the actor
// behind each request. Sign-in itself happens upstream.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &TokenService{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: time.Now}
}

type actorClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an access token for actor.
func (s *TokenService) Issue(actor domain.Actor) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, actorClaims{
		Roles: actor.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify validates an access token and returns the actor it identifies.
func (s *TokenService) Verify(tokenString string) (domain.Actor, error) {
	var claims actorClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return domain.Actor{ID: claims.Subject, Roles: claims.Roles}, nil
}
