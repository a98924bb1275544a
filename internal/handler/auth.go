package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/hiring/internal/domain"
)

// TokenIssuer signs access tokens for an actor.
type TokenIssuer interface {
	Issue(actor domain.Actor) (string, error)
}

// Tokens both verifies incoming bearer tokens and issues fresh ones.
type Tokens interface {
	TokenVerifier
	TokenIssuer
}

// AuthHandler exposes the identity carried by the bearer token. Sign-in
// happens upstream; this handler only reflects and renews what was issued.
type AuthHandler struct {
	tokens TokenIssuer
	ttl    time.Duration
}

// NewAuthHandler creates a new AuthHandler. ttl is reported back to clients
// alongside renewed tokens.
func NewAuthHandler(tokens TokenIssuer, ttl time.Duration) *AuthHandler {
	return &AuthHandler{tokens: tokens, ttl: ttl}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// Me handles GET /me.
func (h *AuthHandler) Me(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, actor)
}

// Refresh handles POST /auth/refresh, reissuing a token for the current actor.
func (h *AuthHandler) Refresh(c echo.Context) error {
	actor, err := mustActor(c)
	if err != nil {
		return err
	}
	if actor.ID == domain.SystemActorID {
		return fmt.Errorf("%w: the system actor cannot hold tokens", domain.ErrForbidden)
	}
	token, err := h.tokens.Issue(actor)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.ttl.Seconds()),
	})
}
