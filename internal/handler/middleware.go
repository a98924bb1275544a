package handler

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/hiring/internal/domain"
)

const (
	contextKeyActor = "actor"
)

// TokenVerifier turns a bearer token into the actor it was issued to.
type TokenVerifier interface {
	Verify(token string) (domain.Actor, error)
}

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the logged status is final.
				c.Error(err)
			}

			attrs := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			}
			if actor, ok := GetActor(c); ok {
				attrs = append(attrs, "actor", actor.ID)
			}
			slog.Info("http request", attrs...)

			return nil
		}
	}
}

// JWTAuth validates the Bearer token and injects the actor into echo context.
func JWTAuth(tokens TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return domain.ErrUnauthorized
			}

			actor, err := tokens.Verify(parts[1])
			if err != nil {
				return domain.ErrUnauthorized
			}

			c.Set(contextKeyActor, actor)
			return next(c)
		}
	}
}

// GetActor extracts the authenticated actor from echo context.
func GetActor(c echo.Context) (domain.Actor, bool) {
	actor, ok := c.Get(contextKeyActor).(domain.Actor)
	return actor, ok
}

func mustActor(c echo.Context) (domain.Actor, error) {
	actor, ok := GetActor(c)
	if !ok {
		return domain.Actor{}, domain.ErrUnauthorized
	}
	return actor, nil
}
