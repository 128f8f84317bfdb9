package handler

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stay/internal/domain"
	"github.com/sumire/stay/internal/metrics"
)

const (
	contextKeyMemberID = "member_id"
)

// TokenAuthenticator resolves an access token to a member ID.
type TokenAuthenticator interface {
	Authenticate(token string) (int64, error)
}

// RequestLogger logs each HTTP request with structured fields and records
// request metrics. Handler errors are rendered here so the logged status
// is the one sent.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			elapsed := time.Since(start)
			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			metrics.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request().Method, path).Observe(elapsed.Seconds())

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return nil
		}
	}
}

// JWTAuth validates the Bearer token, or the access token cookie when no
// header is sent, and injects the member ID into echo context.
func JWTAuth(auth TokenAuthenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}

			memberID, err := auth.Authenticate(token)
			if err != nil {
				return err
			}

			c.Set(contextKeyMemberID, memberID)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		if cookie, err := c.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
			return cookie.Value, nil
		}
		return "", domain.ErrUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", domain.ErrUnauthorized
	}
	return parts[1], nil
}

// GetMemberID extracts the authenticated member ID from echo context.
func GetMemberID(c echo.Context) (int64, bool) {
	id, ok := c.Get(contextKeyMemberID).(int64)
	return id, ok
}
