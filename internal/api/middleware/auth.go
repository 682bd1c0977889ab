// Package middleware provides the HTTP middleware for the API server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tandahub/tanda/internal/auth"
)

// userIDKey is the echo context key for the authenticated user ID.
const userIDKey = "user_id"

// GetUserID extracts the authenticated user ID from the request context.
// Returns empty string if not found.
func GetUserID(c echo.Context) string {
	userID, _ := c.Get(userIDKey).(string)
	return userID
}

// RequireAuth returns a middleware that validates bearer tokens and stores
// the caller's user ID on the request context. Requests without a valid
// token are rejected with 401.
func RequireAuth(jwtManager *auth.JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrMissingToken.Error())
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.Set(userIDKey, claims.UserID)
			return next(c)
		}
	}
}
