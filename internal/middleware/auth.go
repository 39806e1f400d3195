package middleware

import (
	"net/http"
	"strings"

	"github.com/Eursukkul/booking-microservice/rental-service/internal/identity"
	"github.com/labstack/echo/v4"
)

// Authenticate resolves the bearer token on every request and stores the
// principal in the request context. Requests without a token continue as
// anonymous; a token that fails verification is rejected with 401.
func Authenticate(verifier *identity.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
			if header == "" {
				return next(c)
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header must be a bearer token")
			}

			principal, err := verifier.Verify(strings.TrimSpace(token))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			req := c.Request()
			c.SetRequest(req.WithContext(identity.WithPrincipal(req.Context(), principal)))
			return next(c)
		}
	}
}

// RequireAuth rejects anonymous requests.
func RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !identity.FromContext(c.Request().Context()).Authenticated {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		return next(c)
	}
}
