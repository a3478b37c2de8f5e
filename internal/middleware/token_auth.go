package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// tokenOK reports whether r carries the expected token as a bearer token, an
// X-Auth-Token header or a token query parameter. An empty expected token disables auth.
func tokenOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	var candidates []string
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		candidates = append(candidates, strings.TrimSpace(auth[7:]))
	}
	if h := r.Header.Get("X-Auth-Token"); h != "" {
		candidates = append(candidates, h)
	}
	if q := r.URL.Query().Get("token"); q != "" {
		candidates = append(candidates, q)
	}
	for _, c := range candidates {
		if subtle.ConstantTimeCompare([]byte(c), []byte(expected)) == 1 {
			return true
		}
	}
	return false
}

// TokenAuth rejects requests without the API token. Paths in open are served
// without a token.
func TokenAuth(getToken func() string, open ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range open {
				if path == p {
					return next(c)
				}
			}
			if !tokenOK(c.Request(), getToken()) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or missing API token"})
			}
			return next(c)
		}
	}
}
