package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are route paths reachable without a bearer token.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/api/auth/login":    true,
	"/api/auth/register": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
