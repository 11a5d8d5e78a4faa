package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. /ws is public because browsers cannot
// send an Authorization header on upgrade; topics are unguessable session
// ids. /metrics is scraped without credentials.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
	"/ws":        true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether path is public.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
