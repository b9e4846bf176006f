package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Console roles. An administrator passes every role check.
const (
	RoleAdmin  = "console.admin"
	RoleEditor = "console.editor"
	RoleViewer = "console.viewer"
)

// RequireRole rejects the request with 403 unless the user holds at least
// one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasRole reports whether granted satisfies any of required.
func HasRole(granted []string, required ...string) bool {
	for _, has := range granted {
		if has == RoleAdmin {
			return true
		}
		for _, want := range required {
			if has == want {
				return true
			}
		}
	}
	return false
}

// CanRead and CanWrite group the roles allowed on the read-only and the
// mutating console endpoints.
var (
	CanRead  = []string{RoleViewer, RoleEditor}
	CanWrite = []string{RoleEditor}
)
