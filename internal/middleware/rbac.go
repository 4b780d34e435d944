package middleware

import (
	"eterna-home/internal/rbac"

	"github.com/labstack/echo/v4"
)

// RequirePermission gates a route group on a permission. Role-based
// checks stay inside the handlers: they resolve the tenant from the
// request path rather than from the caller's active tenant.
func RequirePermission(authz *rbac.Authorizer, perm rbac.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			tenantID, _ := CurrentTenant(c)
			if err := authz.RequirePermission(c.Request().Context(), user, tenantID, perm); err != nil {
				return c.JSON(rbac.HTTPStatus(err), echo.Map{"error": httpSafeMessage(err)})
			}
			return next(c)
		}
	}
}

// httpSafeMessage hides configuration faults behind a generic message
func httpSafeMessage(err error) string {
	if rbac.HTTPStatus(err) >= 500 {
		return "internal error"
	}
	return err.Error()
}
