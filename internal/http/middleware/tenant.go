package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TenantResolver middleware resolves the tenant from the JWT claims set by
// JWTAuth, falling back to the X-Tenant-ID header for system admins acting
// on behalf of a company.
func TenantResolver() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var tenantID uuid.UUID

			if existing := c.Get("tenant_id"); existing != nil {
				if tid, ok := existing.(uuid.UUID); ok {
					tenantID = tid
				}
			}

			if tenantID == uuid.Nil {
				header := c.Request().Header.Get("X-Tenant-ID")
				if header != "" {
					parsed, err := uuid.Parse(header)
					if err != nil {
						return echo.NewHTTPError(400, "Invalid tenant ID format")
					}
					c.Set("tenant_id", parsed)
				}
			}

			return next(c)
		}
	}
}

// RequireTenant middleware ensures a tenant is present. Handlers downstream
// read tenant_id unconditionally, so every request must carry one: system
// admins have no tenant claim and must name the tenant they act on via the
// X-Tenant-ID header.
func RequireTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID, ok := c.Get("tenant_id").(uuid.UUID)
			if !ok || tenantID == uuid.Nil {
				if role, _ := c.Get("user_role").(string); role == "system_admin" {
					return echo.NewHTTPError(400, "X-Tenant-ID header is required")
				}
				return echo.NewHTTPError(400, "Tenant ID is required")
			}

			return next(c)
		}
	}
}
