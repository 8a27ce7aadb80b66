package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestContext(t *testing.T, headers map[string]string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireTenantRejectsSystemAdminWithoutTenant(t *testing.T) {
	c := newTestContext(t, nil)
	c.Set("user_role", "system_admin")

	handler := RequireTenant()(func(c echo.Context) error {
		t.Fatal("handler must not run without a tenant")
		return nil
	})

	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for system admin without X-Tenant-ID, got %v", err)
	}
}

func TestRequireTenantAcceptsResolvedTenant(t *testing.T) {
	tenantID := uuid.New()

	for _, role := range []string{"agent", "system_admin"} {
		c := newTestContext(t, nil)
		c.Set("user_role", role)
		c.Set("tenant_id", tenantID)

		called := false
		handler := RequireTenant()(func(c echo.Context) error {
			called = true
			return nil
		})
		if err := handler(c); err != nil {
			t.Fatalf("role %s: unexpected error %v", role, err)
		}
		if !called {
			t.Fatalf("role %s: handler was not called", role)
		}
	}
}

func TestRequireTenantRejectsMissingTenant(t *testing.T) {
	c := newTestContext(t, nil)
	c.Set("user_role", "agent")

	handler := RequireTenant()(func(c echo.Context) error { return nil })

	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant, got %v", err)
	}
}

func TestTenantResolverReadsHeader(t *testing.T) {
	tenantID := uuid.New()
	c := newTestContext(t, map[string]string{"X-Tenant-ID": tenantID.String()})

	handler := TenantResolver()(func(c echo.Context) error { return nil })
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := c.Get("tenant_id").(uuid.UUID)
	if !ok || got != tenantID {
		t.Fatalf("tenant_id = %v, want %s", c.Get("tenant_id"), tenantID)
	}
}

func TestTenantResolverRejectsMalformedHeader(t *testing.T) {
	c := newTestContext(t, map[string]string{"X-Tenant-ID": "not-a-uuid"})

	handler := TenantResolver()(func(c echo.Context) error { return nil })

	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed tenant header, got %v", err)
	}
}
