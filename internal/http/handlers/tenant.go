package handlers

import (
	"net/http"
	"time"

	"callpop/internal/auth"
	"callpop/internal/repo"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TenantHandler manages companies. All routes are system-admin only.
type TenantHandler struct {
	tenantRepo  *repo.TenantRepository
	userRepo    *repo.UserRepository
	authService *auth.Service
}

func NewTenantHandler(tenantRepo *repo.TenantRepository, userRepo *repo.UserRepository, authService *auth.Service) *TenantHandler {
	return &TenantHandler{
		tenantRepo:  tenantRepo,
		userRepo:    userRepo,
		authService: authService,
	}
}

// CreateTenantRequest represents a request to create a tenant with its admin
type CreateTenantRequest struct {
	Name          string `json:"name" validate:"required"`
	Domain        string `json:"domain"`
	MaxUsers      int    `json:"max_users"`
	AdminEmail    string `json:"admin_email" validate:"required,email"`
	AdminPassword string `json:"admin_password" validate:"required,min=6"`
	AdminName     string `json:"admin_name" validate:"required"`
}

// UpdateTenantRequest represents a request to update a tenant
type UpdateTenantRequest struct {
	Name              *string    `json:"name"`
	Domain            *string    `json:"domain"`
	Status            *string    `json:"status" validate:"omitempty,oneof=active suspended"`
	MaxUsers          *int       `json:"max_users"`
	SubscriptionStart *time.Time `json:"subscription_start"`
	SubscriptionEnd   *time.Time `json:"subscription_end"`
}

// List godoc
// @Summary List tenants
// @Description Get all companies (system admin only)
// @Tags tenants
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} map[string]string
// @Router /admin/tenants [get]
// @Security BearerAuth
func (h *TenantHandler) List(c echo.Context) error {
	limit, offset := parsePagination(c)

	result, err := h.tenantRepo.List(limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch tenants"})
	}

	return c.JSON(http.StatusOK, result)
}

// GetByID godoc
// @Summary Get tenant by ID
// @Tags tenants
// @Produce json
// @Param id path string true "Tenant ID"
// @Success 200 {object} models.Tenant
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/tenants/{id} [get]
// @Security BearerAuth
func (h *TenantHandler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
	}

	tenant, err := h.tenantRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "tenant not found"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// Create godoc
// @Summary Create tenant
// @Description Create a new company together with its first admin user
// @Tags tenants
// @Accept json
// @Produce json
// @Param tenant body CreateTenantRequest true "Tenant data"
// @Success 201 {object} models.Tenant
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /admin/tenants [post]
// @Security BearerAuth
func (h *TenantHandler) Create(c echo.Context) error {
	var req CreateTenantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if existing, _ := h.userRepo.GetByEmail(req.AdminEmail); existing != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "a user with this email already exists"})
	}

	maxUsers := req.MaxUsers
	if maxUsers <= 0 {
		maxUsers = 5
	}

	tenant := &models.Tenant{
		Name:     req.Name,
		Domain:   req.Domain,
		Status:   "active",
		MaxUsers: maxUsers,
	}
	if err := h.tenantRepo.Create(tenant); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create tenant"})
	}

	hash, err := h.authService.HashPassword(req.AdminPassword)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to hash password"})
	}

	admin := &models.User{
		TenantID: &tenant.ID,
		Email:    req.AdminEmail,
		Password: hash,
		Name:     req.AdminName,
		Role:     "tenant_admin",
		IsActive: true,
	}
	if err := h.userRepo.Create(admin); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "tenant created but admin user failed"})
	}

	return c.JSON(http.StatusCreated, tenant)
}

// Update godoc
// @Summary Update tenant
// @Description Update company settings, status or subscription window
// @Tags tenants
// @Accept json
// @Produce json
// @Param id path string true "Tenant ID"
// @Param tenant body UpdateTenantRequest true "Fields to update"
// @Success 200 {object} models.Tenant
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /admin/tenants/{id} [put]
// @Security BearerAuth
func (h *TenantHandler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant ID"})
	}

	var req UpdateTenantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	tenant, err := h.tenantRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "tenant not found"})
	}

	if req.Name != nil {
		tenant.Name = *req.Name
	}
	if req.Domain != nil {
		tenant.Domain = *req.Domain
	}
	if req.Status != nil {
		tenant.Status = *req.Status
	}
	if req.MaxUsers != nil {
		tenant.MaxUsers = *req.MaxUsers
	}
	if req.SubscriptionStart != nil {
		tenant.SubscriptionStart = req.SubscriptionStart
	}
	if req.SubscriptionEnd != nil {
		tenant.SubscriptionEnd = req.SubscriptionEnd
	}

	if err := h.tenantRepo.Update(tenant); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update tenant"})
	}

	return c.JSON(http.StatusOK, tenant)
}
