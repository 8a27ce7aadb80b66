package handlers

import (
	"net/http"

	"callpop/internal/auth"
	"callpop/internal/repo"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// UserHandler manages the tenant's agent accounts.
type UserHandler struct {
	userRepo    *repo.UserRepository
	tenantRepo  *repo.TenantRepository
	authService *auth.Service
}

func NewUserHandler(userRepo *repo.UserRepository, tenantRepo *repo.TenantRepository, authService *auth.Service) *UserHandler {
	return &UserHandler{
		userRepo:    userRepo,
		tenantRepo:  tenantRepo,
		authService: authService,
	}
}

// CreateUserRequest represents a request to create a user
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone"`
	Role     string `json:"role" validate:"required,oneof=tenant_admin agent"`
}

// UpdateUserRequest represents a request to update a user
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role" validate:"omitempty,oneof=tenant_admin agent"`
	IsActive *bool   `json:"is_active"`
}

// List godoc
// @Summary List users
// @Description Get all users of the tenant
// @Tags users
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {array} models.User
// @Failure 500 {object} map[string]string
// @Router /users [get]
// @Security BearerAuth
func (h *UserHandler) List(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)
	limit, offset := parsePagination(c)

	users, err := h.userRepo.List(&tenantID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch users"})
	}

	return c.JSON(http.StatusOK, users)
}

// Create godoc
// @Summary Create user
// @Description Create a new user within the tenant, subject to the tenant's user limit
// @Tags users
// @Accept json
// @Produce json
// @Param user body CreateUserRequest true "User data"
// @Success 201 {object} models.User
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /users [post]
// @Security BearerAuth
func (h *UserHandler) Create(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	tenant, err := h.tenantRepo.GetByID(tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load tenant"})
	}
	count, err := h.userRepo.CountByTenant(tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to count users"})
	}
	if tenant.MaxUsers > 0 && count >= int64(tenant.MaxUsers) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "tenant user limit reached"})
	}

	if existing, _ := h.userRepo.GetByEmail(req.Email); existing != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "a user with this email already exists"})
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to hash password"})
	}

	user := &models.User{
		TenantID: &tenantID,
		Email:    req.Email,
		Password: hash,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     req.Role,
		IsActive: true,
	}

	if err := h.userRepo.Create(user); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create user"})
	}

	return c.JSON(http.StatusCreated, user)
}

// Update godoc
// @Summary Update user
// @Description Update a user's name, phone, role or active flag
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param user body UpdateUserRequest true "Fields to update"
// @Success 200 {object} models.User
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /users/{id} [put]
// @Security BearerAuth
func (h *UserHandler) Update(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
	}

	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	user, err := h.userRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}
	if user.TenantID == nil || *user.TenantID != tenantID {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := h.userRepo.Update(user); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update user"})
	}

	return c.JSON(http.StatusOK, user)
}

// Delete godoc
// @Summary Delete user
// @Tags users
// @Param id path string true "User ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /users/{id} [delete]
// @Security BearerAuth
func (h *UserHandler) Delete(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
	}

	user, err := h.userRepo.GetByID(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}
	if user.TenantID == nil || *user.TenantID != tenantID {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "user not found"})
	}

	if err := h.userRepo.Delete(id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete user"})
	}

	return c.NoContent(http.StatusNoContent)
}
