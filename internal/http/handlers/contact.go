package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"callpop/internal/phone"
	"callpop/internal/repo"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type ContactHandler struct {
	contactRepo *repo.ContactRepository
	addressRepo *repo.AddressRepository
}

func NewContactHandler(contactRepo *repo.ContactRepository, addressRepo *repo.AddressRepository) *ContactHandler {
	return &ContactHandler{
		contactRepo: contactRepo,
		addressRepo: addressRepo,
	}
}

// List godoc
// @Summary List contacts
// @Description Get contacts for the tenant, optionally filtered by name or phone
// @Tags contacts
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Param search query string false "Search by name or phone"
// @Success 200 {object} models.ContactListResponse
// @Failure 500 {object} map[string]string
// @Router /contacts [get]
// @Security BearerAuth
func (h *ContactHandler) List(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)
	limit, offset := parsePagination(c)

	result, err := h.contactRepo.ListWithSearch(tenantID, limit, offset, c.QueryParam("search"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch contacts"})
	}

	return c.JSON(http.StatusOK, result)
}

// GetByID godoc
// @Summary Get contact by ID
// @Description Get a contact with its addresses
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {object} models.SwaggerContact
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /contacts/{id} [get]
// @Security BearerAuth
func (h *ContactHandler) GetByID(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid contact ID"})
	}

	contact, err := h.contactRepo.GetByID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "contact not found"})
	}

	return c.JSON(http.StatusOK, contact)
}

// GetByPhone godoc
// @Summary Find contact by phone
// @Description Resolve a phone number to a contact the way the call correlation does
// @Tags contacts
// @Produce json
// @Param phone query string true "Phone number in any format"
// @Success 200 {object} models.SwaggerContact
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /contacts/by-phone [get]
// @Security BearerAuth
func (h *ContactHandler) GetByPhone(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	raw := c.QueryParam("phone")
	if raw == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "phone query parameter is required"})
	}

	contact, err := h.contactRepo.GetByPhone(tenantID, phone.Normalize(raw))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to look up contact"})
	}
	if contact == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no contact with this phone number"})
	}

	return c.JSON(http.StatusOK, contact)
}

// Create godoc
// @Summary Create contact
// @Description Create a new contact; the phone number is normalized to +digits form
// @Tags contacts
// @Accept json
// @Produce json
// @Param contact body models.CreateContactRequest true "Contact data"
// @Success 201 {object} models.SwaggerContact
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /contacts [post]
// @Security BearerAuth
func (h *ContactHandler) Create(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	var req models.CreateContactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	contact := &models.Contact{
		PhoneNumber: phone.Normalize(req.PhoneNumber),
		Name:        req.Name,
		Notes:       req.Notes,
		IsActive:    true,
	}
	contact.TenantID = tenantID

	if err := h.contactRepo.Create(contact); err != nil {
		if errors.Is(err, repo.ErrDuplicatePhone) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "a contact with this phone number already exists"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create contact"})
	}

	return c.JSON(http.StatusCreated, contact)
}

// Update godoc
// @Summary Update contact
// @Description Update name, notes or active flag of a contact
// @Tags contacts
// @Accept json
// @Produce json
// @Param id path string true "Contact ID"
// @Param contact body models.UpdateContactRequest true "Fields to update"
// @Success 200 {object} models.SwaggerContact
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /contacts/{id} [put]
// @Security BearerAuth
func (h *ContactHandler) Update(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid contact ID"})
	}

	var req models.UpdateContactRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	contact, err := h.contactRepo.GetByID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "contact not found"})
	}

	if req.Name != nil {
		contact.Name = *req.Name
	}
	if req.Notes != nil {
		contact.Notes = *req.Notes
	}
	if req.IsActive != nil {
		contact.IsActive = *req.IsActive
	}

	if err := h.contactRepo.Update(contact); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update contact"})
	}

	return c.JSON(http.StatusOK, contact)
}

// Delete godoc
// @Summary Deactivate contact
// @Description Deactivate a contact; its call history is preserved
// @Tags contacts
// @Param id path string true "Contact ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /contacts/{id} [delete]
// @Security BearerAuth
func (h *ContactHandler) Delete(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid contact ID"})
	}

	if err := h.contactRepo.Deactivate(tenantID, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to deactivate contact"})
	}

	return c.NoContent(http.StatusNoContent)
}

// ListAddresses godoc
// @Summary List contact addresses
// @Description Get all addresses for a contact, default address first
// @Tags contacts
// @Produce json
// @Param id path string true "Contact ID"
// @Success 200 {array} models.Address
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /contacts/{id}/addresses [get]
// @Security BearerAuth
func (h *ContactHandler) ListAddresses(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid contact ID"})
	}

	addresses, err := h.addressRepo.GetByContactID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch addresses"})
	}

	return c.JSON(http.StatusOK, addresses)
}

func parsePagination(c echo.Context) (limit, offset int) {
	limit = 20
	offset = 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
