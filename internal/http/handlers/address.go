package handlers

import (
	"errors"
	"net/http"

	"callpop/internal/repo"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type AddressHandler struct {
	addressRepo *repo.AddressRepository
	contactRepo *repo.ContactRepository
}

func NewAddressHandler(addressRepo *repo.AddressRepository, contactRepo *repo.ContactRepository) *AddressHandler {
	return &AddressHandler{
		addressRepo: addressRepo,
		contactRepo: contactRepo,
	}
}

// Create godoc
// @Summary Create address
// @Description Create a delivery address for a contact. Labels are unique per contact.
// @Tags addresses
// @Accept json
// @Produce json
// @Param address body models.CreateAddressRequest true "Address data"
// @Success 201 {object} models.Address
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /addresses [post]
// @Security BearerAuth
func (h *AddressHandler) Create(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	var req models.CreateAddressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if _, err := h.contactRepo.GetByID(tenantID, req.ContactID); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "contact not found"})
	}

	address := &models.Address{
		ContactID:     req.ContactID,
		Label:         req.Label,
		AddressText:   req.AddressText,
		PhoneOverride: req.PhoneOverride,
		Comment:       req.Comment,
		IsDefault:     req.IsDefault,
	}
	address.TenantID = tenantID

	if err := h.addressRepo.Create(address); err != nil {
		if errors.Is(err, repo.ErrDuplicateLabel) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "this contact already has an address with that label"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create address"})
	}

	if address.IsDefault {
		if err := h.addressRepo.SetDefault(tenantID, address.ContactID, address.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to set default address"})
		}
	}

	return c.JSON(http.StatusCreated, address)
}

// Update godoc
// @Summary Update address
// @Description Update an address; changing the label keeps per-contact uniqueness
// @Tags addresses
// @Accept json
// @Produce json
// @Param id path string true "Address ID"
// @Param address body models.UpdateAddressRequest true "Fields to update"
// @Success 200 {object} models.Address
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /addresses/{id} [put]
// @Security BearerAuth
func (h *AddressHandler) Update(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid address ID"})
	}

	var req models.UpdateAddressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	address, err := h.addressRepo.GetByID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "address not found"})
	}

	if req.Label != nil {
		address.Label = *req.Label
	}
	if req.AddressText != nil {
		address.AddressText = *req.AddressText
	}
	if req.PhoneOverride != nil {
		address.PhoneOverride = *req.PhoneOverride
	}
	if req.Comment != nil {
		address.Comment = *req.Comment
	}
	if req.IsDefault != nil {
		address.IsDefault = *req.IsDefault
	}

	if err := h.addressRepo.Update(address); err != nil {
		if errors.Is(err, repo.ErrDuplicateLabel) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "this contact already has an address with that label"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update address"})
	}

	if req.IsDefault != nil && *req.IsDefault {
		if err := h.addressRepo.SetDefault(tenantID, address.ContactID, address.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to set default address"})
		}
	}

	return c.JSON(http.StatusOK, address)
}

// Delete godoc
// @Summary Delete address
// @Tags addresses
// @Param id path string true "Address ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /addresses/{id} [delete]
// @Security BearerAuth
func (h *AddressHandler) Delete(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid address ID"})
	}

	if err := h.addressRepo.Delete(tenantID, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete address"})
	}

	return c.NoContent(http.StatusNoContent)
}

// SetDefault godoc
// @Summary Set default address
// @Description Mark an address as the contact's default delivery address
// @Tags addresses
// @Param id path string true "Address ID"
// @Success 200 {object} models.Address
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /addresses/{id}/default [post]
// @Security BearerAuth
func (h *AddressHandler) SetDefault(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid address ID"})
	}

	address, err := h.addressRepo.GetByID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "address not found"})
	}

	if err := h.addressRepo.SetDefault(tenantID, address.ContactID, address.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to set default address"})
	}

	address.IsDefault = true
	return c.JSON(http.StatusOK, address)
}
