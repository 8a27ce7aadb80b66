package handlers

import (
	"errors"
	"net/http"

	"callpop/internal/repo"
	"callpop/internal/services"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CallLogHandler struct {
	callLogRepo *repo.CallLogRepository
	contactRepo *repo.ContactRepository
	exportSvc   *services.ExportService
}

func NewCallLogHandler(callLogRepo *repo.CallLogRepository, contactRepo *repo.ContactRepository, exportSvc *services.ExportService) *CallLogHandler {
	return &CallLogHandler{
		callLogRepo: callLogRepo,
		contactRepo: contactRepo,
		exportSvc:   exportSvc,
	}
}

// List godoc
// @Summary List call history
// @Description Get the tenant's call history, newest first
// @Tags call-logs
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Param status query string false "Filter by status" Enums(incoming, answered, missed, completed)
// @Param caller_number query string false "Filter by caller number"
// @Param contact_id query string false "Filter by contact"
// @Success 200 {object} models.CallLogListResponse
// @Failure 500 {object} map[string]string
// @Router /call-logs [get]
// @Security BearerAuth
func (h *CallLogHandler) List(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)
	limit, offset := parsePagination(c)

	filters := models.CallLogFilters{
		Status:       c.QueryParam("status"),
		CallerNumber: c.QueryParam("caller_number"),
		ContactID:    c.QueryParam("contact_id"),
	}

	result, err := h.callLogRepo.List(tenantID, limit, offset, filters)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch call history"})
	}

	return c.JSON(http.StatusOK, result)
}

// GetByID godoc
// @Summary Get call log by ID
// @Tags call-logs
// @Produce json
// @Param id path string true "Call log ID"
// @Success 200 {object} models.SwaggerCallLog
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /call-logs/{id} [get]
// @Security BearerAuth
func (h *CallLogHandler) GetByID(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid call log ID"})
	}

	log, err := h.callLogRepo.GetByID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "call log not found"})
	}

	return c.JSON(http.StatusOK, log)
}

// Promote godoc
// @Summary Promote unknown caller to contact
// @Description Create a contact from an unknown-caller call log and link the log to it. Later calls from this number then resolve to the new contact.
// @Tags call-logs
// @Accept json
// @Produce json
// @Param id path string true "Call log ID"
// @Param contact body models.PromoteCallerRequest true "Contact data"
// @Success 201 {object} models.SwaggerContact
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /call-logs/{id}/promote [post]
// @Security BearerAuth
func (h *CallLogHandler) Promote(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid call log ID"})
	}

	var req models.PromoteCallerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	log, err := h.callLogRepo.GetByID(tenantID, id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "call log not found"})
	}
	if log.ContactID != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": "call log is already linked to a contact"})
	}

	contact := &models.Contact{
		PhoneNumber: log.CallerNumber,
		Name:        req.Name,
		Notes:       req.Notes,
		IsActive:    true,
	}
	contact.TenantID = tenantID

	if err := h.contactRepo.Create(contact); err != nil {
		if errors.Is(err, repo.ErrDuplicatePhone) {
			// The number was promoted elsewhere in the meantime; link to
			// the existing contact instead of failing the promotion.
			existing, lookupErr := h.contactRepo.GetByPhone(tenantID, log.CallerNumber)
			if lookupErr != nil || existing == nil {
				return c.JSON(http.StatusConflict, map[string]string{"error": "a contact with this phone number already exists"})
			}
			contact = existing
		} else {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create contact"})
		}
	}

	if err := h.callLogRepo.AssignContact(tenantID, log.ID, contact.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to link call log to contact"})
	}

	return c.JSON(http.StatusCreated, contact)
}

// Export godoc
// @Summary Export call history as CSV
// @Description Download the tenant's full call history. When object storage is configured an archived copy is kept and its URL returned in the X-Export-URL header.
// @Tags call-logs
// @Produce text/csv
// @Success 200 {string} string "CSV payload"
// @Failure 500 {object} map[string]string
// @Router /call-logs/export [get]
// @Security BearerAuth
func (h *CallLogHandler) Export(c echo.Context) error {
	tenantID := c.Get("tenant_id").(uuid.UUID)

	data, url, err := h.exportSvc.CallHistoryCSV(tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to export call history"})
	}

	if url != "" {
		c.Response().Header().Set("X-Export-URL", url)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="call-history.csv"`)
	return c.Blob(http.StatusOK, "text/csv", data)
}
