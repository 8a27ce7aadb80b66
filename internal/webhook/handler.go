// Package webhook exposes the VoIP provider ingress: the incoming-call
// endpoint in its two route shapes, the health probe, and the audit trail
// written for every delivery attempt.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"callpop/internal/correlate"
	"callpop/internal/phone"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Correlator matches the incoming call against the contact directory and
// records it in the call ledger.
type Correlator interface {
	Correlate(ctx context.Context, tenantID uuid.UUID, p correlate.Payload) (*correlate.Result, error)
}

// Recorder persists one audit entry per webhook invocation. Implementations
// are best-effort; the handler never fails a delivery over an audit write.
type Recorder interface {
	Record(ctx context.Context, entry models.WebhookAudit)
}

// IncomingCallRequest is the provider's webhook body.
type IncomingCallRequest struct {
	CallerID  string `json:"caller_id"`
	Timestamp string `json:"timestamp,omitempty"`
	CallType  string `json:"call_type,omitempty"`
	WebhookID string `json:"webhook_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// CallData is the payload of a successful webhook response. The same shape
// is embedded in the events fanned out to connected agents.
type CallData struct {
	CallLogID    uuid.UUID `json:"callLogId"`
	CallerFound  bool      `json:"callerFound"`
	CallerNumber string    `json:"callerNumber"`
	Timestamp    time.Time `json:"timestamp"`
	CompanyID    uuid.UUID `json:"companyId"`
}

type successResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    CallData `json:"data"`
}

type errorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes incoming-call webhooks from the VoIP provider.
type Handler struct {
	engine  Correlator
	audit   Recorder
	logger  zerolog.Logger
	service string
	version string
}

// NewHandler creates a webhook handler. audit may be nil.
func NewHandler(engine Correlator, audit Recorder, logger zerolog.Logger, service, version string) *Handler {
	return &Handler{
		engine:  engine,
		audit:   audit,
		logger:  logger.With().Str("component", "webhook").Logger(),
		service: service,
		version: version,
	}
}

// IncomingCall handles POST /webhook/incoming-call/:company_id and the
// query form POST /webhook/incoming-call?company={id}.
func (h *Handler) IncomingCall(c echo.Context) error {
	writeCORS(c.Response().Header())

	company := c.Param("company_id")
	if company == "" {
		company = c.QueryParam("company")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, h.errorBody("failed to read request body"))
	}

	status, resp := h.process(c.Request().Context(), company, body)
	return c.JSON(status, resp)
}

// Preflight answers CORS preflight requests for the webhook routes.
func (h *Handler) Preflight(c echo.Context) error {
	writeCORS(c.Response().Header())
	return c.NoContent(http.StatusOK)
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   h.service,
		"version":   h.version,
	})
}

// ServeHTTP is the standalone form of the endpoint, for deployments that
// mount the webhook without the rest of the API (a single serverless
// function in front of the same engine). It serves the same two route
// shapes plus /health.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCORS(w.Header())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.URL.Path == "/health" {
		if r.Method != http.MethodGet {
			h.writeJSON(w, http.StatusMethodNotAllowed, h.errorBody("method not allowed"))
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   h.service,
			"version":   h.version,
		})
		return
	}

	if r.Method != http.MethodPost {
		h.writeJSON(w, http.StatusMethodNotAllowed, h.errorBody("method not allowed"))
		return
	}

	company := strings.TrimPrefix(r.URL.Path, "/webhook/incoming-call")
	company = strings.Trim(company, "/")
	if company == "" {
		company = r.URL.Query().Get("company")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, h.errorBody("failed to read request body"))
		return
	}

	status, resp := h.process(r.Context(), company, body)
	h.writeJSON(w, status, resp)
}

// process runs one webhook delivery end to end and records the audit entry.
func (h *Handler) process(ctx context.Context, company string, body []byte) (int, interface{}) {
	tenantID, err := uuid.Parse(company)
	if err != nil {
		h.logger.Warn().Str("company", company).Msg("webhook with missing or invalid company id")
		h.recordAudit(ctx, nil, "", false, "invalid company id", nil)
		return http.StatusBadRequest, h.errorBody("company id is required and must be a valid UUID")
	}

	var req IncomingCallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn().Err(err).Str("company_id", tenantID.String()).Msg("webhook with malformed body")
		h.recordAudit(ctx, &tenantID, "", false, "malformed JSON body", nil)
		return http.StatusBadRequest, h.errorBody("request body must be valid JSON")
	}

	// Audit entries carry the normalized number so the trail matches the
	// call logs regardless of the provider's formatting.
	auditNumber := ""
	if req.CallerID != "" {
		auditNumber = phone.Normalize(req.CallerID)
	}

	payload := correlate.Payload{
		CallerID:  req.CallerID,
		CallType:  req.CallType,
		WebhookID: req.WebhookID,
		Source:    req.Source,
		Raw:       json.RawMessage(body),
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			h.recordAudit(ctx, &tenantID, auditNumber, false, "invalid timestamp", nil)
			return http.StatusBadRequest, h.errorBody("timestamp must be an ISO-8601 string")
		}
		payload.Timestamp = &ts
	}

	result, err := h.engine.Correlate(ctx, tenantID, payload)
	if err != nil {
		var verr *correlate.ValidationError
		if errors.As(err, &verr) {
			h.recordAudit(ctx, &tenantID, auditNumber, false, verr.Message, nil)
			return http.StatusBadRequest, h.errorBody(verr.Message)
		}
		h.logger.Error().Err(err).Str("company_id", tenantID.String()).Msg("webhook processing failed")
		h.recordAudit(ctx, &tenantID, auditNumber, false, err.Error(), nil)
		return http.StatusInternalServerError, h.errorBody("failed to process incoming call")
	}

	h.recordAudit(ctx, &tenantID, result.CallerNumber, true, "", &result.CallLogID)

	message := "Incoming call processed"
	if result.Duplicate {
		message = "Duplicate delivery, call already recorded"
	}
	return http.StatusOK, successResponse{
		Success: true,
		Message: message,
		Data: CallData{
			CallLogID:    result.CallLogID,
			CallerFound:  result.ContactFound,
			CallerNumber: result.CallerNumber,
			Timestamp:    result.Timestamp,
			CompanyID:    tenantID,
		},
	}
}

func (h *Handler) recordAudit(ctx context.Context, tenantID *uuid.UUID, callerNumber string, success bool, errMsg string, callLogID *uuid.UUID) {
	if h.audit == nil {
		return
	}
	h.audit.Record(ctx, models.WebhookAudit{
		TenantID:     tenantID,
		CallerNumber: callerNumber,
		Success:      success,
		Error:        errMsg,
		CallLogID:    callLogID,
	})
}

func (h *Handler) errorBody(msg string) errorResponse {
	return errorResponse{Success: false, Error: msg, Timestamp: time.Now().UTC()}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("failed to write webhook response")
	}
}

func writeCORS(header http.Header) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
