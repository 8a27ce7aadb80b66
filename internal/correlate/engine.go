// Package correlate maps inbound call webhooks to contacts and call logs.
// The engine normalizes the caller identifier, resolves the contact within
// the tenant, writes the call ledger row, and publishes the incoming-call
// event to the tenant's live sessions.
package correlate

import (
	"context"
	"encoding/json"
	"time"

	"callpop/internal/phone"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DedupWindow is how far back the engine looks for an earlier call log with
// the same provider event id before treating a webhook as a retry.
const DedupWindow = 60 * time.Second

// Directory looks up contacts within a tenant. Absence is not an error:
// implementations return (nil, nil) for an unknown number.
type Directory interface {
	GetByPhone(tenantID uuid.UUID, phoneNumber string) (*models.Contact, error)
}

// Ledger persists call log rows.
type Ledger interface {
	Create(ctx context.Context, log *models.CallLog) error
	FindRecentByWebhookID(ctx context.Context, tenantID uuid.UUID, webhookID string, since time.Time) (*models.CallLog, error)
}

// Publisher delivers incoming-call events to the tenant's live connections.
type Publisher interface {
	PublishIncomingCall(tenantID uuid.UUID, event IncomingCallEvent)
}

// Payload is the parsed provider webhook body.
type Payload struct {
	CallerID  string     `json:"caller_id"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	CallType  string     `json:"call_type,omitempty"`
	WebhookID string     `json:"webhook_id,omitempty"`
	Source    string     `json:"source,omitempty"`

	// Raw is the body as received, stored verbatim on the call log.
	Raw json.RawMessage `json:"-"`
}

// IncomingCallEvent is pushed to every live connection of the tenant. Its
// shape mirrors the webhook response data, extended with the resolved
// contact and the raw provider payload.
type IncomingCallEvent struct {
	CallLogID    uuid.UUID       `json:"callLogId"`
	CompanyID    uuid.UUID       `json:"companyId"`
	CallerNumber string          `json:"callerNumber"`
	CallerFound  bool            `json:"callerFound"`
	Timestamp    time.Time       `json:"timestamp"`
	CallType     string          `json:"callType,omitempty"`
	Contact      *models.Contact `json:"contact,omitempty"`
	RawPayload   json.RawMessage `json:"rawPayload,omitempty"`
}

// Result is returned to the ingress handler.
type Result struct {
	CallLogID    uuid.UUID
	ContactFound bool
	Contact      *models.Contact
	CallerNumber string
	Timestamp    time.Time
	Duplicate    bool
}

// Engine is the call correlation engine. It holds no global state and is
// safe for concurrent use; construct one per process and inject it.
type Engine struct {
	directory Directory
	ledger    Ledger
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine creates a correlation engine.
func NewEngine(directory Directory, ledger Ledger, publisher Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		directory: directory,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger.With().Str("component", "correlate").Logger(),
		now:       time.Now,
	}
}

// Correlate processes one inbound call event for a tenant.
//
// A directory lookup failure is degraded to an unknown caller: an incoming
// call must never be dropped because a secondary read failed. A ledger write
// failure is a hard DependencyError since losing the record entirely is
// worse than a retry.
func (e *Engine) Correlate(ctx context.Context, tenantID uuid.UUID, p Payload) (*Result, error) {
	if p.CallerID == "" {
		return nil, &ValidationError{Field: "caller_id", Message: "is required"}
	}

	number := phone.Normalize(p.CallerID)

	// Provider retries carry the same webhook_id; reuse the earlier row
	// instead of creating a duplicate. Events without a webhook_id are
	// never deduplicated.
	if p.WebhookID != "" {
		existing, err := e.ledger.FindRecentByWebhookID(ctx, tenantID, p.WebhookID, e.now().Add(-DedupWindow))
		if err != nil {
			e.logger.Warn().Err(err).
				Str("tenant_id", tenantID.String()).
				Str("webhook_id", p.WebhookID).
				Msg("dedup lookup failed, proceeding without dedup")
		} else if existing != nil {
			e.logger.Info().
				Str("tenant_id", tenantID.String()).
				Str("webhook_id", p.WebhookID).
				Str("call_log_id", existing.ID.String()).
				Msg("duplicate webhook event, reusing call log")
			return &Result{
				CallLogID:    existing.ID,
				ContactFound: existing.ContactID != nil,
				CallerNumber: existing.CallerNumber,
				Timestamp:    existing.StartedAt,
				Duplicate:    true,
			}, nil
		}
	}

	contact, err := e.directory.GetByPhone(tenantID, number)
	if err != nil {
		e.logger.Error().Err(err).
			Str("tenant_id", tenantID.String()).
			Str("caller_number", number).
			Msg("contact lookup failed, recording call as unknown caller")
		contact = nil
	}

	startedAt := e.now()
	if p.Timestamp != nil {
		startedAt = *p.Timestamp
	}

	log := &models.CallLog{
		BaseTenantModel: models.BaseTenantModel{
			ID:       uuid.New(),
			TenantID: tenantID,
		},
		CallerNumber: number,
		Status:       models.CallStatusIncoming,
		Direction:    models.CallDirectionInbound,
		StartedAt:    startedAt,
		CallType:     p.CallType,
		Source:       p.Source,
		WebhookID:    p.WebhookID,
		RawPayload:   string(p.Raw),
	}
	if contact != nil {
		log.ContactID = &contact.ID
	}

	if err := e.ledger.Create(ctx, log); err != nil {
		return nil, &DependencyError{Op: "create call log", Err: err}
	}

	event := IncomingCallEvent{
		CallLogID:    log.ID,
		CompanyID:    tenantID,
		CallerNumber: number,
		CallerFound:  contact != nil,
		Timestamp:    startedAt,
		CallType:     p.CallType,
		Contact:      contact,
		RawPayload:   p.Raw,
	}
	e.publisher.PublishIncomingCall(tenantID, event)

	e.logger.Info().
		Str("tenant_id", tenantID.String()).
		Str("caller_number", number).
		Bool("caller_found", contact != nil).
		Str("call_log_id", log.ID.String()).
		Msg("incoming call correlated")

	return &Result{
		CallLogID:    log.ID,
		ContactFound: contact != nil,
		Contact:      contact,
		CallerNumber: number,
		Timestamp:    startedAt,
	}, nil
}
