package models

import (
	"time"

	"github.com/google/uuid"
)

// Call log statuses. A call log is created as incoming and mutated in place
// as the call progresses; it is never deleted.
const (
	CallStatusIncoming  = "incoming"
	CallStatusAnswered  = "answered"
	CallStatusMissed    = "missed"
	CallStatusCompleted = "completed"
)

// CallDirectionInbound is the only direction produced by the webhook ingress.
const CallDirectionInbound = "inbound"

// CallLog is the durable record of one inbound call event and its lifecycle.
// ContactID is null for unknown callers. Duration is only meaningful once the
// status is answered or completed.
type CallLog struct {
	BaseTenantModel
	ContactID         *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:SET NULL" json:"contact_id"`
	CallerNumber      string     `gorm:"not null;index" json:"caller_number"`
	Status            string     `gorm:"default:'incoming';not null" json:"status"`
	Direction         string     `gorm:"default:'inbound';not null" json:"direction"`
	StartedAt         time.Time  `gorm:"not null" json:"started_at"`
	AnsweredAt        *time.Time `json:"answered_at"`
	EndedAt           *time.Time `json:"ended_at"`
	DurationSeconds   int        `gorm:"default:0" json:"duration_seconds"`
	SelectedAddressID *uuid.UUID `gorm:"type:uuid;constraint:OnDelete:SET NULL" json:"selected_address_id"`
	CallType          string     `json:"call_type"`
	Source            string     `json:"source"`
	WebhookID         string     `gorm:"index" json:"webhook_id"`
	RawPayload        string     `gorm:"type:jsonb" json:"raw_payload"` // provider payload stored verbatim for audit

	Contact *Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// WebhookAudit is the audit trail entry written once per webhook invocation,
// success or failure. TenantID is null when the tenant identifier could not
// be parsed.
type WebhookAudit struct {
	BaseModel
	TenantID     *uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	CallerNumber string     `json:"caller_number"`
	Success      bool       `gorm:"not null" json:"success"`
	Error        string     `json:"error"`
	CallLogID    *uuid.UUID `gorm:"type:uuid" json:"call_log_id"`
}

// CallLogFilters narrows call history queries
type CallLogFilters struct {
	Status       string `json:"status,omitempty"`
	CallerNumber string `json:"caller_number,omitempty"`
	ContactID    string `json:"contact_id,omitempty"`
}
