package repo

import (
	"context"
	"errors"
	"time"

	"callpop/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallLogRepository handles call log data access. Call logs are append-only
// rows mutated in place as the call progresses; they are never deleted.
type CallLogRepository struct {
	db *gorm.DB
}

// NewCallLogRepository creates a new call log repository
func NewCallLogRepository(db *gorm.DB) *CallLogRepository {
	return &CallLogRepository{db: db}
}

// Create inserts a new call log row
func (r *CallLogRepository) Create(ctx context.Context, log *models.CallLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// GetByID gets a call log by ID
func (r *CallLogRepository) GetByID(tenantID, id uuid.UUID) (*models.CallLog, error) {
	var log models.CallLog
	err := r.db.Preload("Contact").Where("id = ? AND tenant_id = ?", id, tenantID).First(&log).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindRecentByWebhookID looks up a call log created for the same provider
// event id on or after since. Returns (nil, nil) when none exists.
func (r *CallLogRepository) FindRecentByWebhookID(ctx context.Context, tenantID uuid.UUID, webhookID string, since time.Time) (*models.CallLog, error) {
	var log models.CallLog
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND webhook_id = ? AND created_at >= ?", tenantID, webhookID, since).
		Order("created_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// AssignContact links a call log to a contact (unknown-caller promotion)
func (r *CallLogRepository) AssignContact(tenantID, callID, contactID uuid.UUID) error {
	return r.db.Model(&models.CallLog{}).
		Where("id = ? AND tenant_id = ?", callID, tenantID).
		Update("contact_id", contactID).Error
}

// MarkAnswered records the answered transition
func (r *CallLogRepository) MarkAnswered(ctx context.Context, tenantID, callID uuid.UUID, answeredAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.CallLog{}).
		Where("id = ? AND tenant_id = ?", callID, tenantID).
		Updates(map[string]interface{}{
			"status":      models.CallStatusAnswered,
			"answered_at": answeredAt,
		}).Error
}

// MarkEnded records a terminal transition (missed or completed) together
// with its duration and the last selected address, if any.
func (r *CallLogRepository) MarkEnded(ctx context.Context, tenantID, callID uuid.UUID, status string, endedAt time.Time, durationSeconds int, addressID *uuid.UUID) error {
	updates := map[string]interface{}{
		"status":           status,
		"ended_at":         endedAt,
		"duration_seconds": durationSeconds,
	}
	if addressID != nil {
		updates["selected_address_id"] = *addressID
	}
	query := r.db.WithContext(ctx).Model(&models.CallLog{}).
		Where("id = ? AND tenant_id = ?", callID, tenantID)
	// A missed transition only applies to a call nobody answered: another
	// agent's answered or completed call must not be overwritten by a late
	// ring timeout.
	if status == models.CallStatusMissed {
		query = query.Where("status = ?", models.CallStatusIncoming)
	}
	return query.Updates(updates).Error
}

// SetSelectedAddress persists the agent's current address choice
func (r *CallLogRepository) SetSelectedAddress(ctx context.Context, tenantID, callID uuid.UUID, addressID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.CallLog{}).
		Where("id = ? AND tenant_id = ?", callID, tenantID).
		Update("selected_address_id", addressID).Error
}

// List lists call logs with pagination and optional filters, newest first
func (r *CallLogRepository) List(tenantID uuid.UUID, limit, offset int, filters models.CallLogFilters) (*models.PaginationResult[models.CallLog], error) {
	var logs []models.CallLog
	var total int64

	query := r.db.Model(&models.CallLog{}).Where("tenant_id = ?", tenantID)

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}
	if filters.CallerNumber != "" {
		query = query.Where("caller_number = ?", filters.CallerNumber)
	}
	if filters.ContactID != "" {
		if contactID, err := uuid.Parse(filters.ContactID); err == nil {
			query = query.Where("contact_id = ?", contactID)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	err := query.Preload("Contact").Order("started_at DESC").Limit(limit).Offset(offset).Find(&logs).Error
	if err != nil {
		return nil, err
	}

	return paginate(logs, total, limit, offset), nil
}

// ListAll returns every call log of a tenant for export, oldest first
func (r *CallLogRepository) ListAll(tenantID uuid.UUID) ([]models.CallLog, error) {
	var logs []models.CallLog
	err := r.db.Preload("Contact").Where("tenant_id = ?", tenantID).Order("started_at ASC").Find(&logs).Error
	return logs, err
}

// AuditRepository persists webhook audit trail entries
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.WebhookAudit) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
