package services

import (
	"context"

	"callpop/internal/repo"
	"callpop/pkg/models"

	"github.com/rs/zerolog"
)

// AuditService writes the webhook audit trail. Writes are best-effort: a
// failed audit insert is logged and swallowed so it can never fail the
// delivery it describes.
type AuditService struct {
	repo   *repo.AuditRepository
	logger zerolog.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(auditRepo *repo.AuditRepository, logger zerolog.Logger) *AuditService {
	return &AuditService{
		repo:   auditRepo,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Record persists one audit entry for a webhook invocation.
func (s *AuditService) Record(ctx context.Context, entry models.WebhookAudit) {
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Warn().Err(err).
			Str("caller_number", entry.CallerNumber).
			Bool("success", entry.Success).
			Msg("failed to write webhook audit entry")
	}
}
