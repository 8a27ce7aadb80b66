package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CallLogLister returns the full call history of a tenant for export.
type CallLogLister interface {
	ListAll(tenantID uuid.UUID) ([]models.CallLog, error)
}

// ExportArchiver stores a generated export and returns its URL. Optional:
// without one, exports are only streamed to the caller.
type ExportArchiver interface {
	ArchiveExport(tenantID, name string, data []byte) (string, error)
}

// ExportService renders tenant call history as CSV and optionally archives
// a copy to object storage.
type ExportService struct {
	callLogs CallLogLister
	archiver ExportArchiver
	logger   zerolog.Logger
}

// NewExportService creates a new export service. archiver may be nil.
func NewExportService(callLogs CallLogLister, archiver ExportArchiver, logger zerolog.Logger) *ExportService {
	return &ExportService{
		callLogs: callLogs,
		archiver: archiver,
		logger:   logger.With().Str("component", "export").Logger(),
	}
}

var callLogCSVHeader = []string{
	"call_log_id", "caller_number", "contact_name", "status",
	"started_at", "answered_at", "ended_at", "duration_seconds", "call_type", "source",
}

// CallHistoryCSV renders the tenant's full call history as CSV, oldest
// first. Returns the CSV bytes and, when an archiver is configured, the URL
// of the archived copy. Archive failures are non-fatal: the caller still
// gets the data.
func (s *ExportService) CallHistoryCSV(tenantID uuid.UUID) ([]byte, string, error) {
	logs, err := s.callLogs.ListAll(tenantID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load call history: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(callLogCSVHeader); err != nil {
		return nil, "", err
	}

	for i := range logs {
		log := &logs[i]
		contactName := ""
		if log.Contact != nil {
			contactName = log.Contact.Name
		}
		record := []string{
			log.ID.String(),
			log.CallerNumber,
			contactName,
			log.Status,
			log.StartedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(log.AnsweredAt),
			formatOptionalTime(log.EndedAt),
			strconv.Itoa(log.DurationSeconds),
			log.CallType,
			log.Source,
		}
		if err := w.Write(record); err != nil {
			return nil, "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}

	data := buf.Bytes()
	var url string
	if s.archiver != nil {
		url, err = s.archiver.ArchiveExport(tenantID.String(), "call-history", data)
		if err != nil {
			s.logger.Warn().Err(err).Str("tenant_id", tenantID.String()).Msg("failed to archive call history export")
			url = ""
		}
	}
	return data, url, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
