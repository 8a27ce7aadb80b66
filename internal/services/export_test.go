package services

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeLister struct {
	logs []models.CallLog
	err  error
}

func (f *fakeLister) ListAll(tenantID uuid.UUID) ([]models.CallLog, error) {
	return f.logs, f.err
}

type fakeArchiver struct {
	url     string
	err     error
	gotName string
	gotData []byte
}

func (f *fakeArchiver) ArchiveExport(tenantID, name string, data []byte) (string, error) {
	f.gotName = name
	f.gotData = data
	return f.url, f.err
}

func TestCallHistoryCSV(t *testing.T) {
	started := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	answered := started.Add(5 * time.Second)
	ended := started.Add(130 * time.Second)
	lister := &fakeLister{logs: []models.CallLog{
		{
			BaseTenantModel: models.BaseTenantModel{ID: uuid.New()},
			CallerNumber:    "+306912345678",
			Status:          models.CallStatusCompleted,
			StartedAt:       started,
			AnsweredAt:      &answered,
			EndedAt:         &ended,
			DurationSeconds: 125,
			CallType:        "incoming",
			Contact:         &models.Contact{Name: "Maria Papadopoulou"},
		},
		{
			BaseTenantModel: models.BaseTenantModel{ID: uuid.New()},
			CallerNumber:    "+302101234567",
			Status:          models.CallStatusMissed,
			StartedAt:       started.Add(time.Hour),
		},
	}}
	archiver := &fakeArchiver{url: "https://bucket/exports/call-history.csv"}
	svc := NewExportService(lister, archiver, zerolog.Nop())

	data, url, err := svc.CallHistoryCSV(uuid.New())
	if err != nil {
		t.Fatalf("CallHistoryCSV: %v", err)
	}
	if url != archiver.url {
		t.Fatalf("url = %q, want %q", url, archiver.url)
	}
	if archiver.gotName != "call-history" {
		t.Fatalf("archived name = %q", archiver.gotName)
	}

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}
	if records[1][1] != "+306912345678" || records[1][2] != "Maria Papadopoulou" || records[1][7] != "125" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
	// Unknown caller exports with empty contact and timestamps.
	if records[2][2] != "" || records[2][5] != "" || records[2][7] != "0" {
		t.Fatalf("unexpected second row: %v", records[2])
	}
}

func TestCallHistoryCSVArchiveFailureIsNonFatal(t *testing.T) {
	lister := &fakeLister{logs: nil}
	archiver := &fakeArchiver{err: errors.New("bucket unreachable")}
	svc := NewExportService(lister, archiver, zerolog.Nop())

	data, url, err := svc.CallHistoryCSV(uuid.New())
	if err != nil {
		t.Fatalf("CallHistoryCSV: %v", err)
	}
	if url != "" {
		t.Fatalf("url = %q, want empty on archive failure", url)
	}
	if len(data) == 0 {
		t.Fatal("expected csv header even with no rows")
	}
}
