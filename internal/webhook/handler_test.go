package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callpop/internal/correlate"
	"callpop/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type fakeCorrelator struct {
	result  *correlate.Result
	err     error
	gotTID  uuid.UUID
	gotPay  correlate.Payload
	calls   int
}

func (f *fakeCorrelator) Correlate(ctx context.Context, tenantID uuid.UUID, p correlate.Payload) (*correlate.Result, error) {
	f.calls++
	f.gotTID = tenantID
	f.gotPay = p
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRecorder struct {
	entries []models.WebhookAudit
}

func (f *fakeRecorder) Record(ctx context.Context, entry models.WebhookAudit) {
	f.entries = append(f.entries, entry)
}

func foundResult() *correlate.Result {
	return &correlate.Result{
		CallLogID:    uuid.New(),
		ContactFound: true,
		CallerNumber: "+306912345678",
		Timestamp:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func postEcho(h *Handler, target, companyParam, body string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if companyParam != "" {
		c.SetParamNames("company_id")
		c.SetParamValues(companyParam)
	}
	h.IncomingCall(c)
	return rec
}

func TestIncomingCallPathForm(t *testing.T) {
	engine := &fakeCorrelator{result: foundResult()}
	audit := &fakeRecorder{}
	h := NewHandler(engine, audit, zerolog.Nop(), "callpop", "test")

	tenantID := uuid.New()
	rec := postEcho(h, "/webhook/incoming-call/"+tenantID.String(), tenantID.String(),
		`{"caller_id":"+306912345678","call_type":"incoming"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			CallLogID    string `json:"callLogId"`
			CallerFound  bool   `json:"callerFound"`
			CallerNumber string `json:"callerNumber"`
			CompanyID    string `json:"companyId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Fatal("success = false, want true")
	}
	if !resp.Data.CallerFound {
		t.Fatal("callerFound = false, want true")
	}
	if resp.Data.CallerNumber != "+306912345678" {
		t.Fatalf("callerNumber = %q", resp.Data.CallerNumber)
	}
	if resp.Data.CompanyID != tenantID.String() {
		t.Fatalf("companyId = %q, want %q", resp.Data.CompanyID, tenantID)
	}
	if engine.gotTID != tenantID {
		t.Fatalf("engine received tenant %s, want %s", engine.gotTID, tenantID)
	}
	if engine.gotPay.CallerID != "+306912345678" {
		t.Fatalf("engine received caller_id %q", engine.gotPay.CallerID)
	}

	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	if !audit.entries[0].Success || audit.entries[0].CallLogID == nil {
		t.Fatalf("unexpected audit entry %+v", audit.entries[0])
	}
}

func TestIncomingCallQueryForm(t *testing.T) {
	engine := &fakeCorrelator{result: foundResult()}
	h := NewHandler(engine, nil, zerolog.Nop(), "callpop", "test")

	tenantID := uuid.New()
	rec := postEcho(h, "/webhook/incoming-call?company="+tenantID.String(), "",
		`{"caller_id":"2101234567"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if engine.gotTID != tenantID {
		t.Fatalf("engine received tenant %s, want %s", engine.gotTID, tenantID)
	}
}

func TestIncomingCallInvalidCompany(t *testing.T) {
	engine := &fakeCorrelator{result: foundResult()}
	audit := &fakeRecorder{}
	h := NewHandler(engine, audit, zerolog.Nop(), "callpop", "test")

	rec := postEcho(h, "/webhook/incoming-call/not-a-uuid", "not-a-uuid", `{"caller_id":"123"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp struct {
		Success   bool   `json:"success"`
		Error     string `json:"error"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success || resp.Error == "" || resp.Timestamp == "" {
		t.Fatalf("unexpected error envelope: %s", rec.Body.String())
	}
	if engine.calls != 0 {
		t.Fatal("engine should not be called for invalid company id")
	}
	if len(audit.entries) != 1 || audit.entries[0].Success {
		t.Fatalf("expected one failed audit entry, got %+v", audit.entries)
	}
}

func TestIncomingCallValidationError(t *testing.T) {
	engine := &fakeCorrelator{err: &correlate.ValidationError{Field: "caller_id", Message: "is required"}}
	h := NewHandler(engine, nil, zerolog.Nop(), "callpop", "test")

	rec := postEcho(h, "/webhook/incoming-call/"+uuid.NewString(), uuid.NewString(), `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("expected failure envelope: %s", rec.Body.String())
	}
}

func TestIncomingCallDependencyError(t *testing.T) {
	engine := &fakeCorrelator{err: &correlate.DependencyError{Op: "create call log", Err: errors.New("connection refused")}}
	h := NewHandler(engine, nil, zerolog.Nop(), "callpop", "test")

	rec := postEcho(h, "/webhook/incoming-call/"+uuid.NewString(), uuid.NewString(), `{"caller_id":"123"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked to caller: %s", rec.Body.String())
	}
}

func TestFailureAuditRecordsNormalizedNumber(t *testing.T) {
	engine := &fakeCorrelator{err: &correlate.DependencyError{Op: "create call log", Err: errors.New("db down")}}
	audit := &fakeRecorder{}
	h := NewHandler(engine, audit, zerolog.Nop(), "callpop", "test")

	rec := postEcho(h, "/webhook/incoming-call/"+uuid.NewString(), uuid.NewString(),
		`{"caller_id":"+30 691 234-5678"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	// The trail carries the same canonical number as the call logs, not the
	// provider's formatting.
	if got := audit.entries[0].CallerNumber; got != "+306912345678" {
		t.Fatalf("audit caller number = %q, want +306912345678", got)
	}
}

func TestIncomingCallMalformedBody(t *testing.T) {
	engine := &fakeCorrelator{result: foundResult()}
	h := NewHandler(engine, nil, zerolog.Nop(), "callpop", "test")

	rec := postEcho(h, "/webhook/incoming-call/"+uuid.NewString(), uuid.NewString(), `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if engine.calls != 0 {
		t.Fatal("engine should not be called for malformed body")
	}
}

func TestServeHTTPPathAndQueryForms(t *testing.T) {
	engine := &fakeCorrelator{result: foundResult()}
	h := NewHandler(engine, nil, zerolog.Nop(), "callpop", "test")
	tenantID := uuid.New()

	for _, target := range []string{
		"/webhook/incoming-call/" + tenantID.String(),
		"/webhook/incoming-call?company=" + tenantID.String(),
	} {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{"caller_id":"+306912345678"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200: %s", target, rec.Code, rec.Body.String())
		}
		if engine.gotTID != tenantID {
			t.Fatalf("%s: engine received tenant %s, want %s", target, engine.gotTID, tenantID)
		}
	}
}

func TestServeHTTPPreflight(t *testing.T) {
	h := NewHandler(&fakeCorrelator{}, nil, zerolog.Nop(), "callpop", "test")

	req := httptest.NewRequest(http.MethodOptions, "/webhook/incoming-call/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	methods := rec.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(methods, "POST") || !strings.Contains(methods, "OPTIONS") {
		t.Fatalf("Allow-Methods = %q, want POST and OPTIONS", methods)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing Access-Control-Allow-Origin")
	}
}

func TestServeHTTPHealth(t *testing.T) {
	h := NewHandler(&fakeCorrelator{}, nil, zerolog.Nop(), "callpop", "1.2.3")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "healthy" || resp["service"] != "callpop" || resp["version"] != "1.2.3" {
		t.Fatalf("unexpected health body: %v", resp)
	}
	if resp["timestamp"] == "" {
		t.Fatal("missing timestamp")
	}
}

func TestDuplicateDeliveryMessage(t *testing.T) {
	result := foundResult()
	result.Duplicate = true
	h := NewHandler(&fakeCorrelator{result: result}, nil, zerolog.Nop(), "callpop", "test")

	rec := postEcho(h, "/webhook/incoming-call/"+uuid.NewString(), uuid.NewString(), `{"caller_id":"123","webhook_id":"wh-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Duplicate") {
		t.Fatalf("expected duplicate message: %s", rec.Body.String())
	}
}
