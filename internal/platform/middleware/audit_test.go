package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		*req = *req.WithContext(auth.WithUser(req.Context(), userID, "", roles))
	}
}

func TestAudit_ResourceCreate(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPost, "/api/v1/resources/Observation",
		withAuth("user-1", []string{auth.RoleEditor}),
		func(r *http.Request) { r.Header.Set("User-Agent", "console-test") })
	c.Set("request_id", "req-1")

	if err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.last()
	if got.Action != "create" || got.ResourceType != "Observation" || got.ResourceID != "" {
		t.Errorf("unexpected target %+v", got)
	}
	if got.UserID != "user-1" || len(got.UserRoles) != 1 {
		t.Errorf("unexpected user %q %v", got.UserID, got.UserRoles)
	}
	if got.StatusCode != http.StatusCreated || got.RequestID != "req-1" || got.UserAgent != "console-test" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_ResourceUpdateWithID(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodPut, "/api/v1/resources/Patient/abc-1", withAuth("u", nil))

	if err := Audit(zerolog.Nop(), rec)(okString)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := rec.last()
	if got.Action != "update" || got.ResourceType != "Patient" || got.ResourceID != "abc-1" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_SettingsReset(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodDelete, "/api/v1/settings")

	if err := Audit(zerolog.Nop(), rec)(okString)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.last(); got.Action != "delete" || got.ResourceType != "settings" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	rec := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/health")

	if err := Audit(zerolog.Nop(), rec)(okString)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected no audit entry, got %d", rec.count())
	}
}

func TestAudit_RecorderErrorDoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("disk full")}
	c, httpRec := newTestContext(http.MethodGet, "/api/v1/resource-types")

	if err := Audit(zerolog.Nop(), rec)(okString)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if httpRec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", httpRec.Code)
	}
}

func TestAudit_PropagatesHandlerError(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/api/v1/settings")
	boom := errors.New("boom")

	if err := Audit(zerolog.Nop(), nil)(func(echo.Context) error { return boom })(c); !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestAuditTarget(t *testing.T) {
	tests := []struct {
		path     string
		wantType string
		wantID   string
	}{
		{"/api/v1/resources/Patient/123", "Patient", "123"},
		{"/api/v1/resources/Patient/123/references", "Patient", "123"},
		{"/api/v1/resources/Condition", "Condition", ""},
		{"/api/v1/resources", "unknown", ""},
		{"/api/v1/settings/defaults", "settings", ""},
		{"/api/v1/synthetic", "synthetic", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		gotType, gotID := auditTarget(tt.path)
		if gotType != tt.wantType || gotID != tt.wantID {
			t.Errorf("auditTarget(%q) = %q, %q; want %q, %q", tt.path, gotType, gotID, tt.wantType, tt.wantID)
		}
	}
}

func TestHttpMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error { got = e; return nil })
	if err := f.RecordAccess(AuditEntry{UserID: "x"}); err != nil || got.UserID != "x" {
		t.Errorf("unexpected result %v %+v", err, got)
	}
}
