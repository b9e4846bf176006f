package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/platform/auth"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// newTestRouter wires the handler behind a middleware that authenticates
// every request with the given roles.
func newTestRouter(t *testing.T, f *fakeFHIR, roles ...string) *echo.Echo {
	t.Helper()
	svc, _ := newTestService(t, f)
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zerolog.Nop())
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithUser(c.Request().Context(), "user-1", "Test User", roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(svc).RegisterRoutes(api)
	return e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RoleGroups(t *testing.T) {
	f := newFakeFHIR(t)
	f.put(samplePatient())
	patientForm := `{"identifier":"MRN-2","family":"Poe","given":"Edgar"}`

	tests := []struct {
		name   string
		roles  []string
		method string
		target string
		body   string
		want   int
	}{
		{"viewer reads", []string{auth.RoleViewer}, http.MethodGet, "/api/v1/resources/Patient/p1", "", http.StatusOK},
		{"viewer cannot create", []string{auth.RoleViewer}, http.MethodPost, "/api/v1/resources/Patient", patientForm, http.StatusForbidden},
		{"editor creates", []string{auth.RoleEditor}, http.MethodPost, "/api/v1/resources/Patient", patientForm, http.StatusCreated},
		{"editor cannot change settings", []string{auth.RoleEditor}, http.MethodDelete, "/api/v1/settings", "", http.StatusForbidden},
		{"admin resets settings", []string{auth.RoleAdmin}, http.MethodDelete, "/api/v1/settings", "", http.StatusOK},
		{"no roles", nil, http.MethodGet, "/api/v1/resource-types", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestRouter(t, f, tt.roles...)
			rec := doRequest(e, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_Search(t *testing.T) {
	f := newFakeFHIR(t)
	f.put(samplePatient())
	e := newTestRouter(t, f, auth.RoleViewer)

	rec := doRequest(e, http.MethodGet, "/api/v1/resources/Patient?field=name&term=Doe&_count=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(result.Entries) != 1 || result.Entries[0].Title != "Jane Doe" {
		t.Errorf("unexpected result %+v", result)
	}
	if got := f.lastRequest(); got != "GET /fhir/Patient?_count=5&name=Doe" {
		t.Errorf("unexpected upstream request %q", got)
	}
}

func TestHandler_ErrorsAreOperationOutcomes(t *testing.T) {
	f := newFakeFHIR(t)
	e := newTestRouter(t, f, auth.RoleEditor)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
		code   string
	}{
		{"bad resource type", http.MethodGet, "/api/v1/resources/patient", "", http.StatusBadRequest, fhir.IssueTypeInvalid},
		{"missing resource", http.MethodGet, "/api/v1/resources/Patient/none", "", http.StatusNotFound, fhir.IssueTypeNotFound},
		{"missing required field", http.MethodPost, "/api/v1/resources/Patient", `{"family":"Poe"}`, http.StatusUnprocessableEntity, fhir.IssueTypeRequired},
		{"malformed body", http.MethodPost, "/api/v1/resources/Patient", `{"family":`, http.StatusBadRequest, fhir.IssueTypeInvalid},
		{"foreign paging link", http.MethodPost, "/api/v1/resources/page", `{"url":"https://other.example.com/fhir?page=2"}`, http.StatusBadRequest, fhir.IssueTypeInvalid},
		{"unknown preview mode", http.MethodPost, "/api/v1/forms/Patient/preview", `{"mode":"delete","form":{}}`, http.StatusBadRequest, fhir.IssueTypeInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			var outcome fhir.OperationOutcome
			if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
				t.Fatalf("expected OperationOutcome: %v", err)
			}
			if outcome.ResourceType != "OperationOutcome" || outcome.Issue[0].Code != tt.code {
				t.Errorf("unexpected outcome %+v", outcome)
			}
		})
	}
}

func TestHandler_FormsRoundTrip(t *testing.T) {
	f := newFakeFHIR(t)
	f.put(samplePatient())
	e := newTestRouter(t, f, auth.RoleEditor)

	rec := doRequest(e, http.MethodGet, "/api/v1/forms/Patient/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var edit struct {
		Form map[string]interface{} `json:"form"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &edit); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if edit.Form["family"] != "Doe" {
		t.Fatalf("unexpected form %v", edit.Form)
	}

	edit.Form["family"] = "Dough"
	body, _ := json.Marshal(edit.Form)
	rec = doRequest(e, http.MethodPut, "/api/v1/resources/Patient/p1", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Fields struct {
			Title string `json:"title"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if view.Fields.Title != "Jane Dough" {
		t.Errorf("unexpected title %q", view.Fields.Title)
	}
}

func TestHandler_SettingsHideKey(t *testing.T) {
	f := newFakeFHIR(t)
	e := newTestRouter(t, f, auth.RoleAdmin)

	rec := doRequest(e, http.MethodPut, "/api/v1/settings", `{"apiKey":"top-secret","serverName":"Lab"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "top-secret") {
		t.Errorf("api key leaked: %s", rec.Body.String())
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/settings", "")
	if strings.Contains(rec.Body.String(), "top-secret") || !strings.Contains(rec.Body.String(), "Lab") {
		t.Errorf("unexpected settings body %s", rec.Body.String())
	}
}

func TestHandler_Synthetic(t *testing.T) {
	f := newFakeFHIR(t)
	e := newTestRouter(t, f, auth.RoleEditor)

	rec := doRequest(e, http.MethodPost, "/api/v1/synthetic", `{"patientCount":2,"includeRelatedResources":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Success        bool `json:"success"`
		GeneratedCount int  `json:"generatedCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !result.Success || result.GeneratedCount != 2 {
		t.Errorf("unexpected result %+v", result)
	}

	rec = doRequest(e, http.MethodPost, "/api/v1/synthetic", `{"patientCount":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	if err := Health(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
