package fhir

import (
	"encoding/json"
	"testing"
)

func TestOperationOutcome_Message(t *testing.T) {
	o := NewOperationOutcome(IssueSeverityError, IssueTypeInvalid, "bad input")
	if o.Message() != "bad input" {
		t.Errorf("expected diagnostics, got %q", o.Message())
	}

	o.Issue[0].Details = &CodeableConcept{Text: "Readable text"}
	if o.Message() != "Readable text" {
		t.Errorf("expected details.text to win, got %q", o.Message())
	}

	bare := &OperationOutcome{Issue: []OperationOutcomeIssue{{Severity: "error", Code: "processing"}}}
	if bare.Message() != "processing" {
		t.Errorf("expected code fallback, got %q", bare.Message())
	}

	var nilOutcome *OperationOutcome
	if nilOutcome.Message() != "" {
		t.Error("expected empty message for nil outcome")
	}
}

func TestOperationOutcome_HasErrors(t *testing.T) {
	if SuccessOutcome("ok").HasErrors() {
		t.Error("expected informational outcome to have no errors")
	}
	if !ErrorOutcome("boom").HasErrors() {
		t.Error("expected error outcome to have errors")
	}
}

func TestRequiredFieldOutcome(t *testing.T) {
	o := RequiredFieldOutcome("family")
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["resourceType"] != "OperationOutcome" {
		t.Errorf("expected OperationOutcome, got %v", decoded["resourceType"])
	}
	issue := o.Issue[0]
	if issue.Code != IssueTypeRequired || len(issue.Expression) != 1 || issue.Expression[0] != "family" {
		t.Errorf("unexpected issue %+v", issue)
	}
}

func TestUpstreamOutcome(t *testing.T) {
	o := UpstreamOutcome(503, "Service unavailable")
	if o.Message() != "FHIR server responded 503: Service unavailable" {
		t.Errorf("unexpected message %q", o.Message())
	}
}

func TestNotFoundOutcome(t *testing.T) {
	o := NotFoundOutcome("Patient", "42")
	if o.Issue[0].Code != IssueTypeNotFound || o.Message() != "Patient/42 not found" {
		t.Errorf("unexpected outcome %+v", o.Issue[0])
	}
}
