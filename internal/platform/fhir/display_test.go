package fhir

import (
	"strings"
	"testing"
)

func TestCodeableConceptDisplay_Precedence(t *testing.T) {
	tests := []struct {
		name    string
		concept *CodeableConcept
		want    string
	}{
		{"nil", nil, ""},
		{"empty", &CodeableConcept{}, ""},
		{"text wins", &CodeableConcept{Text: "Body weight", Coding: []Coding{{Code: "29463-7", Display: "Weight"}}}, "Body weight"},
		{"display", &CodeableConcept{Coding: []Coding{{Code: "29463-7", Display: "Weight"}}}, "Weight"},
		{"code", &CodeableConcept{Coding: []Coding{{Code: "29463-7"}}}, "29463-7"},
		{"only first coding", &CodeableConcept{Coding: []Coding{{System: "x"}, {Display: "second"}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeableConceptDisplay(tt.concept); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPrefixReference(t *testing.T) {
	tests := []struct {
		kind, value, want string
	}{
		{"Patient", "123", "Patient/123"},
		{"Patient", "Patient/123", "Patient/123"},
		{"Practitioner", "Practitioner/abc", "Practitioner/abc"},
		{"Patient", "urn:uuid:6f1c", "urn:uuid:6f1c"},
		{"Patient", "#contained", "#contained"},
		{"Patient", "", ""},
		{"Patient", "  7 ", "Patient/7"},
	}
	for _, tt := range tests {
		if got := PrefixReference(tt.kind, tt.value); got != tt.want {
			t.Errorf("PrefixReference(%q, %q): expected %q, got %q", tt.kind, tt.value, tt.want, got)
		}
	}

	once := PrefixReference("Patient", "123")
	if twice := PrefixReference("Patient", once); twice != once {
		t.Errorf("expected prefixing to be idempotent, got %q then %q", once, twice)
	}
}

func TestPeriodDisplay(t *testing.T) {
	both := PeriodDisplay(&Period{Start: "2020-01-01", End: "2020-02-01"})
	if !strings.Contains(both, "2020-01-01") || !strings.Contains(both, "2020-02-01") || !strings.Contains(both, " - ") {
		t.Errorf("expected both endpoints joined by ' - ', got %q", both)
	}
	if got := PeriodDisplay(&Period{Start: "2020-01-01"}); !strings.HasPrefix(got, "From ") {
		t.Errorf("expected 'From ' prefix, got %q", got)
	}
	if got := PeriodDisplay(&Period{End: "2020-02-01"}); got != "Until 2020-02-01" {
		t.Errorf("expected 'Until 2020-02-01', got %q", got)
	}
	if got := PeriodDisplay(&Period{}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := PeriodDisplay(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
}

func TestPeriodDisplayWith_FormatsEndpoints(t *testing.T) {
	got := PeriodDisplayWith(&Period{Start: "a", End: "b"}, strings.ToUpper)
	if got != "A - B" {
		t.Errorf("expected 'A - B', got %q", got)
	}
}

func TestQuantityDisplay(t *testing.T) {
	v := 72.5
	if got := QuantityDisplay(&Quantity{Value: &v, Unit: "kg"}); got != "72.5 kg" {
		t.Errorf("expected '72.5 kg', got %q", got)
	}
	if got := QuantityDisplay(&Quantity{Value: &v, Code: "kg"}); got != "72.5 kg" {
		t.Errorf("expected code fallback, got %q", got)
	}
	if got := QuantityDisplay(&Quantity{Value: &v}); got != "72.5" {
		t.Errorf("expected trimmed value, got %q", got)
	}
	if got := QuantityDisplay(nil); got != "" {
		t.Errorf("expected empty for nil, got %q", got)
	}
}

func TestRangeDisplay(t *testing.T) {
	lo, hi := 1.0, 5.0
	low := &Quantity{Value: &lo, Unit: "mg"}
	high := &Quantity{Value: &hi, Unit: "mg"}

	if got := RangeDisplay(&Range{Low: low, High: high}); got != "1 mg - 5 mg" {
		t.Errorf("expected '1 mg - 5 mg', got %q", got)
	}
	if got := RangeDisplay(&Range{Low: low}); got != "≥ 1 mg" {
		t.Errorf("expected '≥ 1 mg', got %q", got)
	}
	if got := RangeDisplay(&Range{High: high}); got != "≤ 5 mg" {
		t.Errorf("expected '≤ 5 mg', got %q", got)
	}
	if got := RangeDisplay(&Range{}); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestReferenceDisplay(t *testing.T) {
	if got := ReferenceDisplay(&Reference{Reference: "Patient/1", Display: "Jane"}); got != "Patient/1" {
		t.Errorf("expected reference, got %q", got)
	}
	if got := ReferenceDisplay(&Reference{Display: "Jane"}); got != "Jane" {
		t.Errorf("expected display fallback, got %q", got)
	}
}

func TestLayoutFormatter(t *testing.T) {
	f := NewLayoutFormatter()

	if got := f.FormatDate("1980-01-15"); got != "Jan 15, 1980" {
		t.Errorf("expected 'Jan 15, 1980', got %q", got)
	}
	if got := f.FormatDateTime("2024-03-01T09:30:00Z"); got != "Mar 1, 2024 09:30" {
		t.Errorf("expected 'Mar 1, 2024 09:30', got %q", got)
	}
	if got := f.FormatDateTime("2024-03-01"); got != "Mar 1, 2024" {
		t.Errorf("expected date-only fallback, got %q", got)
	}
	for _, in := range []string{"2020", "2020-05", "not a date"} {
		if got := f.FormatDate(in); got == "" {
			t.Errorf("expected non-empty output for %q", in)
		}
	}
	if got := f.FormatDate(""); got != "" {
		t.Errorf("expected empty output for empty input, got %q", got)
	}
}
