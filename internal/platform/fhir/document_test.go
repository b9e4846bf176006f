package fhir

import (
	"reflect"
	"strings"
	"testing"
)

const observationJSON = `{
  "resourceType": "Observation",
  "id": "obs-1",
  "meta": {"versionId": "2", "lastUpdated": "2024-01-01T00:00:00Z"},
  "status": "final",
  "code": {"coding": [{"system": "http://loinc.org", "code": "29463-7", "display": "Body weight"}]},
  "subject": {"reference": "Patient/p1"},
  "valueQuantity": {"value": 72.5, "unit": "kg"},
  "hasMember": [{"reference": "Observation/obs-2"}, {"reference": "Observation/obs-1"}],
  "performer": [{"reference": "Practitioner/pr1"}, {"reference": "Patient/p1"}],
  "issued": 12
}`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(observationJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ResourceType() != "Observation" {
		t.Errorf("expected Observation, got %q", doc.ResourceType())
	}
	if doc.ID() != "obs-1" {
		t.Errorf("expected obs-1, got %q", doc.ID())
	}
	if m := doc.Meta(); m == nil || m.VersionID != "2" {
		t.Errorf("expected meta.versionId 2, got %+v", m)
	}
}

func TestParseDocument_RejectsNonObject(t *testing.T) {
	if _, err := ParseDocument([]byte(`[1,2]`)); err == nil {
		t.Error("expected error for array payload")
	}
	if _, err := ParseDocument([]byte(`null`)); err == nil {
		t.Error("expected error for null payload")
	}
}

func TestDocument_TypedAccessors(t *testing.T) {
	doc, _ := ParseDocument([]byte(observationJSON))

	if c := doc.Concept("code"); CodeableConceptDisplay(c) != "Body weight" {
		t.Errorf("expected Body weight, got %q", CodeableConceptDisplay(c))
	}
	if r := doc.Ref("subject"); r == nil || r.Reference != "Patient/p1" {
		t.Errorf("expected subject Patient/p1, got %+v", r)
	}
	if q := doc.Quantity("valueQuantity"); QuantityDisplay(q) != "72.5 kg" {
		t.Errorf("expected '72.5 kg', got %q", QuantityDisplay(q))
	}
	if got := doc.String("issued"); got != "12" {
		t.Errorf("expected number rendered as '12', got %q", got)
	}
	if n, ok := doc.Number("issued"); !ok || n != 12 {
		t.Errorf("expected number 12, got %v %v", n, ok)
	}
}

func TestDocument_AbsentAndMisshapenFields(t *testing.T) {
	doc := Document{"resourceType": "Patient", "name": "not-a-list", "active": "yes"}

	if doc.Names() != nil {
		t.Error("expected nil names for a misshapen value")
	}
	if doc.Concept("maritalStatus") != nil {
		t.Error("expected nil concept for an absent field")
	}
	if _, ok := doc.Bool("active"); ok {
		t.Error("expected Bool to reject a string value")
	}
	if doc.Has("gender") {
		t.Error("expected Has to be false for an absent field")
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc, _ := ParseDocument([]byte(observationJSON))
	clone := doc.Clone()
	clone["code"].(map[string]interface{})["text"] = "changed"
	clone["status"] = "amended"

	if doc.String("status") != "final" {
		t.Error("expected original status to stay final")
	}
	if _, ok := doc.Object("code")["text"]; ok {
		t.Error("expected original code to stay untouched")
	}
}

func TestDocument_References(t *testing.T) {
	doc, _ := ParseDocument([]byte(observationJSON))
	got := doc.References()
	want := []string{"Observation/obs-2", "Patient/p1", "Practitioner/pr1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseDocument_KeepsNumbersExact(t *testing.T) {
	raw := `{"resourceType":"Basic","valueDecimal":1.50,"valueInteger64":9007199254740993}`
	doc, err := ParseDocument([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := doc.String("valueDecimal"); got != "1.50" {
		t.Errorf("expected 1.50, got %q", got)
	}
	if got := doc.String("valueInteger64"); got != "9007199254740993" {
		t.Errorf("expected 9007199254740993, got %q", got)
	}
	if n, ok := doc.Number("valueDecimal"); !ok || n != 1.5 {
		t.Errorf("expected 1.5 as a number, got %v %v", n, ok)
	}

	clone := doc.Clone()
	if clone.String("valueInteger64") != "9007199254740993" || clone.String("valueDecimal") != "1.50" {
		t.Errorf("clone changed numbers: %v", clone)
	}
	if got := CompactJSON(map[string]interface{}(clone)); !strings.Contains(got, `"valueDecimal":1.50`) || !strings.Contains(got, `9007199254740993`) {
		t.Errorf("re-encoding changed numbers: %s", got)
	}
}

func TestParseDocument_RejectsTrailingData(t *testing.T) {
	if _, err := ParseDocument([]byte(`{"resourceType":"Basic"} {}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}
