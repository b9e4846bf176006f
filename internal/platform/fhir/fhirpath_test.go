package fhir

import (
	"strings"
	"testing"
)

func TestInspector_Evaluate(t *testing.T) {
	doc := Document{
		"resourceType": "Patient",
		"id":           "p1",
		"name":         []interface{}{map[string]interface{}{"family": "Doe", "given": []interface{}{"John"}}},
	}
	in := NewInspector()

	res, err := in.Evaluate(doc, "Patient.name.family")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Values) != 1 || !strings.Contains(res.Values[0], "Doe") {
		t.Errorf("expected [Doe], got %v", res.Values)
	}
	if !res.Truthy {
		t.Error("expected non-empty result to be truthy")
	}

	res, err = in.Evaluate(doc, "Patient.birthDate")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Values) != 0 || res.Truthy {
		t.Errorf("expected empty falsy result, got %+v", res)
	}
}

func TestInspector_CachesCompiledExpressions(t *testing.T) {
	in := NewInspector()
	doc := Document{"resourceType": "Patient", "active": true}

	for i := 0; i < 3; i++ {
		if _, err := in.Evaluate(doc, "Patient.active"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if in.CacheSize() != 1 {
		t.Errorf("expected 1 cached expression, got %d", in.CacheSize())
	}
}

func TestInspector_EmptyExpression(t *testing.T) {
	if _, err := NewInspector().Evaluate(Document{}, "  "); err == nil {
		t.Error("expected error for empty expression")
	}
}
