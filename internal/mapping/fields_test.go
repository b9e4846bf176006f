package mapping

import (
	"reflect"
	"strings"
	"testing"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func TestExtractFields_Patient(t *testing.T) {
	m := newTestMapper()
	doc := mustParse(t, `{
	  "resourceType": "Patient",
	  "id": "p1",
	  "meta": {"versionId": "4"},
	  "active": true,
	  "identifier": [{"system": "urn:mrn", "value": "MRN-1"}],
	  "name": [{"prefix": ["Mr."], "given": ["John", "Q"], "family": "Public"}],
	  "gender": "male",
	  "birthDate": "1980-01-15",
	  "telecom": [{"system": "phone", "value": "555-1212", "use": "home"}],
	  "address": [{"line": ["1 Main St"], "city": "Springfield", "state": "IL", "postalCode": "62701"}],
	  "communication": [{"language": {"text": "English"}, "preferred": true}],
	  "managingOrganization": {"reference": "Organization/o1", "display": "Acme"}
	}`)

	set := m.ExtractFields(doc)
	if set.Title != "Mr. John Q Public" {
		t.Errorf("unexpected title %q", set.Title)
	}
	if set.Description != "Gender: male • DOB: Jan 15, 1980" {
		t.Errorf("unexpected description %q", set.Description)
	}
	if set.ID != "p1" || set.Meta == nil || set.Meta.VersionID != "4" {
		t.Errorf("expected id and meta carried, got %q %+v", set.ID, set.Meta)
	}
	if set.Raw != "" {
		t.Error("mapped types should not carry the raw document")
	}

	var titles []string
	for _, g := range set.Groups {
		titles = append(titles, g.Title)
	}
	want := []string{"Demographics", "Identifiers", "Contact Information", "Communication Preferences", "Related Records"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("groups = %v, want %v", titles, want)
	}

	demo := set.Group("Demographics")
	if f := demo.Field("birthDate"); f == nil || f.Type != FieldDate || f.Value != "Jan 15, 1980" {
		t.Errorf("unexpected birthDate field %+v", f)
	}
	if f := demo.Field("active"); f == nil || f.Type != FieldBoolean || f.Value != "true" {
		t.Errorf("unexpected active field %+v", f)
	}
	if f := set.Group("Identifiers").Field("identifier"); f == nil || f.Items[0] != "urn:mrn: MRN-1" {
		t.Errorf("unexpected identifier field %+v", f)
	}
	if f := set.Group("Contact Information").Field("address"); f == nil || f.Items[0] != "1 Main St, Springfield, IL 62701" {
		t.Errorf("unexpected address field %+v", f)
	}
	if f := set.Group("Communication Preferences").Field("communication"); f == nil || f.Items[0] != "English (preferred)" {
		t.Errorf("unexpected communication field %+v", f)
	}
	if f := set.Group("Related Records").Field("managingOrganization"); f == nil || f.Value != "Acme (Organization/o1)" {
		t.Errorf("unexpected managingOrganization field %+v", f)
	}
}

func TestExtractFields_OmitsAbsentFields(t *testing.T) {
	m := newTestMapper()
	set := m.ExtractFields(fhir.Document{"resourceType": "Patient", "id": "p2"})

	if set.Title != "Unnamed Patient" {
		t.Errorf("unexpected title %q", set.Title)
	}
	if len(set.Groups) != 0 {
		t.Errorf("expected no groups for an empty patient, got %+v", set.Groups)
	}
}

func TestExtractFields_MalformedFieldsDegrade(t *testing.T) {
	m := newTestMapper()
	doc := fhir.Document{
		"resourceType": "Patient",
		"name":         "not-a-list",
		"telecom":      42,
		"gender":       "female",
	}
	set := m.ExtractFields(doc)
	if set.Title != "Unnamed Patient" {
		t.Errorf("unexpected title %q", set.Title)
	}
	demo := set.Group("Demographics")
	if demo == nil || len(demo.Fields) != 1 || demo.Fields[0].Key != "gender" {
		t.Errorf("expected only gender to survive, got %+v", demo)
	}
}

func TestExtractFields_ObservationNoValueLabel(t *testing.T) {
	m := newTestMapper()
	set := m.ExtractFields(fhir.Document{
		"resourceType": "Observation",
		"status":       "registered",
		"code":         map[string]interface{}{"text": "Glucose"},
	})
	if set.Title != "Glucose" || set.Description != "No value" {
		t.Errorf("unexpected summary %q / %q", set.Title, set.Description)
	}
	f := set.Group("Value & Results").Field("value")
	if f == nil || f.Value != "No value recorded" {
		t.Errorf("expected no-value label, got %+v", f)
	}
}

func TestExtractFields_ObservationValueAndRange(t *testing.T) {
	m := newTestMapper()
	doc := mustParse(t, `{
	  "resourceType": "Observation",
	  "code": {"coding": [{"system": "http://loinc.org", "code": "2339-0", "display": "Glucose"}]},
	  "valueQuantity": {"value": 95, "unit": "mg/dL"},
	  "referenceRange": [{"low": {"value": 70, "unit": "mg/dL"}, "high": {"value": 99, "unit": "mg/dL"}}]
	}`)
	set := m.ExtractFields(doc)
	results := set.Group("Value & Results")
	if f := results.Field("valueQuantity"); f == nil || f.Value != "95 mg/dL" {
		t.Errorf("unexpected value %+v", f)
	}
	if f := results.Field("referenceRange"); f == nil || f.Value != "70 mg/dL - 99 mg/dL" {
		t.Errorf("unexpected range %+v", f)
	}
	if set.Description != "95 mg/dL" {
		t.Errorf("unexpected description %q", set.Description)
	}
}

func TestExtractFields_GenericKeyFields(t *testing.T) {
	m := newTestMapper()
	doc := mustParse(t, `{
	  "resourceType": "CarePlan",
	  "id": "cp1",
	  "meta": {"versionId": "1", "lastUpdated": "2024-02-03T04:05:06Z"},
	  "status": "active",
	  "category": [{"text": "Assessment"}, {"coding": [{"code": "x"}]}],
	  "subject": {"reference": "Patient/p1"},
	  "author": {"display": "Dr. Who"},
	  "name": ["a", "b"],
	  "created": "2024-01-01"
	}`)
	set := m.ExtractFields(doc)

	if set.Title != "CarePlan #cp1" || set.Description != "CarePlan resource" {
		t.Errorf("unexpected summary %q / %q", set.Title, set.Description)
	}
	if set.Raw == "" {
		t.Error("expected raw document for an unmapped type")
	}
	res := set.Group("Resource")
	if f := res.Field("lastUpdated"); f == nil || f.Value != "Feb 3, 2024 04:05" {
		t.Errorf("unexpected lastUpdated %+v", f)
	}

	keys := set.Group("Key Fields")
	if keys == nil {
		t.Fatal("expected Key Fields group")
	}
	var order []string
	for _, f := range keys.Fields {
		order = append(order, f.Key)
	}
	if want := []string{"status", "name", "subject", "category", "author"}; !reflect.DeepEqual(order, want) {
		t.Errorf("key field order %v, want %v", order, want)
	}
	checks := map[string]string{
		"status":   "active",
		"name":     "2 items",
		"subject":  "Patient/p1",
		"category": "Assessment, x",
		"author":   "Dr. Who",
	}
	for key, want := range checks {
		if f := keys.Field(key); f == nil || f.Value != want {
			t.Errorf("%s: got %+v, want %q", key, f, want)
		}
	}
	if f := keys.Field("subject"); f.Type != FieldReference {
		t.Errorf("expected reference type for subject, got %s", f.Type)
	}
}

func TestExtractFields_CoverageTitleFallbacks(t *testing.T) {
	m := newTestMapper()
	cases := []struct {
		doc   fhir.Document
		title string
		desc  string
	}{
		{
			doc:   fhir.Document{"resourceType": "Coverage", "type": map[string]interface{}{"text": "Dental"}},
			title: "Dental",
			desc:  "Coverage details",
		},
		{
			doc: fhir.Document{
				"resourceType": "Coverage",
				"status":       "active",
				"payor":        []interface{}{map[string]interface{}{"reference": "Organization/o1", "display": "Acme Insurance"}},
				"beneficiary":  map[string]interface{}{"reference": "Patient/p1", "display": "Jane Doe"},
			},
			title: "Coverage by Acme Insurance",
			desc:  "Status: active • Beneficiary: Jane Doe",
		},
		{
			doc:   fhir.Document{"resourceType": "Coverage"},
			title: "Coverage #Unknown",
			desc:  "Coverage details",
		},
	}
	for _, tc := range cases {
		set := m.ExtractFields(tc.doc)
		if set.Title != tc.title || set.Description != tc.desc {
			t.Errorf("got %q / %q, want %q / %q", set.Title, set.Description, tc.title, tc.desc)
		}
	}
}

func TestExtractFields_EveryMappedTypeFromBuiltResource(t *testing.T) {
	m := newTestMapper()
	for rt, form := range roundTripForms {
		doc, err := m.ToResource(rt, form, ModeCreate, nil)
		if err != nil {
			t.Fatalf("%s: %v", rt, err)
		}
		set := m.ExtractFields(doc)
		if set.ResourceType != rt || set.Title == "" {
			t.Errorf("%s: unexpected field set %+v", rt, set)
		}
		if len(set.Groups) == 0 {
			t.Errorf("%s: expected at least one group", rt)
		}
		for _, g := range set.Groups {
			for _, f := range g.Fields {
				if strings.TrimSpace(f.Value) == "" && len(f.Items) == 0 {
					t.Errorf("%s: empty field %s in %s", rt, f.Key, g.Title)
				}
			}
		}
	}
}

func TestFormState_Accessors(t *testing.T) {
	f := FormState{"a": "x", "b": true, "c": 2.5, "d": "TRUE", "e": 3}
	if f.String("b") != "true" || f.String("c") != "2.5" || f.String("e") != "3" || f.String("missing") != "" {
		t.Errorf("unexpected string rendering: %q %q %q", f.String("b"), f.String("c"), f.String("e"))
	}
	if !f.Bool("b") || !f.Bool("d") || f.Bool("a") {
		t.Error("unexpected bool rendering")
	}

	filled := FormState{"a": ""}.withDefaults(FormState{"a": "default", "b": "other"})
	if filled.String("a") != "" || filled.String("b") != "other" {
		t.Errorf("withDefaults should only fill absent keys, got %v", filled)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Edit "); err != nil || m != ModeEdit {
		t.Errorf("expected edit, got %q (%v)", m, err)
	}
	if _, err := ParseMode("delete"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
