package mapping

import (
	"fmt"
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// keyField is one commonly meaningful top-level element the generic
// extractor looks for on resources without a dedicated mapping.
type keyField struct {
	Key   string
	Label string
	Type  FieldType
}

var keyFields = []keyField{
	{"status", "Status", FieldCode},
	{"active", "Active", FieldBoolean},
	{"name", "Name", FieldText},
	{"code", "Code", FieldCode},
	{"subject", "Subject", FieldReference},
	{"patient", "Patient", FieldReference},
	{"encounter", "Encounter", FieldReference},
	{"effectiveDateTime", "Effective Date", FieldDate},
	{"performedDateTime", "Performed Date", FieldDate},
	{"authoredOn", "Authored On", FieldDate},
	{"recordedDate", "Recorded Date", FieldDate},
	{"date", "Date", FieldDate},
	{"category", "Category", FieldCode},
	{"type", "Type", FieldCode},
	{"performer", "Performer", FieldReference},
	{"requester", "Requester", FieldReference},
	{"author", "Author", FieldReference},
}

func fallbackEntry() *Entry {
	return &Entry{
		Required: []string{"resourceJson"},
		Defaults: FormState{"resourceJson": ""},
		Extract:  extractGeneric,
		ToForm: func(doc fhir.Document) FormState {
			return FormState{"resourceJson": doc.Pretty()}
		},
		Build: buildFromJSON,
	}
}

// buildFromJSON parses the raw JSON field. A missing resourceType is filled
// in; a different one is rejected.
func buildFromJSON(in *Input) (map[string]interface{}, error) {
	raw := strings.TrimSpace(in.Str("resourceJson"))
	if raw == "" {
		return nil, nil
	}
	doc, err := fhir.ParseDocument([]byte(raw))
	if err != nil {
		in.Fail(&FieldError{Field: "resourceJson", Err: ErrInvalidJSONPayload, Detail: err.Error()})
		return nil, nil
	}
	want := in.ResourceType()
	switch got := doc.ResourceType(); {
	case got == "" && want != "":
		doc["resourceType"] = want
	case want != "" && got != want:
		in.Fail(&FieldError{
			Field:  "resourceJson",
			Err:    ErrInvalidJSONPayload,
			Detail: fmt.Sprintf("resourceType %q does not match %q", got, want),
		})
		return nil, nil
	}
	return map[string]interface{}(doc), nil
}

func extractGeneric(x *Extraction, doc fhir.Document) {
	rt := doc.ResourceType()
	x.SetTitle(defaultTitle(rt, doc.ID()))
	if rt != "" {
		x.Describe(rt + " resource")
	}

	x.Group("Resource", func(g *Group) {
		g.Text("id", "ID", doc.ID())
		if meta := doc.Meta(); meta != nil {
			g.Text("versionId", "Version ID", meta.VersionID)
			g.DateTime("lastUpdated", "Last Updated", meta.LastUpdated)
			g.List("profile", "Profiles", meta.Profile)
		}
	})
	x.Group("Key Fields", func(g *Group) {
		for _, f := range keyFields {
			v, ok := doc[f.Key]
			if !ok || v == nil {
				continue
			}
			g.add(Field{Key: f.Key, Label: f.Label, Type: f.Type, Value: formatKeyField(f.Type, v, g.dates)})
		}
	})
}

// formatKeyField renders a raw JSON value according to its declared type.
func formatKeyField(t FieldType, v interface{}, dates fhir.DateFormatter) string {
	switch t {
	case FieldBoolean:
		if b, ok := v.(bool); ok {
			return fmt.Sprint(b)
		}
	case FieldDate:
		if s, ok := v.(string); ok {
			return dates.FormatDateTime(s)
		}
	case FieldCode:
		return eachJoined(v, func(item interface{}) string {
			return fhir.CodeableConceptDisplay(fhir.Document{"v": item}.Concept("v"))
		})
	case FieldReference:
		return eachJoined(v, func(item interface{}) string {
			r := fhir.Document{"v": item}.Ref("v")
			switch {
			case r != nil && r.Reference != "":
				return r.Reference
			case r != nil && r.Display != "":
				return r.Display
			}
			return fhir.CompactJSON(item)
		})
	case FieldText:
		switch val := v.(type) {
		case []interface{}:
			if len(val) == 0 {
				return "Empty array"
			}
			return fmt.Sprintf("%d items", len(val))
		case map[string]interface{}:
			return fhir.CompactJSON(val)
		}
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fhir.CompactJSON(v)
}

// eachJoined applies render to an object, or to every object in an array
// joining the results with ", ". Plain strings are returned unchanged.
func eachJoined(v interface{}, render func(item interface{}) string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		return render(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			switch it := item.(type) {
			case map[string]interface{}:
				parts = append(parts, render(it))
			case string:
				parts = append(parts, it)
			}
		}
		return joinNonEmpty(", ", parts...)
	}
	return fhir.CompactJSON(v)
}
