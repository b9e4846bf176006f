package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

const (
	valueTypeQuantity = "valueQuantity"
	valueTypeString   = "valueString"
)

func observationEntry() Entry {
	return Entry{
		Required: []string{"status", "codeValue", "codeDisplay", "subjectReference"},
		Defaults: FormState{
			"status":             "final",
			"effectiveDateTime":  "",
			"codeSystem":         SystemLOINC,
			"codeValue":          "",
			"codeDisplay":        "",
			"valueType":          valueTypeQuantity,
			"valueQuantityValue": "",
			"valueQuantityUnit":  "",
			"valueStringValue":   "",
			"subjectReference":   "",
		},
		Extract: extractObservation,
		ToForm:  observationForm,
		Build:   buildObservation,
	}
}

func observationForm(doc fhir.Document) FormState {
	code := codingOf(doc, "code", SystemLOINC, false)
	status := doc.String("status")
	if status == "" {
		status = "final"
	}
	form := FormState{
		"status":             status,
		"effectiveDateTime":  doc.String("effectiveDateTime"),
		"codeSystem":         code.System,
		"codeValue":          code.Code,
		"codeDisplay":        code.Display,
		"valueType":          valueTypeQuantity,
		"valueQuantityValue": "",
		"valueQuantityUnit":  "",
		"valueStringValue":   doc.String("valueString"),
		"subjectReference":   fhir.StripReferencePrefix("Patient", refValue(doc, "subject")),
	}
	if q := doc.Quantity("valueQuantity"); q != nil {
		if q.Value != nil {
			form["valueQuantityValue"] = fhir.FormatNumber(*q.Value)
		}
		form["valueQuantityUnit"] = q.Unit
	} else if doc.Has("valueString") {
		form["valueType"] = valueTypeString
	}
	return form
}

func buildObservation(in *Input) (map[string]interface{}, error) {
	code := concept(in.Str("codeSystem"), in.Str("codeValue"), in.Str("codeDisplay"))
	code.Text = in.Str("codeDisplay")
	obs := map[string]interface{}{
		"resourceType": "Observation",
		"status":       in.Str("status"),
		"code":         code,
	}
	put(obs, "subject", reference("Patient", in.Str("subjectReference")))
	put(obs, "effectiveDateTime", in.Str("effectiveDateTime"))

	switch in.Str("valueType") {
	case valueTypeQuantity:
		if v, ok := in.Float("valueQuantityValue"); ok {
			q := &fhir.Quantity{Value: &v}
			if unit := in.Str("valueQuantityUnit"); unit != "" {
				q.Unit = unit
				q.System = SystemUCUM
				q.Code = unit
			}
			obs["valueQuantity"] = q
		}
	case valueTypeString:
		put(obs, "valueString", in.Str("valueStringValue"))
	}
	return obs, nil
}

func extractObservation(x *Extraction, doc fhir.Document) {
	code := doc.Concept("code")
	title := fhir.CodeableConceptDisplay(code)
	if title == "" {
		title = "Observation"
	}
	x.SetTitle(title)
	value := observationValue(doc)
	if value == "" {
		value = "No value"
	}
	x.Describe(value)

	x.Group("Observation Details", func(g *Group) {
		g.Code("status", "Status", doc.String("status"))
		g.Concept("code", "Code", code)
		if c := code.FirstCoding(); c != nil {
			g.Text("codeSystem", "Code System", c.System)
			g.Code("codeValue", "Code Value", c.Code)
		}
		g.Concepts("category", "Category", doc.Concepts("category"))
	})
	x.Group("Subject & Context", func(g *Group) {
		g.Ref("subject", "Subject", doc.Ref("subject"))
		g.Ref("encounter", "Encounter", doc.Ref("encounter"))
		g.DateTime("effectiveDateTime", "Effective Date", doc.String("effectiveDateTime"))
		g.Period("effectivePeriod", "Effective Period", doc.Period("effectivePeriod"))
		g.DateTime("issued", "Issued", doc.String("issued"))
	})
	x.Group("Value & Results", func(g *Group) {
		switch {
		case doc.Has("valueQuantity"):
			g.Quantity("valueQuantity", "Value", doc.Quantity("valueQuantity"))
		case doc.Has("valueCodeableConcept"):
			g.Concept("valueCodeableConcept", "Value", doc.Concept("valueCodeableConcept"))
		case doc.Has("valueString"):
			g.Text("valueString", "Value", doc.String("valueString"))
		case doc.Has("valueBoolean"):
			v, ok := doc.Bool("valueBoolean")
			g.Bool("valueBoolean", "Value", v, ok)
		case doc.Has("valueInteger"):
			g.Text("valueInteger", "Value", doc.String("valueInteger"))
		case doc.Has("valueRange"):
			g.Range("valueRange", "Value", doc.Range("valueRange"))
		case doc.Has("valueDateTime"):
			g.DateTime("valueDateTime", "Value", doc.String("valueDateTime"))
		case doc.Has("dataAbsentReason"):
			g.Text("dataAbsentReason", "Value", fhir.CodeableConceptDisplay(doc.Concept("dataAbsentReason")))
		default:
			g.Text("value", "Value", "No value recorded")
		}
		if ranges := doc.Objects("referenceRange"); len(ranges) > 0 {
			rr := ranges[0]
			label := fhir.RangeDisplay(&fhir.Range{Low: rr.Quantity("low"), High: rr.Quantity("high")})
			if label == "" {
				label = rr.String("text")
			}
			g.Text("referenceRange", "Reference Range", label)
		}
	})
	x.Group("Interpretation & Notes", func(g *Group) {
		g.Concepts("interpretation", "Interpretation", doc.Concepts("interpretation"))
		g.List("note", "Notes", noteTexts(doc))
	})
	x.Group("Performers", func(g *Group) {
		g.Refs("performer", "Performers", doc.Refs("performer"))
	})
	x.Group("Components", func(g *Group) {
		comps := doc.Objects("component")
		items := make([]string, 0, len(comps))
		for _, c := range comps {
			items = append(items, joinNonEmpty(": ", fhir.CodeableConceptDisplay(c.Concept("code")), observationValue(c)))
		}
		g.List("component", "Components", items)
	})
}

// observationValue renders whichever value[x] the observation or component
// carries.
func observationValue(doc fhir.Document) string {
	switch {
	case doc.Has("valueQuantity"):
		return fhir.QuantityDisplay(doc.Quantity("valueQuantity"))
	case doc.Has("valueCodeableConcept"):
		return fhir.CodeableConceptDisplay(doc.Concept("valueCodeableConcept"))
	case doc.Has("valueString"):
		return doc.String("valueString")
	case doc.Has("valueBoolean"), doc.Has("valueInteger"):
		if v := doc.String("valueBoolean"); v != "" {
			return v
		}
		return doc.String("valueInteger")
	case doc.Has("valueRange"):
		return fhir.RangeDisplay(doc.Range("valueRange"))
	}
	return ""
}
