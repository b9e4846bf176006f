package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func medicationStatementEntry() Entry {
	return Entry{
		Required: []string{"identifier", "status", "medicationCode", "medicationDisplay", "subject"},
		Defaults: FormState{
			"identifier":           "",
			"status":               "active",
			"medicationCodeSystem": SystemRxNorm,
			"medicationCode":       "",
			"medicationDisplay":    "",
			"subject":              "",
			"effectiveDateTime":    "",
			"dosage":               "",
		},
		Extract: extractMedicationStatement,
		ToForm:  medicationStatementForm,
		Build:   buildMedicationStatement,
	}
}

type dosage struct {
	Text  string                `json:"text,omitempty"`
	Route *fhir.CodeableConcept `json:"route,omitempty"`
}

func medicationStatementForm(doc fhir.Document) FormState {
	med := codingOf(doc, "medicationCodeableConcept", SystemRxNorm, false)
	form := FormState{
		"identifier":           firstIdentifier(doc),
		"status":               doc.String("status"),
		"medicationCodeSystem": med.System,
		"medicationCode":       med.Code,
		"medicationDisplay":    med.Display,
		"subject":              refValue(doc, "subject"),
		"effectiveDateTime":    doc.String("effectiveDateTime"),
		"dosage":               "",
	}
	var dosages []dosage
	if doc.Decode("dosage", &dosages) && len(dosages) > 0 {
		form["dosage"] = dosages[0].Text
	}
	return form
}

func buildMedicationStatement(in *Input) (map[string]interface{}, error) {
	ms := map[string]interface{}{
		"resourceType":              "MedicationStatement",
		"identifier":                identifierList("http://example.org/medication-statement-ids", in.Str("identifier")),
		"status":                    in.Str("status"),
		"medicationCodeableConcept": concept(in.Str("medicationCodeSystem"), in.Str("medicationCode"), in.Str("medicationDisplay")),
	}
	put(ms, "subject", reference("Patient", in.Str("subject")))
	put(ms, "effectiveDateTime", in.Str("effectiveDateTime"))
	if text := in.Str("dosage"); text != "" {
		ms["dosage"] = []dosage{{Text: text}}
	}
	return ms, nil
}

func extractMedicationStatement(x *Extraction, doc fhir.Document) {
	med := doc.Concept("medicationCodeableConcept")
	title := fhir.CodeableConceptDisplay(med)
	if title == "" {
		title = fhir.ReferenceDisplay(doc.Ref("medicationReference"))
	}
	if title == "" {
		title = "Medication Statement"
	}
	x.SetTitle(title)
	x.Describe(doc.String("status"))

	x.Group("Medication", func(g *Group) {
		g.Concept("medicationCodeableConcept", "Medication", med)
		g.Ref("medicationReference", "Medication", doc.Ref("medicationReference"))
		g.Code("status", "Status", doc.String("status"))
		g.Concept("category", "Category", doc.Concept("category"))
	})
	x.Group("Subject & Context", func(g *Group) {
		g.Ref("subject", "Subject", doc.Ref("subject"))
		g.Ref("context", "Context", doc.Ref("context"))
		g.DateTime("effectiveDateTime", "Effective Date", doc.String("effectiveDateTime"))
		g.Period("effectivePeriod", "Effective Period", doc.Period("effectivePeriod"))
		g.DateTime("dateAsserted", "Date Asserted", doc.String("dateAsserted"))
		g.Ref("informationSource", "Information Source", doc.Ref("informationSource"))
	})
	x.Group("Dosage", func(g *Group) {
		var dosages []dosage
		doc.Decode("dosage", &dosages)
		items := make([]string, 0, len(dosages))
		for _, d := range dosages {
			items = append(items, joinNonEmpty(" ", d.Text, parenthesize(fhir.CodeableConceptDisplay(d.Route))))
		}
		g.List("dosage", "Dosage", items)
	})
	x.Group("Reasons", func(g *Group) {
		g.Concepts("reasonCode", "Reason", doc.Concepts("reasonCode"))
		g.Refs("reasonReference", "Reason Reference", doc.Refs("reasonReference"))
	})
	x.Group("Notes", func(g *Group) {
		g.List("note", "Notes", noteTexts(doc))
	})
}
