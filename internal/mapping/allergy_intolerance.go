package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

const (
	SystemAllergyClinical     = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
	SystemAllergyVerification = "http://terminology.hl7.org/CodeSystem/allergyintolerance-verification"
)

func allergyIntoleranceEntry() Entry {
	return Entry{
		Required: []string{"identifier", "code", "codeDisplay", "patient"},
		Defaults: FormState{
			"identifier":         "",
			"clinicalStatus":     "active",
			"verificationStatus": "confirmed",
			"type":               "allergy",
			"category":           "food",
			"criticality":        "low",
			"codeSystem":         SystemSNOMED,
			"code":               "",
			"codeDisplay":        "",
			"patient":            "",
			"onsetDateTime":      "",
			"note":               "",
		},
		Extract: extractAllergyIntolerance,
		ToForm:  allergyIntoleranceForm,
		Build:   buildAllergyIntolerance,
	}
}

func allergyIntoleranceForm(doc fhir.Document) FormState {
	code := codingOf(doc, "code", SystemSNOMED, false)
	category := ""
	if list := doc.Strings("category"); len(list) > 0 {
		category = list[0]
	}
	return FormState{
		"identifier":         firstIdentifier(doc),
		"clinicalStatus":     codingOf(doc, "clinicalStatus", "", true).Code,
		"verificationStatus": codingOf(doc, "verificationStatus", "", true).Code,
		"type":               doc.String("type"),
		"category":           category,
		"criticality":        doc.String("criticality"),
		"codeSystem":         code.System,
		"code":               code.Code,
		"codeDisplay":        code.Display,
		"patient":            refValue(doc, "patient"),
		"onsetDateTime":      doc.String("onsetDateTime"),
		"note":               firstNoteText(doc),
	}
}

func buildAllergyIntolerance(in *Input) (map[string]interface{}, error) {
	ai := map[string]interface{}{
		"resourceType": "AllergyIntolerance",
		"identifier":   identifierList("http://example.org/allergy-intolerance-ids", in.Str("identifier")),
		"code":         concept(in.Str("codeSystem"), in.Str("code"), in.Str("codeDisplay")),
	}
	put(ai, "clinicalStatus", optionalConcept("", SystemAllergyClinical, in.Str("clinicalStatus"), ""))
	put(ai, "verificationStatus", optionalConcept("", SystemAllergyVerification, in.Str("verificationStatus"), ""))
	put(ai, "type", in.Str("type"))
	if c := in.Str("category"); c != "" {
		ai["category"] = []string{c}
	}
	put(ai, "criticality", in.Str("criticality"))
	put(ai, "patient", reference("Patient", in.Str("patient")))
	put(ai, "onsetDateTime", in.Str("onsetDateTime"))
	put(ai, "note", simpleNote(in.Str("note")))
	return ai, nil
}

type allergyReaction struct {
	Substance     *fhir.CodeableConcept  `json:"substance,omitempty"`
	Manifestation []fhir.CodeableConcept `json:"manifestation,omitempty"`
	Severity      string                 `json:"severity,omitempty"`
	Onset         string                 `json:"onset,omitempty"`
}

func (r allergyReaction) label() string {
	items := make([]string, 0, len(r.Manifestation))
	for i := range r.Manifestation {
		items = append(items, fhir.CodeableConceptDisplay(&r.Manifestation[i]))
	}
	label := joinNonEmpty(", ", items...)
	if sub := fhir.CodeableConceptDisplay(r.Substance); sub != "" {
		label = joinNonEmpty(": ", sub, label)
	}
	return joinNonEmpty(" ", label, parenthesize(r.Severity))
}

func extractAllergyIntolerance(x *Extraction, doc fhir.Document) {
	code := doc.Concept("code")
	title := fhir.CodeableConceptDisplay(code)
	if title == "" {
		title = "Allergy"
	}
	x.SetTitle(title)
	crit := doc.String("criticality")
	if crit != "" {
		crit = "Criticality: " + crit
	}
	x.Describe(fhir.CodeableConceptDisplay(doc.Concept("clinicalStatus")), crit)

	x.Group("Allergy Details", func(g *Group) {
		g.Concept("code", "Substance", code)
		g.Concept("clinicalStatus", "Clinical Status", doc.Concept("clinicalStatus"))
		g.Concept("verificationStatus", "Verification Status", doc.Concept("verificationStatus"))
		g.Code("type", "Type", doc.String("type"))
		g.List("category", "Category", doc.Strings("category"))
		g.Code("criticality", "Criticality", doc.String("criticality"))
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Patient & Timeline", func(g *Group) {
		g.Ref("patient", "Patient", doc.Ref("patient"))
		g.Ref("encounter", "Encounter", doc.Ref("encounter"))
		g.DateTime("onsetDateTime", "Onset", doc.String("onsetDateTime"))
		g.Text("onsetString", "Onset", doc.String("onsetString"))
		g.DateTime("recordedDate", "Recorded", doc.String("recordedDate"))
		g.Ref("recorder", "Recorder", doc.Ref("recorder"))
		g.Ref("asserter", "Asserter", doc.Ref("asserter"))
		g.DateTime("lastOccurrence", "Last Occurrence", doc.String("lastOccurrence"))
	})
	x.Group("Reactions", func(g *Group) {
		var reactions []allergyReaction
		doc.Decode("reaction", &reactions)
		items := make([]string, 0, len(reactions))
		for _, r := range reactions {
			items = append(items, r.label())
		}
		g.List("reaction", "Reactions", items)
	})
	x.Group("Notes", func(g *Group) {
		g.List("note", "Notes", noteTexts(doc))
	})
}
