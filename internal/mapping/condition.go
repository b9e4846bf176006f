package mapping

import (
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

const (
	SystemConditionClinical     = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemConditionVerification = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	SystemConditionCategory     = "http://terminology.hl7.org/CodeSystem/condition-category"
)

func conditionEntry() Entry {
	return Entry{
		Required: []string{"clinicalStatus", "verificationStatus", "codeValue", "codeDisplay", "subjectReference"},
		Defaults: FormState{
			"clinicalStatus":     "active",
			"verificationStatus": "confirmed",
			"category":           "problem-list-item",
			"severity":           "",
			"codeSystem":         SystemSNOMED,
			"codeValue":          "",
			"codeDisplay":        "",
			"subjectReference":   "",
			"onsetType":          "onsetDateTime",
			"onsetDateTime":      "",
			"onsetString":        "",
			"onsetAgeValue":      "",
			"onsetAgeUnit":       "years",
			"abatementType":      "",
			"abatementDateTime":  "",
			"abatementString":    "",
			"abatementBoolean":   false,
			"recordedDate":       "",
			"recorderReference":  "",
			"asserterReference":  "",
			"bodySiteSystem":     "",
			"bodySiteCode":       "",
			"bodySiteDisplay":    "",
			"notes":              "",
		},
		Extract: extractCondition,
		ToForm:  conditionForm,
		Build:   buildCondition,
	}
}

func codeOr(c flatCoding, fallback string) string {
	if c.Code == "" {
		return fallback
	}
	return c.Code
}

func conditionForm(doc fhir.Document) FormState {
	code := codingOf(doc, "code", SystemSNOMED, false)
	bodySite := codingOfFirst(doc, "bodySite", SystemSNOMED, true)
	form := FormState{
		"clinicalStatus":     codeOr(codingOf(doc, "clinicalStatus", "", true), "active"),
		"verificationStatus": codeOr(codingOf(doc, "verificationStatus", "", true), "confirmed"),
		"category":           codeOr(codingOfFirst(doc, "category", "", true), "problem-list-item"),
		"severity":           codingOf(doc, "severity", "", true).Code,
		"codeSystem":         code.System,
		"codeValue":          code.Code,
		"codeDisplay":        code.Display,
		"subjectReference":   fhir.StripReferencePrefix("Patient", refValue(doc, "subject")),
		"onsetType":          "onsetDateTime",
		"onsetDateTime":      doc.String("onsetDateTime"),
		"onsetString":        doc.String("onsetString"),
		"onsetAgeValue":      "",
		"onsetAgeUnit":       "years",
		"abatementType":      "",
		"abatementDateTime":  doc.String("abatementDateTime"),
		"abatementString":    doc.String("abatementString"),
		"abatementBoolean":   false,
		"recordedDate":       doc.String("recordedDate"),
		"recorderReference":  refValue(doc, "recorder"),
		"asserterReference":  refValue(doc, "asserter"),
		"bodySiteSystem":     bodySite.System,
		"bodySiteCode":       bodySite.Code,
		"bodySiteDisplay":    bodySite.Display,
		"notes":              firstNoteText(doc),
	}

	switch {
	case doc.Has("onsetDateTime"):
	case doc.Has("onsetString"):
		form["onsetType"] = "onsetString"
	case doc.Has("onsetAge"):
		form["onsetType"] = "onsetAge"
	}
	if age := doc.Quantity("onsetAge"); age != nil {
		if age.Value != nil {
			form["onsetAgeValue"] = fhir.FormatNumber(*age.Value)
		}
		if age.Unit != "" {
			form["onsetAgeUnit"] = age.Unit
		}
	}

	switch {
	case doc.Has("abatementDateTime"):
		form["abatementType"] = "abatementDateTime"
	case doc.Has("abatementString"):
		form["abatementType"] = "abatementString"
	case doc.Has("abatementBoolean"):
		form["abatementType"] = "abatementBoolean"
		form["abatementBoolean"], _ = doc.Bool("abatementBoolean")
	}
	return form
}

func buildCondition(in *Input) (map[string]interface{}, error) {
	code := concept(in.Str("codeSystem"), in.Str("codeValue"), in.Str("codeDisplay"))
	code.Text = in.Str("codeDisplay")
	cond := map[string]interface{}{
		"resourceType":       "Condition",
		"clinicalStatus":     concept(SystemConditionClinical, in.Str("clinicalStatus"), ""),
		"verificationStatus": concept(SystemConditionVerification, in.Str("verificationStatus"), ""),
		"code":               code,
	}
	put(cond, "subject", reference("Patient", in.Str("subjectReference")))

	if category := in.Str("category"); category != "" {
		cond["category"] = conceptList(concept(SystemConditionCategory, category, strings.ReplaceAll(category, "-", " ")))
	}
	put(cond, "severity", optionalConcept("", SystemSNOMED, in.Str("severity"), ""))

	switch in.Str("onsetType") {
	case "onsetDateTime":
		put(cond, "onsetDateTime", in.Str("onsetDateTime"))
	case "onsetString":
		put(cond, "onsetString", in.Str("onsetString"))
	case "onsetAge":
		if v, ok := in.Float("onsetAgeValue"); ok {
			unit := in.Str("onsetAgeUnit")
			ucum := unit
			if unit == "years" {
				ucum = "a"
			}
			cond["onsetAge"] = &fhir.Quantity{Value: &v, Unit: unit, System: SystemUCUM, Code: ucum}
		}
	}

	switch in.Str("abatementType") {
	case "abatementDateTime":
		put(cond, "abatementDateTime", in.Str("abatementDateTime"))
	case "abatementString":
		put(cond, "abatementString", in.Str("abatementString"))
	case "abatementBoolean":
		cond["abatementBoolean"] = in.Bool("abatementBoolean")
	}

	put(cond, "recordedDate", in.Str("recordedDate"))
	put(cond, "recorder", reference("Practitioner", in.Str("recorderReference")))
	put(cond, "asserter", reference("Practitioner", in.Str("asserterReference")))
	put(cond, "bodySite", conceptList(optionalConcept(in.Str("bodySiteSystem"), SystemSNOMED, in.Str("bodySiteCode"), in.Str("bodySiteDisplay"))))
	put(cond, "note", note(in, in.Str("notes")))
	return cond, nil
}

func extractCondition(x *Extraction, doc fhir.Document) {
	code := doc.Concept("code")
	title := fhir.CodeableConceptDisplay(code)
	if title == "" {
		title = "Condition"
	}
	x.SetTitle(title)
	status := fhir.CodeableConceptDisplay(doc.Concept("clinicalStatus"))
	if status == "" {
		status = "Unknown status"
	}
	x.Describe(status)

	x.Group("Condition Details", func(g *Group) {
		g.Concept("code", "Condition", code)
		g.Concept("clinicalStatus", "Clinical Status", doc.Concept("clinicalStatus"))
		g.Concept("verificationStatus", "Verification Status", doc.Concept("verificationStatus"))
		g.Concepts("category", "Category", doc.Concepts("category"))
		g.Concept("severity", "Severity", doc.Concept("severity"))
	})
	x.Group("Timeline", func(g *Group) {
		g.DateTime("onsetDateTime", "Onset", doc.String("onsetDateTime"))
		g.Text("onsetString", "Onset", doc.String("onsetString"))
		g.Quantity("onsetAge", "Onset Age", doc.Quantity("onsetAge"))
		g.Period("onsetPeriod", "Onset Period", doc.Period("onsetPeriod"))
		g.DateTime("abatementDateTime", "Abatement", doc.String("abatementDateTime"))
		g.Text("abatementString", "Abatement", doc.String("abatementString"))
		abated, ok := doc.Bool("abatementBoolean")
		g.Bool("abatementBoolean", "Abated", abated, ok)
		g.DateTime("recordedDate", "Recorded Date", doc.String("recordedDate"))
	})
	x.Group("Clinical Context", func(g *Group) {
		g.Ref("subject", "Subject", doc.Ref("subject"))
		g.Ref("encounter", "Encounter", doc.Ref("encounter"))
		g.Ref("recorder", "Recorder", doc.Ref("recorder"))
		g.Ref("asserter", "Asserter", doc.Ref("asserter"))
		g.Concepts("bodySite", "Body Site", doc.Concepts("bodySite"))
	})
	x.Group("Notes", func(g *Group) {
		g.List("note", "Notes", noteTexts(doc))
	})
}

func noteTexts(doc fhir.Document) []string {
	notes := doc.Notes()
	out := make([]string, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Text)
	}
	return out
}
