package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func diagnosticReportEntry() Entry {
	return Entry{
		Required: []string{"identifier", "status", "code", "codeDisplay", "subject"},
		Defaults: FormState{
			"identifier":        "",
			"status":            "final",
			"category":          "",
			"codeSystem":        SystemLOINC,
			"code":              "",
			"codeDisplay":       "",
			"subject":           "",
			"effectiveDateTime": "",
			"conclusion":        "",
		},
		Extract: extractDiagnosticReport,
		ToForm:  diagnosticReportForm,
		Build:   buildDiagnosticReport,
	}
}

func diagnosticReportForm(doc fhir.Document) FormState {
	code := codingOf(doc, "code", SystemLOINC, false)
	return FormState{
		"identifier":        firstIdentifier(doc),
		"status":            doc.String("status"),
		"category":          codingOfFirst(doc, "category", "", true).Code,
		"codeSystem":        code.System,
		"code":              code.Code,
		"codeDisplay":       code.Display,
		"subject":           refValue(doc, "subject"),
		"effectiveDateTime": doc.String("effectiveDateTime"),
		"conclusion":        doc.String("conclusion"),
	}
}

func buildDiagnosticReport(in *Input) (map[string]interface{}, error) {
	dr := map[string]interface{}{
		"resourceType": "DiagnosticReport",
		"identifier":   identifierList("http://example.org/diagnostic-report-ids", in.Str("identifier")),
		"status":       in.Str("status"),
		"code":         concept(in.Str("codeSystem"), in.Str("code"), in.Str("codeDisplay")),
	}
	put(dr, "category", conceptList(optionalConcept("", SystemDiagService, in.Str("category"), "")))
	put(dr, "subject", reference("Patient", in.Str("subject")))
	put(dr, "effectiveDateTime", in.Str("effectiveDateTime"))
	put(dr, "conclusion", in.Str("conclusion"))
	return dr, nil
}

func extractDiagnosticReport(x *Extraction, doc fhir.Document) {
	code := doc.Concept("code")
	title := fhir.CodeableConceptDisplay(code)
	if title == "" {
		title = "Diagnostic Report"
	}
	x.SetTitle(title)
	issued := doc.String("effectiveDateTime")
	if issued != "" {
		issued = x.FormatDate(issued)
	}
	x.Describe(doc.String("status"), issued)

	x.Group("Report Details", func(g *Group) {
		g.Concept("code", "Report", code)
		g.Code("status", "Status", doc.String("status"))
		g.Concepts("category", "Category", doc.Concepts("category"))
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Subject & Context", func(g *Group) {
		g.Ref("subject", "Subject", doc.Ref("subject"))
		g.Ref("encounter", "Encounter", doc.Ref("encounter"))
		g.DateTime("effectiveDateTime", "Effective Date", doc.String("effectiveDateTime"))
		g.Period("effectivePeriod", "Effective Period", doc.Period("effectivePeriod"))
		g.DateTime("issued", "Issued", doc.String("issued"))
	})
	x.Group("Performers", func(g *Group) {
		g.Refs("performer", "Performers", doc.Refs("performer"))
		g.Refs("resultsInterpreter", "Results Interpreter", doc.Refs("resultsInterpreter"))
	})
	x.Group("Results", func(g *Group) {
		g.Refs("result", "Results", doc.Refs("result"))
		g.Refs("specimen", "Specimens", doc.Refs("specimen"))
	})
	x.Group("Conclusion", func(g *Group) {
		g.Text("conclusion", "Conclusion", doc.String("conclusion"))
		g.Concepts("conclusionCode", "Conclusion Codes", doc.Concepts("conclusionCode"))
	})
}
