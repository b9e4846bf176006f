package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func immunizationEntry() Entry {
	return Entry{
		Required: []string{"identifier", "status", "vaccineCode", "vaccineDisplay", "patient", "occurrenceDateTime"},
		Defaults: FormState{
			"identifier":         "",
			"status":             "completed",
			"vaccineCodeSystem":  SystemCVX,
			"vaccineCode":        "",
			"vaccineDisplay":     "",
			"patient":            "",
			"occurrenceDateTime": "",
			"primarySource":      true,
			"lotNumber":          "",
			"performer":          "",
		},
		Extract: extractImmunization,
		ToForm:  immunizationForm,
		Build:   buildImmunization,
	}
}

type immunizationPerformer struct {
	Function *fhir.CodeableConcept `json:"function,omitempty"`
	Actor    *fhir.Reference       `json:"actor,omitempty"`
}

func immunizationPerformers(doc fhir.Document) []immunizationPerformer {
	var list []immunizationPerformer
	doc.Decode("performer", &list)
	return list
}

func immunizationForm(doc fhir.Document) FormState {
	vaccine := codingOf(doc, "vaccineCode", SystemCVX, false)
	form := FormState{
		"identifier":         firstIdentifier(doc),
		"status":             doc.String("status"),
		"vaccineCodeSystem":  vaccine.System,
		"vaccineCode":        vaccine.Code,
		"vaccineDisplay":     vaccine.Display,
		"patient":            refValue(doc, "patient"),
		"occurrenceDateTime": doc.String("occurrenceDateTime"),
		"primarySource":      activeFlag(doc, "primarySource"),
		"lotNumber":          doc.String("lotNumber"),
		"performer":          "",
	}
	if list := immunizationPerformers(doc); len(list) > 0 && list[0].Actor != nil {
		form["performer"] = list[0].Actor.Reference
	}
	return form
}

func buildImmunization(in *Input) (map[string]interface{}, error) {
	imm := map[string]interface{}{
		"resourceType":  "Immunization",
		"identifier":    identifierList("http://example.org/immunization-ids", in.Str("identifier")),
		"status":        in.Str("status"),
		"vaccineCode":   concept(in.Str("vaccineCodeSystem"), in.Str("vaccineCode"), in.Str("vaccineDisplay")),
		"primarySource": in.Bool("primarySource"),
	}
	put(imm, "patient", reference("Patient", in.Str("patient")))
	put(imm, "occurrenceDateTime", in.Str("occurrenceDateTime"))
	put(imm, "lotNumber", in.Str("lotNumber"))
	if actor := reference("Practitioner", in.Str("performer")); actor != nil {
		imm["performer"] = []immunizationPerformer{{Actor: actor}}
	}
	return imm, nil
}

func extractImmunization(x *Extraction, doc fhir.Document) {
	vaccine := doc.Concept("vaccineCode")
	title := fhir.CodeableConceptDisplay(vaccine)
	if title == "" {
		title = "Immunization"
	}
	x.SetTitle(title)
	given := doc.String("occurrenceDateTime")
	if given != "" {
		given = x.FormatDate(given)
	}
	x.Describe(doc.String("status"), given)

	x.Group("Vaccine", func(g *Group) {
		g.Concept("vaccineCode", "Vaccine", vaccine)
		g.Code("status", "Status", doc.String("status"))
		g.Concept("statusReason", "Status Reason", doc.Concept("statusReason"))
		g.Ref("manufacturer", "Manufacturer", doc.Ref("manufacturer"))
		g.Text("lotNumber", "Lot Number", doc.String("lotNumber"))
		g.Date("expirationDate", "Expiration Date", doc.String("expirationDate"))
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Administration", func(g *Group) {
		g.Ref("patient", "Patient", doc.Ref("patient"))
		g.Ref("encounter", "Encounter", doc.Ref("encounter"))
		g.DateTime("occurrenceDateTime", "Occurrence", doc.String("occurrenceDateTime"))
		g.Text("occurrenceString", "Occurrence", doc.String("occurrenceString"))
		primary, ok := doc.Bool("primarySource")
		g.Bool("primarySource", "Primary Source", primary, ok)
		g.Ref("location", "Location", doc.Ref("location"))
		g.Concept("site", "Site", doc.Concept("site"))
		g.Concept("route", "Route", doc.Concept("route"))
		g.Quantity("doseQuantity", "Dose", doc.Quantity("doseQuantity"))
	})
	x.Group("Performers", func(g *Group) {
		list := immunizationPerformers(doc)
		items := make([]string, 0, len(list))
		for _, p := range list {
			items = append(items, joinNonEmpty(" ", referenceLabel(p.Actor), parenthesize(fhir.CodeableConceptDisplay(p.Function))))
		}
		g.List("performer", "Performers", items)
	})
	x.Group("Reasons", func(g *Group) {
		g.Concepts("reasonCode", "Reason", doc.Concepts("reasonCode"))
		g.Refs("reasonReference", "Reason Reference", doc.Refs("reasonReference"))
	})
	x.Group("Notes", func(g *Group) {
		g.List("note", "Notes", noteTexts(doc))
	})
}
