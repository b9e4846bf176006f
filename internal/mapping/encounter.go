package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func encounterEntry() Entry {
	return Entry{
		Required: []string{"identifier", "status", "class", "subject"},
		Defaults: FormState{
			"identifier":      "",
			"status":          "finished",
			"class":           "AMB",
			"subject":         "",
			"period_start":    "",
			"period_end":      "",
			"serviceProvider": "",
			"typeCode":        "",
			"typeDisplay":     "",
			"reasonCode":      "",
			"reasonDisplay":   "",
		},
		Extract: extractEncounter,
		ToForm:  encounterForm,
		Build:   buildEncounter,
	}
}

func encounterClass(doc fhir.Document) *fhir.Coding {
	var c fhir.Coding
	if !doc.Decode("class", &c) {
		return nil
	}
	return &c
}

func encounterForm(doc fhir.Document) FormState {
	typ := codingOfFirst(doc, "type", SystemSNOMED, true)
	reason := codingOfFirst(doc, "reasonCode", SystemSNOMED, true)
	form := FormState{
		"identifier":      firstIdentifier(doc),
		"status":          doc.String("status"),
		"class":           "",
		"subject":         refValue(doc, "subject"),
		"period_start":    "",
		"period_end":      "",
		"serviceProvider": refValue(doc, "serviceProvider"),
		"typeCode":        typ.Code,
		"typeDisplay":     typ.Display,
		"reasonCode":      reason.Code,
		"reasonDisplay":   reason.Display,
	}
	if c := encounterClass(doc); c != nil {
		form["class"] = c.Code
	}
	if p := doc.Period("period"); p != nil {
		form["period_start"] = p.Start
		form["period_end"] = p.End
	}
	return form
}

func buildEncounter(in *Input) (map[string]interface{}, error) {
	class := in.Str("class")
	enc := map[string]interface{}{
		"resourceType": "Encounter",
		"identifier":   identifierList("http://example.org/encounter-ids", in.Str("identifier")),
		"status":       in.Str("status"),
		"class":        fhir.Coding{System: SystemActCode, Code: class, Display: class},
	}
	put(enc, "type", conceptList(optionalConcept("", SystemSNOMED, in.Str("typeCode"), in.Str("typeDisplay"))))
	put(enc, "subject", reference("Patient", in.Str("subject")))
	put(enc, "period", period(in.Str("period_start"), in.Str("period_end")))
	put(enc, "reasonCode", conceptList(optionalConcept("", SystemSNOMED, in.Str("reasonCode"), in.Str("reasonDisplay"))))
	put(enc, "serviceProvider", reference("Organization", in.Str("serviceProvider")))
	return enc, nil
}

type encounterParticipant struct {
	Type       []fhir.CodeableConcept `json:"type,omitempty"`
	Individual *fhir.Reference        `json:"individual,omitempty"`
}

type encounterDiagnosis struct {
	Condition *fhir.Reference       `json:"condition,omitempty"`
	Use       *fhir.CodeableConcept `json:"use,omitempty"`
	Rank      int                   `json:"rank,omitempty"`
}

type encounterLocation struct {
	Location *fhir.Reference `json:"location,omitempty"`
	Status   string          `json:"status,omitempty"`
	Period   *fhir.Period    `json:"period,omitempty"`
}

func extractEncounter(x *Extraction, doc fhir.Document) {
	class := encounterClass(doc)
	typ := fhir.CodeableConceptDisplay(doc.FirstConcept("type"))
	title := typ
	if title == "" {
		title = fhir.CodingDisplay(class)
	}
	if title == "" {
		title = "Encounter"
	}
	x.SetTitle(title)
	x.Describe(doc.String("status"), fhir.PeriodDisplayWith(doc.Period("period"), x.dates.FormatDate))

	x.Group("Encounter Details", func(g *Group) {
		g.Code("status", "Status", doc.String("status"))
		g.Code("class", "Class", fhir.CodingDisplay(class))
		g.Concepts("type", "Type", doc.Concepts("type"))
		g.Concept("serviceType", "Service Type", doc.Concept("serviceType"))
		g.Concept("priority", "Priority", doc.Concept("priority"))
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Subject & Participants", func(g *Group) {
		g.Ref("subject", "Subject", doc.Ref("subject"))
		var parts []encounterParticipant
		doc.Decode("participant", &parts)
		items := make([]string, 0, len(parts))
		for _, p := range parts {
			role := ""
			if len(p.Type) > 0 {
				role = fhir.CodeableConceptDisplay(&p.Type[0])
			}
			items = append(items, joinNonEmpty(" ", referenceLabel(p.Individual), parenthesize(role)))
		}
		g.List("participant", "Participants", items)
	})
	x.Group("Timing", func(g *Group) {
		g.Period("period", "Period", doc.Period("period"))
		g.Quantity("length", "Length", doc.Quantity("length"))
	})
	x.Group("Reasons & Diagnoses", func(g *Group) {
		g.Concepts("reasonCode", "Reason", doc.Concepts("reasonCode"))
		g.Refs("reasonReference", "Reason Reference", doc.Refs("reasonReference"))
		var diags []encounterDiagnosis
		doc.Decode("diagnosis", &diags)
		items := make([]string, 0, len(diags))
		for _, d := range diags {
			items = append(items, joinNonEmpty(" ", referenceLabel(d.Condition), parenthesize(fhir.CodeableConceptDisplay(d.Use))))
		}
		g.List("diagnosis", "Diagnoses", items)
	})
	x.Group("Locations", func(g *Group) {
		var locs []encounterLocation
		doc.Decode("location", &locs)
		items := make([]string, 0, len(locs))
		for _, l := range locs {
			items = append(items, joinNonEmpty(" ", referenceLabel(l.Location), parenthesize(l.Status)))
		}
		g.List("location", "Locations", items)
	})
	x.Group("Service Provider", func(g *Group) {
		g.Ref("serviceProvider", "Service Provider", doc.Ref("serviceProvider"))
	})
}
