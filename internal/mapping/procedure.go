package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func procedureEntry() Entry {
	return Entry{
		Required: []string{"status", "codeValue", "codeDisplay", "subjectReference"},
		Defaults: FormState{
			"status":               "completed",
			"codeSystem":           SystemSNOMED,
			"codeValue":            "",
			"codeDisplay":          "",
			"subjectReference":     "",
			"performedDateTime":    "",
			"performedPeriodStart": "",
			"performedPeriodEnd":   "",
			"performedString":      "",
			"performerReference":   "",
			"performerRole":        "",
			"locationReference":    "",
			"reasonCodeSystem":     "",
			"reasonCodeValue":      "",
			"reasonCodeDisplay":    "",
			"reasonReference":      "",
			"bodySiteSystem":       "",
			"bodySiteCode":         "",
			"bodySiteDisplay":      "",
			"outcomeSystem":        "",
			"outcomeCode":          "",
			"outcomeDisplay":       "",
			"notes":                "",
		},
		Extract: extractProcedure,
		ToForm:  procedureForm,
		Build:   buildProcedure,
	}
}

type procedurePerformer struct {
	Function *fhir.CodeableConcept `json:"function,omitempty"`
	Role     *fhir.CodeableConcept `json:"role,omitempty"`
	Actor    *fhir.Reference       `json:"actor,omitempty"`
}

func procedurePerformers(doc fhir.Document) []procedurePerformer {
	var list []procedurePerformer
	doc.Decode("performer", &list)
	return list
}

func procedureForm(doc fhir.Document) FormState {
	code := codingOf(doc, "code", SystemSNOMED, false)
	reason := codingOfFirst(doc, "reasonCode", SystemSNOMED, true)
	bodySite := codingOfFirst(doc, "bodySite", SystemSNOMED, true)
	outcome := codingOf(doc, "outcome", SystemSNOMED, true)
	status := doc.String("status")
	if status == "" {
		status = "completed"
	}
	form := FormState{
		"status":               status,
		"codeSystem":           code.System,
		"codeValue":            code.Code,
		"codeDisplay":          code.Display,
		"subjectReference":     fhir.StripReferencePrefix("Patient", refValue(doc, "subject")),
		"performedDateTime":    doc.String("performedDateTime"),
		"performedPeriodStart": "",
		"performedPeriodEnd":   "",
		"performedString":      doc.String("performedString"),
		"performerReference":   "",
		"performerRole":        "",
		"locationReference":    refValue(doc, "location"),
		"reasonCodeSystem":     reason.System,
		"reasonCodeValue":      reason.Code,
		"reasonCodeDisplay":    reason.Display,
		"reasonReference":      firstRefValue(doc, "reasonReference"),
		"bodySiteSystem":       bodySite.System,
		"bodySiteCode":         bodySite.Code,
		"bodySiteDisplay":      bodySite.Display,
		"outcomeSystem":        outcome.System,
		"outcomeCode":          outcome.Code,
		"outcomeDisplay":       outcome.Display,
		"notes":                firstNoteText(doc),
	}
	if p := doc.Period("performedPeriod"); p != nil {
		form["performedPeriodStart"] = p.Start
		form["performedPeriodEnd"] = p.End
	}
	if performers := procedurePerformers(doc); len(performers) > 0 {
		first := performers[0]
		if first.Actor != nil {
			form["performerReference"] = first.Actor.Reference
		}
		role := first.Function
		if role == nil {
			role = first.Role
		}
		form["performerRole"] = fhir.CodingDisplay(role.FirstCoding())
	}
	return form
}

func buildProcedure(in *Input) (map[string]interface{}, error) {
	code := concept(in.Str("codeSystem"), in.Str("codeValue"), in.Str("codeDisplay"))
	code.Text = in.Str("codeDisplay")
	proc := map[string]interface{}{
		"resourceType": "Procedure",
		"status":       in.Str("status"),
		"code":         code,
	}
	put(proc, "subject", reference("Patient", in.Str("subjectReference")))

	// performed[x] is a choice; the first filled variant wins.
	switch {
	case in.Str("performedDateTime") != "":
		proc["performedDateTime"] = in.Str("performedDateTime")
	case in.Str("performedPeriodStart") != "" || in.Str("performedPeriodEnd") != "":
		proc["performedPeriod"] = period(in.Str("performedPeriodStart"), in.Str("performedPeriodEnd"))
	case in.Str("performedString") != "":
		proc["performedString"] = in.Str("performedString")
	}

	if actor := reference("Practitioner", in.Str("performerReference")); actor != nil {
		performer := procedurePerformer{Actor: actor}
		if role := in.Str("performerRole"); role != "" {
			performer.Function = concept(SystemSNOMED, role, role)
		}
		proc["performer"] = []procedurePerformer{performer}
	}
	put(proc, "location", reference("Location", in.Str("locationReference")))
	put(proc, "reasonCode", conceptList(optionalConcept(in.Str("reasonCodeSystem"), SystemSNOMED, in.Str("reasonCodeValue"), in.Str("reasonCodeDisplay"))))
	put(proc, "reasonReference", referenceList(rawReference(in.Str("reasonReference"))))
	put(proc, "bodySite", conceptList(optionalConcept(in.Str("bodySiteSystem"), SystemSNOMED, in.Str("bodySiteCode"), in.Str("bodySiteDisplay"))))
	put(proc, "outcome", optionalConcept(in.Str("outcomeSystem"), SystemSNOMED, in.Str("outcomeCode"), in.Str("outcomeDisplay")))
	put(proc, "note", note(in, in.Str("notes")))
	return proc, nil
}

func extractProcedure(x *Extraction, doc fhir.Document) {
	code := doc.Concept("code")
	title := fhir.CodeableConceptDisplay(code)
	if title == "" {
		title = "Procedure"
	}
	x.SetTitle(title)
	performed := doc.String("performedDateTime")
	if performed != "" {
		performed = "Performed: " + x.FormatDate(performed)
	}
	x.Describe(doc.String("status"), performed)

	x.Group("Procedure Details", func(g *Group) {
		g.Concept("code", "Procedure", code)
		g.Code("status", "Status", doc.String("status"))
		g.Concept("category", "Category", doc.Concept("category"))
		g.Concept("statusReason", "Status Reason", doc.Concept("statusReason"))
	})
	x.Group("Timing & Performance", func(g *Group) {
		g.DateTime("performedDateTime", "Performed", doc.String("performedDateTime"))
		g.Period("performedPeriod", "Performed Period", doc.Period("performedPeriod"))
		g.Text("performedString", "Performed", doc.String("performedString"))
		performers := procedurePerformers(doc)
		items := make([]string, 0, len(performers))
		for _, p := range performers {
			role := p.Function
			if role == nil {
				role = p.Role
			}
			items = append(items, joinNonEmpty(" ", referenceLabel(p.Actor), parenthesize(fhir.CodeableConceptDisplay(role))))
		}
		g.List("performer", "Performers", items)
		g.Ref("location", "Location", doc.Ref("location"))
	})
	x.Group("Clinical Information", func(g *Group) {
		g.Ref("subject", "Subject", doc.Ref("subject"))
		g.Ref("encounter", "Encounter", doc.Ref("encounter"))
		g.Concepts("reasonCode", "Reason", doc.Concepts("reasonCode"))
		g.Refs("reasonReference", "Reason Reference", doc.Refs("reasonReference"))
		g.Concepts("bodySite", "Body Site", doc.Concepts("bodySite"))
		g.Concept("outcome", "Outcome", doc.Concept("outcome"))
		g.Concepts("complication", "Complications", doc.Concepts("complication"))
	})
	x.Group("Devices & Equipment", func(g *Group) {
		devices := doc.Objects("focalDevice")
		items := make([]string, 0, len(devices))
		for _, d := range devices {
			items = append(items, joinNonEmpty(" ", referenceLabel(d.Ref("manipulated")), parenthesize(fhir.CodeableConceptDisplay(d.Concept("action")))))
		}
		g.List("focalDevice", "Devices", items)
		g.Refs("usedReference", "Used Items", doc.Refs("usedReference"))
	})
	x.Group("Follow-up", func(g *Group) {
		g.Concepts("followUp", "Follow-up", doc.Concepts("followUp"))
	})
	x.Group("Notes", func(g *Group) {
		g.List("note", "Notes", noteTexts(doc))
	})
}
