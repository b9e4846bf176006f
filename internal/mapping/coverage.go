package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

const SystemSubscriberRelationship = "http://terminology.hl7.org/CodeSystem/subscriber-relationship"

func coverageEntry() Entry {
	return Entry{
		Required: []string{"identifier", "status", "beneficiary", "payor"},
		Defaults: FormState{
			"identifier":   "",
			"status":       "active",
			"type":         "",
			"beneficiary":  "",
			"payor":        "",
			"subscriber":   "",
			"subscriberId": "",
			"relationship": "",
			"dependent":    "",
			"network":      "",
			"period_start": "",
			"period_end":   "",
		},
		Extract: extractCoverage,
		ToForm:  coverageForm,
		Build:   buildCoverage,
	}
}

func coverageForm(doc fhir.Document) FormState {
	form := FormState{
		"identifier":   firstIdentifier(doc),
		"status":       doc.String("status"),
		"type":         codingOf(doc, "type", "", true).Code,
		"beneficiary":  refValue(doc, "beneficiary"),
		"payor":        firstRefValue(doc, "payor"),
		"subscriber":   refValue(doc, "subscriber"),
		"subscriberId": doc.String("subscriberId"),
		"relationship": codingOf(doc, "relationship", "", true).Code,
		"dependent":    doc.String("dependent"),
		"network":      doc.String("network"),
		"period_start": "",
		"period_end":   "",
	}
	if p := doc.Period("period"); p != nil {
		form["period_start"] = p.Start
		form["period_end"] = p.End
	}
	return form
}

func buildCoverage(in *Input) (map[string]interface{}, error) {
	cov := map[string]interface{}{
		"resourceType": "Coverage",
		"identifier":   identifierList("http://example.org/coverage-ids", in.Str("identifier")),
		"status":       in.Str("status"),
	}
	put(cov, "type", optionalConcept("", SystemActCode, in.Str("type"), ""))
	put(cov, "subscriber", reference("Patient", in.Str("subscriber")))
	put(cov, "subscriberId", in.Str("subscriberId"))
	put(cov, "beneficiary", reference("Patient", in.Str("beneficiary")))
	put(cov, "dependent", in.Str("dependent"))
	put(cov, "relationship", optionalConcept("", SystemSubscriberRelationship, in.Str("relationship"), ""))
	put(cov, "period", period(in.Str("period_start"), in.Str("period_end")))
	put(cov, "payor", referenceList(reference("Organization", in.Str("payor"))))
	put(cov, "network", in.Str("network"))
	return cov, nil
}

type coverageClass struct {
	Type  *fhir.CodeableConcept `json:"type,omitempty"`
	Value string                `json:"value,omitempty"`
	Name  string                `json:"name,omitempty"`
}

type coverageCost struct {
	Type          *fhir.CodeableConcept `json:"type,omitempty"`
	ValueQuantity *fhir.Quantity        `json:"valueQuantity,omitempty"`
	ValueMoney    *struct {
		Value    *float64 `json:"value,omitempty"`
		Currency string   `json:"currency,omitempty"`
	} `json:"valueMoney,omitempty"`
}

func (c coverageCost) label() string {
	value := fhir.QuantityDisplay(c.ValueQuantity)
	if c.ValueMoney != nil && c.ValueMoney.Value != nil {
		value = joinNonEmpty(" ", fhir.FormatNumber(*c.ValueMoney.Value), c.ValueMoney.Currency)
	}
	return joinNonEmpty(": ", fhir.CodeableConceptDisplay(c.Type), value)
}

func extractCoverage(x *Extraction, doc fhir.Document) {
	typ := doc.Concept("type")
	payors := doc.Refs("payor")
	beneficiary := doc.Ref("beneficiary")

	title := fhir.CodeableConceptDisplay(typ)
	if title == "" && len(payors) > 0 && payors[0].Display != "" {
		title = "Coverage by " + payors[0].Display
	}
	if title == "" {
		id := doc.ID()
		if id == "" {
			id = "Unknown"
		}
		title = "Coverage #" + id
	}
	x.SetTitle(title)

	var status, ben, start string
	if s := doc.String("status"); s != "" {
		status = "Status: " + s
	}
	if beneficiary != nil && beneficiary.Display != "" {
		ben = "Beneficiary: " + beneficiary.Display
	}
	if p := doc.Period("period"); p != nil && p.Start != "" {
		start = "Start: " + x.FormatDate(p.Start)
	}
	x.Describe(status, ben, start)
	if x.set.Description == "" {
		x.Describe("Coverage details")
	}

	x.Group("Coverage Information", func(g *Group) {
		g.Code("status", "Status", doc.String("status"))
		g.Concept("type", "Type", typ)
		g.Text("network", "Network", doc.String("network"))
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Parties Involved", func(g *Group) {
		g.Ref("beneficiary", "Beneficiary", beneficiary)
		g.Ref("subscriber", "Subscriber", doc.Ref("subscriber"))
		g.Text("subscriberId", "Subscriber ID", doc.String("subscriberId"))
		g.Ref("policyHolder", "Policy Holder", doc.Ref("policyHolder"))
		g.Concept("relationship", "Relationship", doc.Concept("relationship"))
		g.Text("dependent", "Dependent", doc.String("dependent"))
		g.Refs("payor", "Payor", payors)
	})
	x.Group("Coverage Period", func(g *Group) {
		g.Period("period", "Period", doc.Period("period"))
	})
	x.Group("Coverage Classes", func(g *Group) {
		var classes []coverageClass
		doc.Decode("class", &classes)
		items := make([]string, 0, len(classes))
		for _, c := range classes {
			label := joinNonEmpty(": ", fhir.CodeableConceptDisplay(c.Type), c.Value)
			items = append(items, joinNonEmpty(" ", label, parenthesize(c.Name)))
		}
		g.List("class", "Classes", items)
	})
	x.Group("Cost to Beneficiary", func(g *Group) {
		var costs []coverageCost
		doc.Decode("costToBeneficiary", &costs)
		items := make([]string, 0, len(costs))
		for _, c := range costs {
			items = append(items, c.label())
		}
		g.List("costToBeneficiary", "Costs", items)
	})
	x.Group("Administrative Details", func(g *Group) {
		g.Text("order", "Order", doc.String("order"))
		subrogation, ok := doc.Bool("subrogation")
		g.Bool("subrogation", "Subrogation", subrogation, ok)
		g.Refs("contract", "Contracts", doc.Refs("contract"))
	})
}
