package mapping

import (
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func practitionerEntry() Entry {
	return Entry{
		Required: []string{"identifier", "family", "given"},
		Defaults: FormState{
			"identifier":           "",
			"active":               true,
			"family":               "",
			"given":                "",
			"prefix":               "",
			"suffix":               "",
			"gender":               "",
			"birthDate":            "",
			"phone":                "",
			"email":                "",
			"addressLine":          "",
			"addressCity":          "",
			"addressState":         "",
			"addressPostalCode":    "",
			"addressCountry":       "",
			"qualificationCode":    "",
			"qualificationDisplay": "",
			"qualificationIssuer":  "",
			"qualificationStart":   "",
			"qualificationEnd":     "",
			"languageCode":         "",
			"languageDisplay":      "",
			"languagePreferred":    false,
			"photo":                "",
		},
		Extract: extractPractitioner,
		ToForm:  practitionerForm,
		Build:   buildPractitioner,
	}
}

type qualification struct {
	Code   *fhir.CodeableConcept `json:"code,omitempty"`
	Issuer *fhir.Reference       `json:"issuer,omitempty"`
	Period *fhir.Period          `json:"period,omitempty"`
}

type communication struct {
	Language  *fhir.CodeableConcept `json:"language,omitempty"`
	Preferred bool                  `json:"preferred,omitempty"`
}

func practitionerForm(doc fhir.Document) FormState {
	form := FormState{
		"identifier":        firstIdentifier(doc),
		"active":            activeFlag(doc, "active"),
		"gender":            doc.String("gender"),
		"birthDate":         doc.String("birthDate"),
		"languagePreferred": false,
	}
	name := firstName(doc)
	if name == nil {
		name = &fhir.HumanName{}
	}
	form["family"] = name.Family
	form["given"] = strings.Join(name.Given, " ")
	form["prefix"] = strings.Join(name.Prefix, " ")
	form["suffix"] = strings.Join(name.Suffix, " ")

	telecom := doc.Telecoms("telecom")
	form["phone"] = telecomValue(telecom, "phone")
	form["email"] = telecomValue(telecom, "email")
	flattenAddress(firstAddress(doc)).put(form)

	var quals []qualification
	doc.Decode("qualification", &quals)
	var q qualification
	if len(quals) > 0 {
		q = quals[0]
	}
	qc := flattenCoding(q.Code, "", true)
	form["qualificationCode"] = qc.Code
	form["qualificationDisplay"] = qc.Display
	form["qualificationIssuer"] = ""
	if q.Issuer != nil {
		form["qualificationIssuer"] = q.Issuer.Display
	}
	form["qualificationStart"] = ""
	form["qualificationEnd"] = ""
	if q.Period != nil {
		form["qualificationStart"] = q.Period.Start
		form["qualificationEnd"] = q.Period.End
	}

	var comms []communication
	doc.Decode("communication", &comms)
	var c communication
	if len(comms) > 0 {
		c = comms[0]
	}
	lc := flattenCoding(c.Language, "", true)
	form["languageCode"] = lc.Code
	form["languageDisplay"] = lc.Display
	form["languagePreferred"] = c.Preferred

	form["photo"] = ""
	var photos []fhir.Attachment
	if doc.Decode("photo", &photos) && len(photos) > 0 {
		form["photo"] = photos[0].URL
	}
	return form
}

func buildPractitioner(in *Input) (map[string]interface{}, error) {
	p := map[string]interface{}{
		"resourceType": "Practitioner",
		"identifier":   identifierList("http://example.org/practitioner-ids", in.Str("identifier")),
		"active":       in.Bool("active"),
		"name": []fhir.HumanName{{
			Family: in.Str("family"),
			Given:  splitWords(in.Str("given")),
			Prefix: splitWords(in.Str("prefix")),
			Suffix: splitWords(in.Str("suffix")),
		}},
	}
	put(p, "gender", in.Str("gender"))
	put(p, "birthDate", in.Str("birthDate"))
	put(p, "telecom", contactPoints("work", in.Str("phone"), in.Str("email"), ""))
	if addr := readAddress(in).build(); addr != nil {
		p["address"] = []fhir.Address{*addr}
	}

	code, display := in.Str("qualificationCode"), in.Str("qualificationDisplay")
	q := qualification{Period: period(in.Str("qualificationStart"), in.Str("qualificationEnd"))}
	if code != "" || display != "" {
		q.Code = concept("", code, display)
	}
	if issuer := in.Str("qualificationIssuer"); issuer != "" {
		q.Issuer = &fhir.Reference{Display: issuer}
	}
	if q.Code != nil || q.Issuer != nil || q.Period != nil {
		p["qualification"] = []qualification{q}
	}

	langCode, langDisplay := in.Str("languageCode"), in.Str("languageDisplay")
	if langCode != "" || langDisplay != "" {
		p["communication"] = []communication{{
			Language:  concept(SystemLanguage, langCode, langDisplay),
			Preferred: in.Bool("languagePreferred"),
		}}
	}
	if photo := in.Str("photo"); photo != "" {
		p["photo"] = []fhir.Attachment{{URL: photo}}
	}
	return p, nil
}

func extractPractitioner(x *Extraction, doc fhir.Document) {
	name := firstName(doc)
	x.SetTitle(personName(name, "Unnamed Practitioner"))
	var quals []qualification
	doc.Decode("qualification", &quals)
	var firstQual string
	if len(quals) > 0 {
		firstQual = fhir.CodeableConceptDisplay(quals[0].Code)
	}
	x.Describe(firstQual, doc.String("gender"))

	x.Group("Practitioner Details", func(g *Group) {
		g.Text("name", "Name", personName(name, ""))
		active, ok := doc.Bool("active")
		g.Bool("active", "Active", active, ok)
		g.Code("gender", "Gender", doc.String("gender"))
		g.Date("birthDate", "Birth Date", doc.String("birthDate"))
	})
	x.Group("Identifiers", func(g *Group) {
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Contact Information", func(g *Group) {
		g.List("telecom", "Telecom", contactLabels(doc.Telecoms("telecom")))
		g.List("address", "Addresses", addressLabels(doc.Addresses()))
	})
	x.Group("Qualifications", func(g *Group) {
		items := make([]string, 0, len(quals))
		for _, q := range quals {
			label := fhir.CodeableConceptDisplay(q.Code)
			if q.Issuer != nil {
				label = joinNonEmpty(" - ", label, fhir.ReferenceDisplay(q.Issuer))
			}
			label = joinNonEmpty(" ", label, parenthesize(fhir.PeriodDisplayWith(q.Period, x.dates.FormatDate)))
			items = append(items, label)
		}
		g.List("qualification", "Qualifications", items)
	})
	x.Group("Communication Languages", func(g *Group) {
		var comms []communication
		doc.Decode("communication", &comms)
		items := make([]string, 0, len(comms))
		for _, c := range comms {
			label := fhir.CodeableConceptDisplay(c.Language)
			if c.Preferred && label != "" {
				label += " (preferred)"
			}
			items = append(items, label)
		}
		g.List("communication", "Languages", items)
	})
}
