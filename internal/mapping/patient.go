package mapping

import (
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func patientEntry() Entry {
	return Entry{
		Required: []string{"identifier", "family", "given"},
		Defaults: FormState{
			"identifier": "",
			"active":     true,
			"family":     "",
			"given":      "",
			"gender":     "",
			"birthDate":  "",
			"phone":      "",
			"email":      "",
		},
		Extract: extractPatient,
		ToForm:  patientForm,
		Build:   buildPatient,
	}
}

func patientForm(doc fhir.Document) FormState {
	form := FormState{
		"identifier": firstIdentifier(doc),
		"active":     activeFlag(doc, "active"),
		"family":     "",
		"given":      "",
		"gender":     doc.String("gender"),
		"birthDate":  doc.String("birthDate"),
	}
	if name := firstName(doc); name != nil {
		form["family"] = name.Family
		form["given"] = strings.Join(name.Given, " ")
	}
	telecom := doc.Telecoms("telecom")
	form["phone"] = telecomValue(telecom, "phone")
	form["email"] = telecomValue(telecom, "email")
	return form
}

// buildPatient keeps identifier and telecom minimal so a resource built
// from a form compares equal to the resource the form was read from.
func buildPatient(in *Input) (map[string]interface{}, error) {
	patient := map[string]interface{}{
		"resourceType": "Patient",
		"identifier":   []fhir.Identifier{{Value: in.Str("identifier")}},
		"active":       in.Bool("active"),
		"name": []fhir.HumanName{{
			Family: in.Str("family"),
			Given:  splitWords(in.Str("given")),
		}},
	}
	put(patient, "gender", in.Str("gender"))
	put(patient, "birthDate", in.Str("birthDate"))
	put(patient, "telecom", contactPoints("", in.Str("phone"), in.Str("email"), ""))
	return patient, nil
}

func extractPatient(x *Extraction, doc fhir.Document) {
	name := firstName(doc)
	x.SetTitle(personName(name, "Unnamed Patient"))
	gender := doc.String("gender")
	if gender != "" {
		gender = "Gender: " + gender
	}
	dob := doc.String("birthDate")
	if dob != "" {
		dob = "DOB: " + x.FormatDate(dob)
	}
	x.Describe(gender, dob)

	x.Group("Demographics", func(g *Group) {
		g.Text("name", "Name", personName(name, ""))
		if names := doc.Names(); len(names) > 1 {
			other := make([]string, 0, len(names)-1)
			for i := range names[1:] {
				other = append(other, personName(&names[i+1], ""))
			}
			g.List("otherNames", "Other Names", other)
		}
		g.Code("gender", "Gender", doc.String("gender"))
		g.Date("birthDate", "Birth Date", doc.String("birthDate"))
		active, ok := doc.Bool("active")
		g.Bool("active", "Active", active, ok)
		deceased, ok := doc.Bool("deceasedBoolean")
		g.Bool("deceasedBoolean", "Deceased", deceased, ok)
		g.DateTime("deceasedDateTime", "Deceased", doc.String("deceasedDateTime"))
		g.Concept("maritalStatus", "Marital Status", doc.Concept("maritalStatus"))
		multiple, ok := doc.Bool("multipleBirthBoolean")
		g.Bool("multipleBirthBoolean", "Multiple Birth", multiple, ok)
		g.Text("multipleBirthInteger", "Birth Order", doc.String("multipleBirthInteger"))
	})
	x.Group("Identifiers", func(g *Group) {
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Contact Information", func(g *Group) {
		g.List("telecom", "Telecom", contactLabels(doc.Telecoms("telecom")))
		g.List("address", "Addresses", addressLabels(doc.Addresses()))
	})
	x.Group("Communication Preferences", func(g *Group) {
		var langs []string
		for _, c := range doc.Objects("communication") {
			label := fhir.CodeableConceptDisplay(c.Concept("language"))
			if preferred, _ := c.Bool("preferred"); preferred && label != "" {
				label += " (preferred)"
			}
			langs = append(langs, label)
		}
		g.List("communication", "Languages", langs)
	})
	x.Group("Clinical Information", func(g *Group) {
		g.Refs("generalPractitioner", "General Practitioner", doc.Refs("generalPractitioner"))
		var contacts []string
		for _, c := range doc.Objects("contact") {
			var n fhir.HumanName
			c.Decode("name", &n)
			rel := fhir.CodeableConceptDisplay(c.FirstConcept("relationship"))
			label := personName(&n, "")
			if rel != "" {
				label = joinNonEmpty(" - ", label, rel)
			}
			contacts = append(contacts, label)
		}
		g.List("contact", "Contacts", contacts)
	})
	x.Group("Related Records", func(g *Group) {
		g.Ref("managingOrganization", "Managing Organization", doc.Ref("managingOrganization"))
		var links []string
		for _, l := range doc.Objects("link") {
			links = append(links, joinNonEmpty(" ", fhir.ReferenceDisplay(l.Ref("other")), parenthesize(l.String("type"))))
		}
		g.List("link", "Links", links)
	})
}

// personName renders a name as text, or "prefix given family suffix".
func personName(n *fhir.HumanName, fallback string) string {
	if n == nil {
		return fallback
	}
	if n.Text != "" {
		return n.Text
	}
	parts := append([]string{}, n.Prefix...)
	parts = append(parts, n.Given...)
	parts = append(parts, n.Family)
	parts = append(parts, n.Suffix...)
	if s := joinNonEmpty(" ", parts...); s != "" {
		return s
	}
	return fallback
}

func identifierLabels(ids []fhir.Identifier) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		label := id.Value
		if t := fhir.CodeableConceptDisplay(id.Type); t != "" {
			label = t + ": " + label
		} else if id.System != "" {
			label = id.System + ": " + label
		}
		out = append(out, label)
	}
	return out
}

func contactLabels(list []fhir.ContactPoint) []string {
	out := make([]string, 0, len(list))
	for _, cp := range list {
		label := cp.Value
		if cp.System != "" {
			label = cp.System + ": " + label
		}
		out = append(out, joinNonEmpty(" ", label, parenthesize(cp.Use)))
	}
	return out
}

func addressLabels(list []fhir.Address) []string {
	out := make([]string, 0, len(list))
	for i := range list {
		out = append(out, addressLabel(&list[i]))
	}
	return out
}

func addressLabel(a *fhir.Address) string {
	if a == nil {
		return ""
	}
	if a.Text != "" {
		return a.Text
	}
	parts := append([]string{}, a.Line...)
	parts = append(parts, a.City, joinNonEmpty(" ", a.State, a.PostalCode), a.Country)
	return joinNonEmpty(", ", parts...)
}

func parenthesize(s string) string {
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}
