package mapping

import (
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func organizationEntry() Entry {
	return Entry{
		Required: []string{"identifier", "name"},
		Defaults: FormState{
			"identifier":        "",
			"active":            true,
			"name":              "",
			"alias":             "",
			"typeSystem":        SystemOrgType,
			"typeCode":          "",
			"typeDisplay":       "",
			"addressLine":       "",
			"addressCity":       "",
			"addressState":      "",
			"addressPostalCode": "",
			"addressCountry":    "",
			"phone":             "",
			"email":             "",
			"website":           "",
			"contactName":       "",
			"contactPhone":      "",
			"contactEmail":      "",
			"partOfReference":   "",
		},
		Extract: extractOrganization,
		ToForm:  organizationForm,
		Build:   buildOrganization,
	}
}

type orgContact struct {
	Purpose *fhir.CodeableConcept `json:"purpose,omitempty"`
	Name    *fhir.HumanName       `json:"name,omitempty"`
	Telecom []fhir.ContactPoint   `json:"telecom,omitempty"`
	Address *fhir.Address         `json:"address,omitempty"`
}

func organizationContacts(doc fhir.Document) []orgContact {
	var list []orgContact
	doc.Decode("contact", &list)
	return list
}

func organizationForm(doc fhir.Document) FormState {
	typ := codingOfFirst(doc, "type", SystemOrgType, false)
	telecom := doc.Telecoms("telecom")
	form := FormState{
		"identifier":      firstIdentifier(doc),
		"active":          activeFlag(doc, "active"),
		"name":            doc.String("name"),
		"alias":           joinList(doc.Strings("alias")),
		"typeSystem":      typ.System,
		"typeCode":        typ.Code,
		"typeDisplay":     typ.Display,
		"phone":           telecomValue(telecom, "phone"),
		"email":           telecomValue(telecom, "email"),
		"website":         telecomValue(telecom, "url"),
		"contactName":     "",
		"contactPhone":    "",
		"contactEmail":    "",
		"partOfReference": refValue(doc, "partOf"),
	}
	flattenAddress(firstAddress(doc)).put(form)
	if contacts := organizationContacts(doc); len(contacts) > 0 {
		c := contacts[0]
		if c.Name != nil {
			form["contactName"] = c.Name.Text
		}
		form["contactPhone"] = telecomValue(c.Telecom, "phone")
		form["contactEmail"] = telecomValue(c.Telecom, "email")
	}
	return form
}

func buildOrganization(in *Input) (map[string]interface{}, error) {
	org := map[string]interface{}{
		"resourceType": "Organization",
		"identifier":   identifierList("http://example.org/organization-ids", in.Str("identifier")),
		"active":       in.Bool("active"),
		"name":         in.Str("name"),
	}
	put(org, "alias", splitList(in.Str("alias")))
	if code := in.Str("typeCode"); code != "" {
		org["type"] = conceptList(concept(in.Str("typeSystem"), code, in.Str("typeDisplay")))
	}
	if addr := readAddress(in).build(); addr != nil {
		org["address"] = []fhir.Address{*addr}
	}
	put(org, "telecom", contactPoints("work", in.Str("phone"), in.Str("email"), in.Str("website")))

	name, phone, email := in.Str("contactName"), in.Str("contactPhone"), in.Str("contactEmail")
	if name != "" || phone != "" || email != "" {
		c := orgContact{
			Purpose: &fhir.CodeableConcept{Coding: []fhir.Coding{{System: SystemContactEntity, Code: "ADMIN", Display: "Administrative"}}},
			Telecom: contactPoints("work", phone, email, ""),
		}
		if name != "" {
			c.Name = &fhir.HumanName{Text: name}
		}
		org["contact"] = []orgContact{c}
	}
	put(org, "partOf", reference("Organization", in.Str("partOfReference")))
	return org, nil
}

func extractOrganization(x *Extraction, doc fhir.Document) {
	name := doc.String("name")
	if name == "" {
		name = "Unnamed Organization"
	}
	x.SetTitle(name)
	var city string
	if addr := firstAddress(doc); addr != nil {
		city = addr.City
	}
	x.Describe(fhir.CodeableConceptDisplay(doc.FirstConcept("type")), city)

	x.Group("Organization Information", func(g *Group) {
		g.Text("name", "Name", doc.String("name"))
		g.List("alias", "Aliases", doc.Strings("alias"))
		active, ok := doc.Bool("active")
		g.Bool("active", "Active", active, ok)
		g.Concepts("type", "Type", doc.Concepts("type"))
	})
	x.Group("Identifiers", func(g *Group) {
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Contact Information", func(g *Group) {
		g.List("telecom", "Telecom", contactLabels(doc.Telecoms("telecom")))
		g.List("address", "Addresses", addressLabels(doc.Addresses()))
		contacts := organizationContacts(doc)
		items := make([]string, 0, len(contacts))
		for _, c := range contacts {
			parts := []string{personName(c.Name, ""), fhir.CodeableConceptDisplay(c.Purpose)}
			parts = append(parts, contactLabels(c.Telecom)...)
			items = append(items, joinNonEmpty(" - ", parts...))
		}
		g.List("contact", "Contacts", items)
	})
	x.Group("Organizational Hierarchy", func(g *Group) {
		g.Ref("partOf", "Part Of", doc.Ref("partOf"))
		g.Refs("endpoint", "Endpoints", doc.Refs("endpoint"))
	})
}
