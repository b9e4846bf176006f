package mapping

import (
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

func locationEntry() Entry {
	return Entry{
		Required: []string{"identifier", "name"},
		Defaults: FormState{
			"identifier":                    "",
			"status":                        "active",
			"name":                          "",
			"alias":                         "",
			"description":                   "",
			"mode":                          "instance",
			"typeSystem":                    SystemRoleCode,
			"typeCode":                      "",
			"typeDisplay":                   "",
			"physicalTypeSystem":            SystemPhysicalType,
			"physicalTypeCode":              "",
			"physicalTypeDisplay":           "",
			"addressLine":                   "",
			"addressCity":                   "",
			"addressState":                  "",
			"addressPostalCode":             "",
			"addressCountry":                "",
			"phone":                         "",
			"email":                         "",
			"longitude":                     "",
			"latitude":                      "",
			"altitude":                      "",
			"managingOrganizationReference": "",
			"partOfReference":               "",
		},
		Extract: extractLocation,
		ToForm:  locationForm,
		Build:   buildLocation,
	}
}

type position struct {
	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

func locationPosition(doc fhir.Document) *position {
	var p position
	if !doc.Decode("position", &p) {
		return nil
	}
	return &p
}

func locationAddress(doc fhir.Document) *fhir.Address {
	var a fhir.Address
	if !doc.Decode("address", &a) {
		return nil
	}
	return &a
}

func optionalNumber(f *float64) string {
	if f == nil {
		return ""
	}
	return fhir.FormatNumber(*f)
}

func locationForm(doc fhir.Document) FormState {
	typ := codingOfFirst(doc, "type", SystemRoleCode, false)
	physical := codingOf(doc, "physicalType", SystemPhysicalType, false)
	telecom := doc.Telecoms("telecom")
	status := doc.String("status")
	if status == "" {
		status = "active"
	}
	mode := doc.String("mode")
	if mode == "" {
		mode = "instance"
	}
	form := FormState{
		"identifier":                    firstIdentifier(doc),
		"status":                        status,
		"name":                          doc.String("name"),
		"alias":                         joinList(doc.Strings("alias")),
		"description":                   doc.String("description"),
		"mode":                          mode,
		"typeSystem":                    typ.System,
		"typeCode":                      typ.Code,
		"typeDisplay":                   typ.Display,
		"physicalTypeSystem":            physical.System,
		"physicalTypeCode":              physical.Code,
		"physicalTypeDisplay":           physical.Display,
		"phone":                         telecomValue(telecom, "phone"),
		"email":                         telecomValue(telecom, "email"),
		"longitude":                     "",
		"latitude":                      "",
		"altitude":                      "",
		"managingOrganizationReference": refValue(doc, "managingOrganization"),
		"partOfReference":               refValue(doc, "partOf"),
	}
	flattenAddress(locationAddress(doc)).put(form)
	if p := locationPosition(doc); p != nil {
		form["longitude"] = optionalNumber(p.Longitude)
		form["latitude"] = optionalNumber(p.Latitude)
		form["altitude"] = optionalNumber(p.Altitude)
	}
	return form
}

func buildLocation(in *Input) (map[string]interface{}, error) {
	loc := map[string]interface{}{
		"resourceType": "Location",
		"identifier":   identifierList("http://example.org/location-ids", in.Str("identifier")),
		"name":         in.Str("name"),
	}
	put(loc, "status", in.Str("status"))
	put(loc, "alias", splitList(in.Str("alias")))
	put(loc, "description", in.Str("description"))
	put(loc, "mode", in.Str("mode"))
	if code := in.Str("typeCode"); code != "" {
		loc["type"] = conceptList(concept(in.Str("typeSystem"), code, in.Str("typeDisplay")))
	}
	if code := in.Str("physicalTypeCode"); code != "" {
		loc["physicalType"] = concept(in.Str("physicalTypeSystem"), code, in.Str("physicalTypeDisplay"))
	}
	put(loc, "address", readAddress(in).build())
	put(loc, "telecom", contactPoints("work", in.Str("phone"), in.Str("email"), ""))

	var pos position
	if v, ok := in.Float("longitude"); ok {
		pos.Longitude = &v
	}
	if v, ok := in.Float("latitude"); ok {
		pos.Latitude = &v
	}
	if v, ok := in.Float("altitude"); ok {
		pos.Altitude = &v
	}
	if pos.Longitude != nil || pos.Latitude != nil || pos.Altitude != nil {
		loc["position"] = pos
	}

	put(loc, "managingOrganization", reference("Organization", in.Str("managingOrganizationReference")))
	put(loc, "partOf", reference("Location", in.Str("partOfReference")))
	return loc, nil
}

type hoursOfOperation struct {
	DaysOfWeek  []string `json:"daysOfWeek,omitempty"`
	AllDay      bool     `json:"allDay,omitempty"`
	OpeningTime string   `json:"openingTime,omitempty"`
	ClosingTime string   `json:"closingTime,omitempty"`
}

func (h hoursOfOperation) label() string {
	days := strings.Join(h.DaysOfWeek, ", ")
	if h.AllDay {
		return joinNonEmpty(": ", days, "all day")
	}
	hours := ""
	if h.OpeningTime != "" || h.ClosingTime != "" {
		hours = h.OpeningTime + " - " + h.ClosingTime
	}
	return joinNonEmpty(": ", days, hours)
}

func extractLocation(x *Extraction, doc fhir.Document) {
	name := doc.String("name")
	if name == "" {
		name = "Unnamed Location"
	}
	x.SetTitle(name)
	x.Describe(doc.String("status"), addressLabel(locationAddress(doc)))

	x.Group("Location Information", func(g *Group) {
		g.Text("name", "Name", doc.String("name"))
		g.List("alias", "Aliases", doc.Strings("alias"))
		g.Text("description", "Description", doc.String("description"))
		g.Code("status", "Status", doc.String("status"))
		g.Code("mode", "Mode", doc.String("mode"))
		g.Concepts("type", "Type", doc.Concepts("type"))
		g.Concept("physicalType", "Physical Type", doc.Concept("physicalType"))
	})
	x.Group("Identifiers", func(g *Group) {
		g.List("identifier", "Identifiers", identifierLabels(doc.Identifiers()))
	})
	x.Group("Contact Information", func(g *Group) {
		g.List("telecom", "Telecom", contactLabels(doc.Telecoms("telecom")))
		g.Text("address", "Address", addressLabel(locationAddress(doc)))
	})
	x.Group("Geographic Position", func(g *Group) {
		if p := locationPosition(doc); p != nil {
			g.Text("longitude", "Longitude", optionalNumber(p.Longitude))
			g.Text("latitude", "Latitude", optionalNumber(p.Latitude))
			g.Text("altitude", "Altitude", optionalNumber(p.Altitude))
		}
	})
	x.Group("Managing Organization", func(g *Group) {
		g.Ref("managingOrganization", "Managing Organization", doc.Ref("managingOrganization"))
	})
	x.Group("Location Hierarchy", func(g *Group) {
		g.Ref("partOf", "Part Of", doc.Ref("partOf"))
	})
	x.Group("Hours of Operation", func(g *Group) {
		var hours []hoursOfOperation
		doc.Decode("hoursOfOperation", &hours)
		items := make([]string, 0, len(hours))
		for _, h := range hours {
			items = append(items, h.label())
		}
		g.List("hoursOfOperation", "Hours", items)
		g.Text("availabilityExceptions", "Exceptions", doc.String("availabilityExceptions"))
	})
}
