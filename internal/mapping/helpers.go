package mapping

import (
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// Code systems used as defaults by the form builders.
const (
	SystemLOINC         = "http://loinc.org"
	SystemSNOMED        = "http://snomed.info/sct"
	SystemRxNorm        = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemCVX           = "http://hl7.org/fhir/sid/cvx"
	SystemUCUM          = "http://unitsofmeasure.org"
	SystemActCode       = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	SystemRoleCode      = "http://terminology.hl7.org/CodeSystem/v3-RoleCode"
	SystemOrgType       = "http://terminology.hl7.org/CodeSystem/organization-type"
	SystemPhysicalType  = "http://terminology.hl7.org/CodeSystem/location-physical-type"
	SystemDiagService   = "http://terminology.hl7.org/CodeSystem/v2-0074"
	SystemLanguage      = "urn:ietf:bcp:47"
	SystemContactEntity = "http://terminology.hl7.org/CodeSystem/contactentity-type"
)

// flatCoding is a coding as it appears in a form.
type flatCoding struct {
	System  string
	Code    string
	Display string
}

// flattenCoding turns the first coding of c into form values. The display
// falls back to the code. defaultSystem applies when the coding has no
// system; when optional is set it applies only if a code is present, so an
// empty optional concept stays entirely empty.
func flattenCoding(c *fhir.CodeableConcept, defaultSystem string, optional bool) flatCoding {
	var out flatCoding
	if first := c.FirstCoding(); first != nil {
		out = flatCoding{System: first.System, Code: first.Code, Display: first.Display}
	}
	if out.Display == "" {
		out.Display = out.Code
	}
	if out.System == "" && (!optional || out.Code != "") {
		out.System = defaultSystem
	}
	return out
}

// codingOf reads the first coding of the concept under key.
func codingOf(doc fhir.Document, key, defaultSystem string, optional bool) flatCoding {
	return flattenCoding(doc.Concept(key), defaultSystem, optional)
}

// codingOfFirst reads the first coding of the first concept in the list
// under key.
func codingOfFirst(doc fhir.Document, key, defaultSystem string, optional bool) flatCoding {
	return flattenCoding(doc.FirstConcept(key), defaultSystem, optional)
}

// concept builds a single-coding CodeableConcept. Empty parts are omitted
// and the display falls back to the code.
func concept(system, code, display string) *fhir.CodeableConcept {
	if display == "" {
		display = code
	}
	return &fhir.CodeableConcept{Coding: []fhir.Coding{{System: system, Code: code, Display: display}}}
}

// optionalConcept builds a concept only when code is set, using
// defaultSystem when system is empty.
func optionalConcept(system, defaultSystem, code, display string) *fhir.CodeableConcept {
	if code == "" {
		return nil
	}
	if system == "" {
		system = defaultSystem
	}
	return concept(system, code, display)
}

// reference builds a Reference with idempotent type prefixing, or nil for
// an empty value.
func reference(resourceType, value string) *fhir.Reference {
	ref := fhir.PrefixReference(resourceType, value)
	if ref == "" {
		return nil
	}
	return &fhir.Reference{Reference: ref}
}

// rawReference builds a Reference without prefixing.
func rawReference(value string) *fhir.Reference {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &fhir.Reference{Reference: value}
}

func refValue(doc fhir.Document, key string) string {
	if r := doc.Ref(key); r != nil {
		return r.Reference
	}
	return ""
}

func firstRefValue(doc fhir.Document, key string) string {
	if list := doc.Refs(key); len(list) > 0 {
		return list[0].Reference
	}
	return ""
}

func identifierList(system, value string) []fhir.Identifier {
	return []fhir.Identifier{{System: system, Value: value}}
}

func firstIdentifier(doc fhir.Document) string {
	if ids := doc.Identifiers(); len(ids) > 0 {
		return ids[0].Value
	}
	return ""
}

// activeFlag reads a boolean field that defaults to true when absent.
func activeFlag(doc fhir.Document, key string) bool {
	if v, ok := doc.Bool(key); ok {
		return v
	}
	return true
}

// telecomValue returns the value of the first contact point with system.
func telecomValue(list []fhir.ContactPoint, system string) string {
	for _, cp := range list {
		if cp.System == system {
			return cp.Value
		}
	}
	return ""
}

// contactPoints builds phone, email and url contact points from the
// non-empty values, in that order.
func contactPoints(use, phone, email, url string) []fhir.ContactPoint {
	var out []fhir.ContactPoint
	if phone != "" {
		out = append(out, fhir.ContactPoint{System: "phone", Value: phone, Use: use})
	}
	if email != "" {
		out = append(out, fhir.ContactPoint{System: "email", Value: email, Use: use})
	}
	if url != "" {
		out = append(out, fhir.ContactPoint{System: "url", Value: url, Use: use})
	}
	return out
}

// addressForm holds the flattened parts of one address.
type addressForm struct {
	Line, City, State, PostalCode, Country string
}

func flattenAddress(a *fhir.Address) addressForm {
	if a == nil {
		return addressForm{}
	}
	return addressForm{
		Line:       strings.Join(a.Line, ", "),
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func readAddress(in *Input) addressForm {
	return addressForm{
		Line:       in.Str("addressLine"),
		City:       in.Str("addressCity"),
		State:      in.Str("addressState"),
		PostalCode: in.Str("addressPostalCode"),
		Country:    in.Str("addressCountry"),
	}
}

func (a addressForm) put(form FormState) {
	form["addressLine"] = a.Line
	form["addressCity"] = a.City
	form["addressState"] = a.State
	form["addressPostalCode"] = a.PostalCode
	form["addressCountry"] = a.Country
}

// build returns a work/physical address, or nil when every part is empty.
func (a addressForm) build() *fhir.Address {
	addr := &fhir.Address{
		Use:        "work",
		Type:       "physical",
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
	if a.Line != "" {
		addr.Line = []string{a.Line}
	}
	if addr.IsEmpty() {
		return nil
	}
	return addr
}

func firstAddress(doc fhir.Document) *fhir.Address {
	if list := doc.Addresses(); len(list) > 0 {
		return &list[0]
	}
	return nil
}

func firstName(doc fhir.Document) *fhir.HumanName {
	if names := doc.Names(); len(names) > 0 {
		return &names[0]
	}
	return nil
}

// splitWords splits on whitespace, dropping empty parts.
func splitWords(s string) []string {
	return strings.Fields(s)
}

// splitList splits a comma separated list, trimming and dropping empties.
// A value containing a newline is split on newlines only, so items may
// hold commas.
func splitList(s string) []string {
	sep := ","
	if strings.Contains(s, "\n") {
		sep = "\n"
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// joinList is the inverse of splitList. Items containing a comma switch the
// whole list to one item per line, with a trailing newline so a single item
// still reads as a line list.
func joinList(items []string) string {
	for _, item := range items {
		if strings.Contains(item, ",") {
			return strings.Join(items, "\n") + "\n"
		}
	}
	return strings.Join(items, ", ")
}

func firstNoteText(doc fhir.Document) string {
	if notes := doc.Notes(); len(notes) > 0 {
		return notes[0].Text
	}
	return ""
}

// put sets key on m when value is a non-empty string, a non-nil pointer or
// a non-empty slice.
func put(m map[string]interface{}, key string, value interface{}) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return
		}
	case *fhir.CodeableConcept:
		if v == nil {
			return
		}
	case *fhir.Reference:
		if v == nil {
			return
		}
	case *fhir.Period:
		if v == nil {
			return
		}
	case *fhir.Address:
		if v == nil {
			return
		}
	case *fhir.Quantity:
		if v == nil {
			return
		}
	case []fhir.CodeableConcept:
		if len(v) == 0 {
			return
		}
	case []fhir.Reference:
		if len(v) == 0 {
			return
		}
	case []fhir.ContactPoint:
		if len(v) == 0 {
			return
		}
	case []fhir.Address:
		if len(v) == 0 {
			return
		}
	case []fhir.Annotation:
		if len(v) == 0 {
			return
		}
	case []string:
		if len(v) == 0 {
			return
		}
	case []map[string]interface{}:
		if len(v) == 0 {
			return
		}
	case map[string]interface{}:
		if len(v) == 0 {
			return
		}
	case nil:
		return
	}
	m[key] = value
}

// period returns a period from the two values, or nil when both are empty.
func period(start, end string) *fhir.Period {
	if start == "" && end == "" {
		return nil
	}
	return &fhir.Period{Start: start, End: end}
}

// note returns a single timestamped annotation, or nil for empty text.
func note(in *Input, text string) []fhir.Annotation {
	if text == "" {
		return nil
	}
	return []fhir.Annotation{{Text: text, Time: in.Now().UTC().Format("2006-01-02T15:04:05Z")}}
}

// simpleNote returns an untimed annotation, or nil for empty text.
func simpleNote(text string) []fhir.Annotation {
	if text == "" {
		return nil
	}
	return []fhir.Annotation{{Text: text}}
}

func conceptList(c *fhir.CodeableConcept) []fhir.CodeableConcept {
	if c == nil {
		return nil
	}
	return []fhir.CodeableConcept{*c}
}

func referenceList(r *fhir.Reference) []fhir.Reference {
	if r == nil {
		return nil
	}
	return []fhir.Reference{*r}
}
