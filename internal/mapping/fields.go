package mapping

import (
	"strconv"
	"strings"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// FieldType tells a renderer how to present a field value.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldBoolean   FieldType = "boolean"
	FieldCode      FieldType = "code"
	FieldReference FieldType = "reference"
	FieldDate      FieldType = "date"
	FieldQuantity  FieldType = "quantity"
	FieldList      FieldType = "list"
)

type Field struct {
	Key   string    `json:"key"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
	Value string    `json:"value,omitempty"`
	Items []string  `json:"items,omitempty"`
}

type FieldGroup struct {
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// FieldSet is the read-only view of a resource: a summary line plus
// ordered groups of formatted fields.
type FieldSet struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Meta         *fhir.Meta   `json:"meta,omitempty"`
	Groups       []FieldGroup `json:"groups"`
	Raw          string       `json:"raw,omitempty"`
}

// Group returns the group with the given title, or nil.
func (s *FieldSet) Group(title string) *FieldGroup {
	for i := range s.Groups {
		if s.Groups[i].Title == title {
			return &s.Groups[i]
		}
	}
	return nil
}

// Field returns the first field with the given key in the group, or nil.
func (g *FieldGroup) Field(key string) *Field {
	if g == nil {
		return nil
	}
	for i := range g.Fields {
		if g.Fields[i].Key == key {
			return &g.Fields[i]
		}
	}
	return nil
}

// Extraction accumulates the field set for one resource.
type Extraction struct {
	set   *FieldSet
	dates fhir.DateFormatter
}

// SetTitle sets the summary title.
func (x *Extraction) SetTitle(title string) { x.set.Title = title }

// Describe joins the non-empty parts into the summary description.
func (x *Extraction) Describe(parts ...string) {
	x.set.Description = joinNonEmpty(" • ", parts...)
}

// FormatDate renders a FHIR date for a title or description.
func (x *Extraction) FormatDate(v string) string { return x.dates.FormatDate(v) }

// Group runs fill against a new group and keeps it when it received at
// least one field.
func (x *Extraction) Group(title string, fill func(g *Group)) {
	g := &Group{title: title, dates: x.dates}
	fill(g)
	if len(g.fields) > 0 {
		x.set.Groups = append(x.set.Groups, FieldGroup{Title: title, Fields: g.fields})
	}
}

// Group collects the fields of one display group. Every add method skips
// empty values.
type Group struct {
	title  string
	fields []Field
	dates  fhir.DateFormatter
}

func (g *Group) add(f Field) {
	if strings.TrimSpace(f.Value) == "" && len(f.Items) == 0 {
		return
	}
	g.fields = append(g.fields, f)
}

func (g *Group) Text(key, label, value string) {
	g.add(Field{Key: key, Label: label, Type: FieldText, Value: value})
}

func (g *Group) Code(key, label, value string) {
	g.add(Field{Key: key, Label: label, Type: FieldCode, Value: value})
}

func (g *Group) Concept(key, label string, c *fhir.CodeableConcept) {
	g.Code(key, label, fhir.CodeableConceptDisplay(c))
}

func (g *Group) Concepts(key, label string, list []fhir.CodeableConcept) {
	items := make([]string, 0, len(list))
	for i := range list {
		items = append(items, fhir.CodeableConceptDisplay(&list[i]))
	}
	g.List(key, label, items)
}

// Bool adds a boolean field when ok is true.
func (g *Group) Bool(key, label string, v, ok bool) {
	if !ok {
		return
	}
	g.add(Field{Key: key, Label: label, Type: FieldBoolean, Value: strconv.FormatBool(v)})
}

func (g *Group) Date(key, label, raw string) {
	if raw == "" {
		return
	}
	g.add(Field{Key: key, Label: label, Type: FieldDate, Value: g.dates.FormatDate(raw)})
}

func (g *Group) DateTime(key, label, raw string) {
	if raw == "" {
		return
	}
	g.add(Field{Key: key, Label: label, Type: FieldDate, Value: g.dates.FormatDateTime(raw)})
}

func (g *Group) Period(key, label string, p *fhir.Period) {
	g.add(Field{Key: key, Label: label, Type: FieldDate, Value: fhir.PeriodDisplayWith(p, g.dates.FormatDateTime)})
}

// Ref adds a reference field, appending the display text when the
// reference also carries one.
func (g *Group) Ref(key, label string, r *fhir.Reference) {
	g.add(Field{Key: key, Label: label, Type: FieldReference, Value: referenceLabel(r)})
}

func (g *Group) Refs(key, label string, list []fhir.Reference) {
	items := make([]string, 0, len(list))
	for i := range list {
		items = append(items, referenceLabel(&list[i]))
	}
	g.add(Field{Key: key, Label: label, Type: FieldReference, Items: compact(items)})
}

func (g *Group) Quantity(key, label string, q *fhir.Quantity) {
	g.add(Field{Key: key, Label: label, Type: FieldQuantity, Value: fhir.QuantityDisplay(q)})
}

func (g *Group) Range(key, label string, r *fhir.Range) {
	g.add(Field{Key: key, Label: label, Type: FieldQuantity, Value: fhir.RangeDisplay(r)})
}

func (g *Group) List(key, label string, items []string) {
	g.add(Field{Key: key, Label: label, Type: FieldList, Items: compact(items)})
}

func referenceLabel(r *fhir.Reference) string {
	if r == nil {
		return ""
	}
	if r.Reference != "" && r.Display != "" {
		return r.Display + " (" + r.Reference + ")"
	}
	return fhir.ReferenceDisplay(r)
}

func compact(items []string) []string {
	var out []string
	for _, s := range items {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	return strings.Join(compact(parts), sep)
}
