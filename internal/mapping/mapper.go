// Package mapping converts FHIR resources to and from the flat forms and
// read-only field sets the console presents. It performs no I/O and holds
// no mutable state after construction.
package mapping

import (
	"fmt"
	"strings"
	"time"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

type Mapper struct {
	registry *Registry
	dates    fhir.DateFormatter
	now      func() time.Time
}

type Option func(*Mapper)

// WithRegistry replaces the built-in registry.
func WithRegistry(r *Registry) Option {
	return func(m *Mapper) { m.registry = r }
}

// WithDateFormatter sets how dates are rendered in field sets.
func WithDateFormatter(f fhir.DateFormatter) Option {
	return func(m *Mapper) { m.dates = f }
}

// WithClock sets the clock used for generated annotation times.
func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

func New(opts ...Option) *Mapper {
	m := &Mapper{
		registry: NewRegistry(),
		dates:    fhir.NewLayoutFormatter(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Supported reports whether resourceType has a dedicated mapping.
func (m *Mapper) Supported(resourceType string) bool {
	_, ok := m.registry.Lookup(resourceType)
	return ok
}

// SupportedTypes lists the resource types with a dedicated mapping.
func (m *Mapper) SupportedTypes() []string { return m.registry.Types() }

// ExtractFields builds the read-only view of doc. It never fails; missing
// or malformed fields are left out.
func (m *Mapper) ExtractFields(doc fhir.Document) *FieldSet {
	rt := doc.ResourceType()
	set := &FieldSet{
		ResourceType: rt,
		ID:           doc.ID(),
		Meta:         doc.Meta(),
		Groups:       []FieldGroup{},
	}
	entry, ok := m.registry.Lookup(rt)
	x := &Extraction{set: set, dates: m.dates}
	entry.Extract(x, doc)
	if !ok {
		set.Raw = doc.Pretty()
	}
	if set.Title == "" {
		set.Title = defaultTitle(rt, doc.ID())
	}
	return set
}

// NewFormState returns the create-flow form for resourceType.
func (m *Mapper) NewFormState(resourceType string) FormState {
	entry, ok := m.registry.Lookup(resourceType)
	if !ok {
		return FormState{"resourceJson": fhir.Document{"resourceType": resourceType}.Pretty()}
	}
	return entry.Defaults.Clone()
}

// ToFormState flattens doc into its edit form.
func (m *Mapper) ToFormState(doc fhir.Document) FormState {
	entry, _ := m.registry.Lookup(doc.ResourceType())
	return entry.ToForm(doc)
}

// ToResource builds a resource of resourceType from form. Absent form keys
// take the type's defaults. In edit mode the result carries the id of
// existing, whatever the form says, and its meta when existing has one; a
// meta built from the form is kept only when existing has none. Any failure
// returns a nil document and an error wrapping ErrInvalidNumericField,
// ErrInvalidJSONPayload or ErrMissingRequiredField.
func (m *Mapper) ToResource(resourceType string, form FormState, mode Mode, existing fhir.Document) (fhir.Document, error) {
	if resourceType == "" {
		return nil, fmt.Errorf("resource type is required")
	}
	entry, _ := m.registry.Lookup(resourceType)
	filled := form.withDefaults(entry.Defaults)

	in := newInput(resourceType, filled, m.now())
	built, err := entry.Build(in)
	if err != nil {
		return nil, err
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	for _, key := range entry.Required {
		if strings.TrimSpace(filled.String(key)) == "" {
			return nil, missingField(key)
		}
	}

	doc, err := fhir.Normalize(built)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", resourceType, err)
	}
	if mode == ModeEdit && existing != nil {
		if id := existing.ID(); id != "" {
			doc["id"] = id
		} else {
			delete(doc, "id")
		}
		if meta, ok := existing["meta"]; ok && meta != nil {
			doc["meta"] = fhir.Document{"meta": meta}.Clone()["meta"]
		}
	}
	return doc, nil
}

func defaultTitle(resourceType, id string) string {
	if id == "" {
		return resourceType
	}
	return resourceType + " #" + id
}
