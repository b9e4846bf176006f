package mapping

import (
	"sort"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// ExtractFunc fills the read-only field set of a resource.
type ExtractFunc func(x *Extraction, doc fhir.Document)

// ToFormFunc flattens a resource into its edit form.
type ToFormFunc func(doc fhir.Document) FormState

// BuildFunc assembles a resource from form input. Conversion failures are
// reported through in.Fail or Input.Float; the returned value is discarded
// when in.Err is set.
type BuildFunc func(in *Input) (map[string]interface{}, error)

// Entry is the mapping of one resource type.
type Entry struct {
	// Required lists the mandatory form fields in the order they are checked.
	Required []string
	// Defaults holds every form field with its create-flow value.
	Defaults FormState
	Extract  ExtractFunc
	ToForm   ToFormFunc
	Build    BuildFunc
}

// Registry maps resource types to their entries. It is not safe for
// concurrent Register calls; register everything before sharing it.
type Registry struct {
	entries  map[string]*Entry
	fallback *Entry
}

// NewRegistry returns a registry holding every built-in mapping.
func NewRegistry() *Registry {
	r := &Registry{
		entries:  make(map[string]*Entry),
		fallback: fallbackEntry(),
	}
	r.Register("Patient", patientEntry())
	r.Register("Practitioner", practitionerEntry())
	r.Register("Observation", observationEntry())
	r.Register("Condition", conditionEntry())
	r.Register("Procedure", procedureEntry())
	r.Register("Organization", organizationEntry())
	r.Register("Location", locationEntry())
	r.Register("Coverage", coverageEntry())
	r.Register("Encounter", encounterEntry())
	r.Register("MedicationStatement", medicationStatementEntry())
	r.Register("DiagnosticReport", diagnosticReportEntry())
	r.Register("Immunization", immunizationEntry())
	r.Register("AllergyIntolerance", allergyIntoleranceEntry())
	return r
}

// Register adds or replaces the mapping for resourceType.
func (r *Registry) Register(resourceType string, e Entry) {
	entry := e
	r.entries[resourceType] = &entry
}

// Lookup returns the entry for resourceType, or the raw JSON fallback and
// false when the type has no dedicated mapping.
func (r *Registry) Lookup(resourceType string) (*Entry, bool) {
	if e, ok := r.entries[resourceType]; ok {
		return e, true
	}
	return r.fallback, false
}

// Types returns the resource types with a dedicated mapping, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
