// Package synthetic generates sample patients with related clinical
// resources and uploads them to the FHIR server as transaction bundles.
package synthetic

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/vincemic/ai-fhir-pit/internal/mapping"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// IdentifierSystem namespaces the SYNTH-nnnnnn patient identifiers.
const IdentifierSystem = "http://synthia.example.com/patient-id"

// MaxPatients bounds a single request.
const MaxPatients = 1000

var (
	givenNames  = []string{"John", "Jane", "Michael", "Sarah", "David", "Emily", "Robert", "Lisa"}
	familyNames = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis"}

	birthStart = time.Date(1950, time.January, 1, 0, 0, 0, 0, time.UTC)
	birthEnd   = time.Date(2005, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// DefaultResourceTypes are generated when a request names none.
var DefaultResourceTypes = []string{"Observation", "Condition"}

// Request describes one generation run. An empty Seed draws from the clock,
// so only seeded runs are reproducible.
type Request struct {
	PatientCount   int      `json:"patientCount"`
	ResourceTypes  []string `json:"resourceTypes"`
	IncludeRelated bool     `json:"includeRelatedResources"`
	Seed           string   `json:"seed,omitempty"`
}

// Validate checks the request bounds.
func (r Request) Validate() error {
	if r.PatientCount < 1 || r.PatientCount > MaxPatients {
		return fmt.Errorf("patientCount must be between 1 and %d", MaxPatients)
	}
	return nil
}

// Entry is one generated resource and its bundle fullUrl.
type Entry struct {
	FullURL  string        `json:"fullUrl"`
	Resource fhir.Document `json:"resource"`
}

// Group is a patient followed by the resources that reference it. A group is
// always uploaded within a single bundle.
type Group struct {
	Patient Entry   `json:"patient"`
	Related []Entry `json:"related,omitempty"`
}

// Entries returns the patient entry followed by its related entries.
func (g Group) Entries() []Entry {
	return append([]Entry{g.Patient}, g.Related...)
}

// Generator builds resources by filling forms for the mapper, so generated
// data has the same shape as data entered through the console.
type Generator struct {
	mapper *mapping.Mapper
	now    func() time.Time
}

func NewGenerator(mapper *mapping.Mapper, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{mapper: mapper, now: now}
}

type relatedForm func(g *generation, index int, patientURL string) (string, mapping.FormState)

var relatedForms = map[string]relatedForm{
	"Observation": func(g *generation, _ int, patient string) (string, mapping.FormState) {
		return "Observation", mapping.FormState{
			"codeValue":          "29463-7",
			"codeDisplay":        "Body Weight",
			"subjectReference":   patient,
			"valueQuantityValue": fmt.Sprint(50 + g.rng.Intn(50)),
			"valueQuantityUnit":  "kg",
			"effectiveDateTime":  g.timestamp(),
		}
	},
	"Condition": func(g *generation, _ int, patient string) (string, mapping.FormState) {
		return "Condition", mapping.FormState{
			"codeValue":        "44054006",
			"codeDisplay":      "Diabetes mellitus type 2",
			"subjectReference": patient,
			"recordedDate":     g.date(),
		}
	},
	"Encounter": func(g *generation, i int, patient string) (string, mapping.FormState) {
		return "Encounter", mapping.FormState{
			"identifier":   synthID(i) + "-ENC",
			"subject":      patient,
			"period_start": g.timestamp(),
			"typeCode":     "185349003",
			"typeDisplay":  "Encounter for check up",
		}
	},
	"Procedure": func(g *generation, _ int, patient string) (string, mapping.FormState) {
		return "Procedure", mapping.FormState{
			"codeValue":         "73761001",
			"codeDisplay":       "Colonoscopy",
			"subjectReference":  patient,
			"performedDateTime": g.date(),
		}
	},
	"MedicationStatement": func(g *generation, i int, patient string) (string, mapping.FormState) {
		return "MedicationStatement", mapping.FormState{
			"identifier":        synthID(i) + "-MED",
			"medicationCode":    "861007",
			"medicationDisplay": "Metformin hydrochloride 500 MG Oral Tablet",
			"subject":           patient,
			"effectiveDateTime": g.date(),
			"dosage":            "500 mg twice daily",
		}
	},
	"DiagnosticReport": func(g *generation, i int, patient string) (string, mapping.FormState) {
		return "DiagnosticReport", mapping.FormState{
			"identifier":        synthID(i) + "-DR",
			"category":          "HM",
			"code":              "58410-2",
			"codeDisplay":       "CBC panel - Blood by Automated count",
			"subject":           patient,
			"effectiveDateTime": g.timestamp(),
			"conclusion":        "Within normal limits",
		}
	},
	"Immunization": func(g *generation, i int, patient string) (string, mapping.FormState) {
		return "Immunization", mapping.FormState{
			"identifier":         synthID(i) + "-IMM",
			"vaccineCode":        "140",
			"vaccineDisplay":     "Influenza, seasonal, injectable, preservative free",
			"patient":            patient,
			"occurrenceDateTime": g.date(),
			"lotNumber":          fmt.Sprintf("LOT%04d", g.rng.Intn(10000)),
		}
	},
	"AllergyIntolerance": func(_ *generation, i int, patient string) (string, mapping.FormState) {
		return "AllergyIntolerance", mapping.FormState{
			"identifier":  synthID(i) + "-ALG",
			"code":        "91935009",
			"codeDisplay": "Allergy to peanuts",
			"patient":     patient,
		}
	},
}

// RelatedTypes lists the resource types that can be generated per patient,
// in generation order.
var RelatedTypes = []string{
	"Observation", "Condition", "Encounter", "Procedure",
	"MedicationStatement", "DiagnosticReport", "Immunization", "AllergyIntolerance",
}

type generation struct {
	rng *rand.Rand
	now time.Time
}

func (g *generation) date() string      { return g.now.Format("2006-01-02") }
func (g *generation) timestamp() string { return g.now.UTC().Format(time.RFC3339) }

func (g *generation) fullURL() (string, error) {
	id, err := uuid.NewRandomFromReader(g.rng)
	if err != nil {
		return "", fmt.Errorf("generate entry id: %w", err)
	}
	return "urn:uuid:" + id.String(), nil
}

func (g *generation) birthDate() string {
	span := birthEnd.Sub(birthStart)
	return birthStart.Add(time.Duration(g.rng.Int63n(int64(span)))).Format("2006-01-02")
}

// Generate builds req.PatientCount patient groups. Related resources are
// produced only with IncludeRelated, for the requested types this package
// knows how to generate; other requested types are ignored.
func (gen *Generator) Generate(req Request) ([]Group, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	g := &generation{rng: rand.New(rand.NewSource(seedValue(req.Seed, gen.now))), now: gen.now()}

	var related []string
	if req.IncludeRelated {
		types := req.ResourceTypes
		if len(types) == 0 {
			types = DefaultResourceTypes
		}
		wanted := make(map[string]bool, len(types))
		for _, t := range types {
			wanted[t] = true
		}
		for _, t := range RelatedTypes {
			if wanted[t] {
				related = append(related, t)
			}
		}
	}

	groups := make([]Group, 0, req.PatientCount)
	for i := 1; i <= req.PatientCount; i++ {
		patient, err := gen.patient(g, i)
		if err != nil {
			return nil, err
		}
		group := Group{Patient: patient}
		for _, t := range related {
			resourceType, form := relatedForms[t](g, i, patient.FullURL)
			entry, err := gen.entry(g, resourceType, form)
			if err != nil {
				return nil, err
			}
			group.Related = append(group.Related, entry)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (gen *Generator) patient(g *generation, index int) (Entry, error) {
	gender := "female"
	if index%2 == 0 {
		gender = "male"
	}
	entry, err := gen.entry(g, "Patient", mapping.FormState{
		"identifier": synthID(index),
		"family":     familyNames[index%len(familyNames)],
		"given":      givenNames[index%len(givenNames)],
		"gender":     gender,
		"birthDate":  g.birthDate(),
		"phone":      fmt.Sprintf("555-%04d", 1000+g.rng.Intn(9000)),
	})
	if err != nil {
		return Entry{}, err
	}
	entry.Resource["identifier"] = []interface{}{
		map[string]interface{}{"system": IdentifierSystem, "value": synthID(index)},
	}
	return entry, nil
}

func (gen *Generator) entry(g *generation, resourceType string, form mapping.FormState) (Entry, error) {
	doc, err := gen.mapper.ToResource(resourceType, form, mapping.ModeCreate, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("build %s: %w", resourceType, err)
	}
	url, err := g.fullURL()
	if err != nil {
		return Entry{}, err
	}
	return Entry{FullURL: url, Resource: doc}, nil
}

func synthID(index int) string {
	return fmt.Sprintf("SYNTH-%06d", index)
}

func seedValue(seed string, now func() time.Time) int64 {
	if seed == "" {
		return now().UnixNano()
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return int64(h.Sum64())
}
