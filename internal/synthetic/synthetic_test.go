package synthetic

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/mapping"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newGenerator() *Generator {
	return NewGenerator(mapping.New(mapping.WithClock(clock)), clock)
}

func TestGenerate_Patients(t *testing.T) {
	groups, err := newGenerator().Generate(Request{PatientCount: 3, Seed: "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}

	first := groups[0].Patient.Resource
	if first.ResourceType() != "Patient" {
		t.Fatalf("expected Patient, got %q", first.ResourceType())
	}
	ids := first.Identifiers()
	if len(ids) != 1 || ids[0].Value != "SYNTH-000001" || ids[0].System != IdentifierSystem {
		t.Errorf("unexpected identifier %+v", ids)
	}
	names := first.Names()
	if len(names) != 1 || names[0].Family != "Johnson" || len(names[0].Given) != 1 || names[0].Given[0] != "Jane" {
		t.Errorf("unexpected name %+v", names)
	}
	if first.String("gender") != "female" {
		t.Errorf("expected odd index to be female, got %q", first.String("gender"))
	}
	if g := groups[1].Patient.Resource.String("gender"); g != "male" {
		t.Errorf("expected even index to be male, got %q", g)
	}
	if len(groups[0].Related) != 0 {
		t.Errorf("expected no related resources without IncludeRelated, got %d", len(groups[0].Related))
	}

	for _, g := range groups {
		dob, err := time.Parse("2006-01-02", g.Patient.Resource.String("birthDate"))
		if err != nil {
			t.Fatalf("bad birth date: %v", err)
		}
		if dob.Before(birthStart) || dob.After(birthEnd) {
			t.Errorf("birth date %v outside range", dob)
		}
		if !strings.HasPrefix(g.Patient.FullURL, "urn:uuid:") {
			t.Errorf("unexpected fullUrl %q", g.Patient.FullURL)
		}
	}
}

func TestGenerate_SeedIsReproducible(t *testing.T) {
	req := Request{PatientCount: 4, IncludeRelated: true, ResourceTypes: RelatedTypes, Seed: "repeat"}
	a, err := newGenerator().Generate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := newGenerator().Generate(req)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different data")
	}

	req.Seed = "other"
	c, _ := newGenerator().Generate(req)
	if reflect.DeepEqual(a, c) {
		t.Error("different seeds produced identical data")
	}
}

func TestGenerate_RelatedResources(t *testing.T) {
	groups, err := newGenerator().Generate(Request{
		PatientCount:   2,
		IncludeRelated: true,
		ResourceTypes:  []string{"Condition", "Observation", "Practitioner", "Immunization"},
		Seed:           "x",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	related := groups[0].Related
	var types []string
	for _, e := range related {
		types = append(types, e.Resource.ResourceType())
	}
	want := []string{"Observation", "Condition", "Immunization"}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("expected %v, got %v", want, types)
	}

	patientURL := groups[0].Patient.FullURL
	for _, e := range related {
		refs := e.Resource.References()
		if len(refs) != 1 || refs[0] != patientURL {
			t.Errorf("%s: expected reference to %s, got %v", e.Resource.ResourceType(), patientURL, refs)
		}
	}

	obs := related[0].Resource
	q := obs.Quantity("valueQuantity")
	if q == nil || q.Value == nil || *q.Value < 50 || *q.Value >= 100 || q.Unit != "kg" {
		t.Errorf("unexpected body weight %+v", q)
	}
	if c := obs.Concept("code").FirstCoding(); c == nil || c.Code != "29463-7" {
		t.Errorf("unexpected observation code %+v", c)
	}
	if c := related[1].Resource.Concept("code").FirstCoding(); c == nil || c.Code != "44054006" {
		t.Errorf("unexpected condition code %+v", c)
	}
}

func TestGenerate_AllRelatedTypesBuild(t *testing.T) {
	groups, err := newGenerator().Generate(Request{PatientCount: 1, IncludeRelated: true, ResourceTypes: RelatedTypes, Seed: "all"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups[0].Related) != len(RelatedTypes) {
		t.Errorf("expected %d related resources, got %d", len(RelatedTypes), len(groups[0].Related))
	}
}

func TestGenerate_DefaultTypes(t *testing.T) {
	groups, err := newGenerator().Generate(Request{PatientCount: 1, IncludeRelated: true, Seed: "d"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(groups[0].Related) != len(DefaultResourceTypes) {
		t.Errorf("expected default types, got %d related", len(groups[0].Related))
	}
}

func TestGenerate_InvalidCount(t *testing.T) {
	for _, n := range []int{0, -1, MaxPatients + 1} {
		if _, err := newGenerator().Generate(Request{PatientCount: n}); err == nil {
			t.Errorf("expected error for count %d", n)
		}
	}
}

func groupOf(size int) Group {
	g := Group{Patient: Entry{FullURL: "urn:uuid:p", Resource: fhir.Document{"resourceType": "Patient"}}}
	for i := 1; i < size; i++ {
		g.Related = append(g.Related, Entry{FullURL: "urn:uuid:r", Resource: fhir.Document{"resourceType": "Observation"}})
	}
	return g
}

func TestBatches_KeepGroupsTogether(t *testing.T) {
	groups := []Group{groupOf(3), groupOf(3), groupOf(3), groupOf(25), groupOf(1)}
	batches := Batches(groups, 7)

	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	want := []int{6, 3, 25, 1}
	if !reflect.DeepEqual(sizes, want) {
		t.Errorf("expected batch sizes %v, got %v", want, sizes)
	}
	for i, b := range batches {
		if b[0].Resource.ResourceType() != "Patient" {
			t.Errorf("batch %d does not start with a patient", i+1)
		}
	}
}

type fakePoster struct {
	bundles []*fhir.Bundle
	failOn  map[int]bool
}

func (f *fakePoster) Batch(_ context.Context, b *fhir.Bundle) (*fhir.Bundle, error) {
	f.bundles = append(f.bundles, b)
	if f.failOn[len(f.bundles)] {
		return nil, errors.New("server rejected bundle")
	}
	return &fhir.Bundle{ResourceType: "Bundle", Type: "transaction-response"}, nil
}

func TestUpload_BatchFailures(t *testing.T) {
	poster := &fakePoster{failOn: map[int]bool{2: true}}
	u := NewUploader(poster, 4, zerolog.Nop())
	u.now = clock

	var progress []int
	res := u.Upload(context.Background(), []Group{groupOf(2), groupOf(2), groupOf(3), groupOf(1)}, func(p int) {
		progress = append(progress, p)
	})

	if len(poster.bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(poster.bundles))
	}
	if poster.bundles[0].Type != fhir.BundleTypeTransaction {
		t.Errorf("expected transaction bundle, got %q", poster.bundles[0].Type)
	}
	if res.Success {
		t.Error("expected failure")
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "Batch 2 failed: ") {
		t.Errorf("unexpected errors %v", res.Errors)
	}
	if res.GeneratedCount != 4 || len(res.Resources) != 4 {
		t.Errorf("expected 4 uploaded resources, got %d/%d", res.GeneratedCount, len(res.Resources))
	}
	if !reflect.DeepEqual(progress, []int{50, 100}) {
		t.Errorf("unexpected progress %v", progress)
	}
}

func TestRun_Success(t *testing.T) {
	poster := &fakePoster{}
	u := NewUploader(poster, 0, zerolog.Nop())
	u.now = clock

	var last int
	res := u.Run(context.Background(), newGenerator(), Request{
		PatientCount: 5, IncludeRelated: true, ResourceTypes: []string{"Observation", "Condition"}, Seed: "run",
	}, func(p int) { last = p })

	if !res.Success || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.GeneratedCount != 15 {
		t.Errorf("expected 15 resources, got %d", res.GeneratedCount)
	}
	// 15 entries in groups of 3 fit one bundle of 20.
	if len(poster.bundles) != 1 || len(poster.bundles[0].Entry) != 15 {
		t.Errorf("unexpected bundles %d", len(poster.bundles))
	}
	entry := poster.bundles[0].Entry[0]
	if entry.Request == nil || entry.Request.Method != "POST" || entry.Request.URL != "Patient" {
		t.Errorf("unexpected entry request %+v", entry.Request)
	}
	if last != 100 {
		t.Errorf("expected final progress 100, got %d", last)
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	poster := &fakePoster{}
	u := NewUploader(poster, 0, zerolog.Nop())

	res := u.Run(context.Background(), newGenerator(), Request{PatientCount: 0}, nil)
	if res.Success || len(res.Errors) != 1 {
		t.Errorf("expected a single error, got %+v", res)
	}
	if len(poster.bundles) != 0 {
		t.Error("nothing should be uploaded")
	}
}
