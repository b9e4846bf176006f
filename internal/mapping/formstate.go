package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
)

// FormState is the flat, editable view of a resource. Values are strings
// or booleans; numeric fields are carried as strings.
type FormState map[string]interface{}

// String returns the value under key as text. Booleans render as
// "true"/"false" and numbers in their shortest form.
func (f FormState) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return fhir.FormatNumber(v)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the value under key as a boolean. The string "true" counts
// as true, which is how HTML selects submit booleans.
func (f FormState) Bool(key string) bool {
	switch v := f[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

func (f FormState) Has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f FormState) Clone() FormState {
	out := make(FormState, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// withDefaults returns a copy of f where keys absent from f take the value
// from defaults. Keys present with an empty value are left alone.
func (f FormState) withDefaults(defaults FormState) FormState {
	out := f.Clone()
	for k, v := range defaults {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Mode says whether a build creates a new resource or edits an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCreate:
		return ModeCreate, nil
	case ModeEdit:
		return ModeEdit, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidMode, s)
}

// Input is what a builder reads a form through. It records the first
// conversion failure so builders can read fields without checking errors
// at every step; the mapper reports it after the builder returns.
type Input struct {
	resourceType string
	form         FormState
	now          time.Time
	err          error
}

func newInput(resourceType string, form FormState, now time.Time) *Input {
	return &Input{resourceType: resourceType, form: form, now: now}
}

// ResourceType is the type being built.
func (in *Input) ResourceType() string { return in.resourceType }

// Str returns the field value as text.
func (in *Input) Str(key string) string { return in.form.String(key) }

func (in *Input) Bool(key string) bool { return in.form.Bool(key) }

// Float parses a numeric field. An empty value reports false without error.
// NaN and infinities are rejected since JSON cannot carry them.
func (in *Input) Float(key string) (float64, bool) {
	raw := strings.TrimSpace(in.Str(key))
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		in.fail(&FieldError{Field: key, Value: raw, Err: ErrInvalidNumericField})
		return 0, false
	}
	return f, true
}

// Now is the build timestamp used for generated annotation times.
func (in *Input) Now() time.Time { return in.now }

// Fail records err unless an earlier failure is already recorded.
func (in *Input) Fail(err error) { in.fail(err) }

func (in *Input) Err() error { return in.err }

func (in *Input) fail(err error) {
	if in.err == nil {
		in.err = err
	}
}
