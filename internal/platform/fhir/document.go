package fhir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Document is an open FHIR resource as decoded from JSON. Only resourceType,
// id and meta have a fixed meaning; everything else is reached through the
// typed accessors below, which return a zero value or nil when the field is
// missing or has an unexpected shape instead of failing.
type Document map[string]interface{}

// ParseDocument decodes a JSON object into a Document. Numbers are kept as
// json.Number so re-encoding reproduces them exactly, including large
// integers and trailing zeros of decimals.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("resource is not a JSON object")
	}
	return doc, nil
}

// unmarshal is json.Unmarshal with UseNumber.
func unmarshal(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("invalid character after top-level value")
	}
	return nil
}

// Normalize converts any JSON-encodable value into a Document made only of
// maps, slices, strings, json.Number and bool.
func Normalize(v interface{}) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data)
}

func (d Document) ResourceType() string { return d.String("resourceType") }

func (d Document) ID() string { return d.String("id") }

// Meta returns the decoded meta element, or nil.
func (d Document) Meta() *Meta {
	var m Meta
	if !d.Decode("meta", &m) {
		return nil
	}
	return &m
}

// Has reports whether key is present with a non-null value.
func (d Document) Has(key string) bool {
	v, ok := d[key]
	return ok && v != nil
}

// String returns a string field. Numbers and booleans are rendered in their
// JSON form; anything else yields "".
func (d Document) String(key string) string {
	switch v := d[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Bool returns a boolean field and whether it was present as a boolean.
func (d Document) Bool(key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

// Number returns a numeric field and whether it was present as a number.
func (d Document) Number(key string) (float64, bool) {
	switch v := d[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Decode re-encodes the value under key into out. It returns false when the
// key is absent or the value does not fit out's shape.
func (d Document) Decode(key string, out interface{}) bool {
	v, ok := d[key]
	if !ok || v == nil {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return unmarshal(data, out) == nil
}

func (d Document) Object(key string) Document {
	var o Document
	if !d.Decode(key, &o) {
		return nil
	}
	return o
}

func (d Document) Objects(key string) []Document {
	var list []Document
	if !d.Decode(key, &list) {
		return nil
	}
	return list
}

func (d Document) Strings(key string) []string {
	var list []string
	if !d.Decode(key, &list) {
		return nil
	}
	return list
}

func (d Document) Concept(key string) *CodeableConcept {
	var c CodeableConcept
	if !d.Decode(key, &c) {
		return nil
	}
	return &c
}

func (d Document) Concepts(key string) []CodeableConcept {
	var list []CodeableConcept
	if !d.Decode(key, &list) {
		return nil
	}
	return list
}

// FirstConcept returns the first element of a CodeableConcept array, or nil.
func (d Document) FirstConcept(key string) *CodeableConcept {
	list := d.Concepts(key)
	if len(list) == 0 {
		return nil
	}
	return &list[0]
}

func (d Document) Ref(key string) *Reference {
	var r Reference
	if !d.Decode(key, &r) {
		return nil
	}
	return &r
}

func (d Document) Refs(key string) []Reference {
	var list []Reference
	if !d.Decode(key, &list) {
		return nil
	}
	return list
}

func (d Document) Period(key string) *Period {
	var p Period
	if !d.Decode(key, &p) {
		return nil
	}
	return &p
}

func (d Document) Quantity(key string) *Quantity {
	var q Quantity
	if !d.Decode(key, &q) {
		return nil
	}
	return &q
}

func (d Document) Range(key string) *Range {
	var r Range
	if !d.Decode(key, &r) {
		return nil
	}
	return &r
}

func (d Document) Identifiers() []Identifier {
	var list []Identifier
	if !d.Decode("identifier", &list) {
		return nil
	}
	return list
}

func (d Document) Names() []HumanName {
	var list []HumanName
	if !d.Decode("name", &list) {
		return nil
	}
	return list
}

func (d Document) Telecoms(key string) []ContactPoint {
	var list []ContactPoint
	if !d.Decode(key, &list) {
		return nil
	}
	return list
}

func (d Document) Addresses() []Address {
	var list []Address
	if !d.Decode("address", &list) {
		return nil
	}
	return list
}

func (d Document) Notes() []Annotation {
	var list []Annotation
	if !d.Decode("note", &list) {
		return nil
	}
	return list
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	c, err := Normalize(d)
	if err != nil {
		return Document{}
	}
	return c
}

// Pretty renders the document as indented JSON.
func (d Document) Pretty() string {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// References collects every distinct "reference" string found anywhere in
// the document, sorted, excluding references to the document itself.
func (d Document) References() []string {
	seen := make(map[string]bool)
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			if ref, ok := t["reference"].(string); ok && ref != "" {
				seen[ref] = true
			}
			for _, child := range t {
				walk(child)
			}
		case Document:
			walk(map[string]interface{}(t))
		case []interface{}:
			for _, child := range t {
				walk(child)
			}
		}
	}
	walk(map[string]interface{}(d))

	self := d.ResourceType() + "/" + d.ID()
	refs := make([]string, 0, len(seen))
	for ref := range seen {
		if d.ID() != "" && ref == self {
			continue
		}
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
