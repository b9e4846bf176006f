package fhir

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// CodeableConceptDisplay renders a concept as text, then the first coding's
// display, then the first coding's code.
func CodeableConceptDisplay(c *CodeableConcept) string {
	if c == nil {
		return ""
	}
	if c.Text != "" {
		return c.Text
	}
	return CodingDisplay(c.FirstCoding())
}

// CodingDisplay renders a single coding as its display, else its code.
func CodingDisplay(c *Coding) string {
	if c == nil {
		return ""
	}
	if c.Display != "" {
		return c.Display
	}
	return c.Code
}

// PeriodDisplay renders a period from its raw endpoint strings.
func PeriodDisplay(p *Period) string {
	return PeriodDisplayWith(p, nil)
}

// PeriodDisplayWith renders a period, passing each endpoint through format
// when it is non-nil.
func PeriodDisplayWith(p *Period, format func(string) string) string {
	if p == nil {
		return ""
	}
	start, end := p.Start, p.End
	if format != nil {
		if start != "" {
			start = format(start)
		}
		if end != "" {
			end = format(end)
		}
	}
	switch {
	case start != "" && end != "":
		return start + " - " + end
	case start != "":
		return "From " + start
	case end != "":
		return "Until " + end
	}
	return ""
}

// QuantityDisplay renders "<value> <unit>", using code when unit is empty.
func QuantityDisplay(q *Quantity) string {
	if q == nil {
		return ""
	}
	value := ""
	if q.Value != nil {
		value = q.Comparator + FormatNumber(*q.Value)
	}
	unit := q.Unit
	if unit == "" {
		unit = q.Code
	}
	return strings.TrimSpace(value + " " + unit)
}

// RangeDisplay renders a range with "-" between both bounds, or "≥"/"≤"
// when only one bound is present.
func RangeDisplay(r *Range) string {
	if r == nil {
		return ""
	}
	low := QuantityDisplay(r.Low)
	high := QuantityDisplay(r.High)
	switch {
	case low != "" && high != "":
		return low + " - " + high
	case low != "":
		return "≥ " + low
	case high != "":
		return "≤ " + high
	}
	return ""
}

// PrefixReference turns a bare id into "<resourceType>/<id>". Values that
// already carry a type, and urn: or contained (#) references, are returned
// unchanged.
func PrefixReference(resourceType, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "/") || strings.HasPrefix(value, "urn:") || strings.HasPrefix(value, "#") {
		return value
	}
	return resourceType + "/" + value
}

// StripReferencePrefix removes a leading "<resourceType>/" from value.
func StripReferencePrefix(resourceType, value string) string {
	return strings.TrimPrefix(value, resourceType+"/")
}

// ReferenceDisplay renders a reference as its reference string, else its
// display text.
func ReferenceDisplay(r *Reference) string {
	if r == nil {
		return ""
	}
	if r.Reference != "" {
		return r.Reference
	}
	return r.Display
}

// FormatNumber renders a float in its shortest round-trip form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// CompactJSON renders any value as single-line JSON.
func CompactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// DateFormatter renders FHIR date and dateTime strings for display.
type DateFormatter interface {
	FormatDate(value string) string
	FormatDateTime(value string) string
}

var dateLayouts = []string{"2006-01-02", "2006-01", "2006"}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// LayoutFormatter is the default DateFormatter. Values it cannot parse are
// returned unchanged so that a non-empty input always renders non-empty.
type LayoutFormatter struct {
	DateLayout     string
	DateTimeLayout string
	Location       *time.Location
}

// NewLayoutFormatter returns a formatter rendering "Jan 2, 2006" and
// "Jan 2, 2006 15:04" in UTC.
func NewLayoutFormatter() *LayoutFormatter {
	return &LayoutFormatter{
		DateLayout:     "Jan 2, 2006",
		DateTimeLayout: "Jan 2, 2006 15:04",
		Location:       time.UTC,
	}
}

func (f *LayoutFormatter) FormatDate(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			switch layout {
			case "2006":
				return t.Format("2006")
			case "2006-01":
				return t.Format("Jan 2006")
			}
			return t.Format(f.DateLayout)
		}
	}
	if t, ok := f.parseDateTime(value); ok {
		return t.Format(f.DateLayout)
	}
	return value
}

func (f *LayoutFormatter) FormatDateTime(value string) string {
	if value == "" {
		return ""
	}
	if t, ok := f.parseDateTime(value); ok {
		return t.Format(f.DateTimeLayout)
	}
	return f.FormatDate(value)
}

func (f *LayoutFormatter) parseDateTime(value string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			if f.Location != nil {
				t = t.In(f.Location)
			}
			return t, true
		}
	}
	return time.Time{}, false
}
