package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultCount = 20
	MaxCount     = 100
)

// Params holds the FHIR paging parameters of a search: _count is the page
// size and _skip the number of matches to pass over.
type Params struct {
	Count int
	Skip  int
}

// FromContext extracts paging parameters from the echo context. The plain
// count and skip names are accepted as aliases.
func FromContext(c echo.Context) Params {
	count, _ := strconv.Atoi(c.QueryParam("_count"))
	if count <= 0 {
		count, _ = strconv.Atoi(c.QueryParam("count"))
	}
	if count <= 0 {
		count = DefaultCount
	}
	if count > MaxCount {
		count = MaxCount
	}

	skip, _ := strconv.Atoi(c.QueryParam("_skip"))
	if skip <= 0 {
		skip, _ = strconv.Atoi(c.QueryParam("skip"))
	}
	if skip < 0 {
		skip = 0
	}

	return Params{Count: count, Skip: skip}
}

// Apply writes _count and _skip into q. Zero values are left out so the
// server applies its own defaults.
func (p Params) Apply(q url.Values) {
	if p.Count > 0 {
		q.Set("_count", strconv.Itoa(p.Count))
	}
	if p.Skip > 0 {
		q.Set("_skip", strconv.Itoa(p.Skip))
	}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Skip+p.Count < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Skip > 0
}

// Next returns the parameters of the following page.
func (p Params) Next() Params {
	return Params{Count: p.Count, Skip: p.Skip + p.Count}
}

// Previous returns the parameters of the preceding page, never skipping
// fewer than zero results.
func (p Params) Previous() Params {
	prev := p.Skip - p.Count
	if prev < 0 {
		prev = 0
	}
	return Params{Count: p.Count, Skip: prev}
}
