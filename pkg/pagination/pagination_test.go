package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))

	if p.Count != DefaultCount {
		t.Errorf("expected default count %d, got %d", DefaultCount, p.Count)
	}
	if p.Skip != 0 {
		t.Errorf("expected default skip 0, got %d", p.Skip)
	}
}

func TestFromContext_FHIRParams(t *testing.T) {
	p := FromContext(contextFor("/?_count=25&_skip=5"))

	if p.Count != 25 {
		t.Errorf("expected count 25, got %d", p.Count)
	}
	if p.Skip != 5 {
		t.Errorf("expected skip 5, got %d", p.Skip)
	}
}

func TestFromContext_Aliases(t *testing.T) {
	p := FromContext(contextFor("/?count=50&skip=10"))

	if p.Count != 50 || p.Skip != 10 {
		t.Errorf("expected 50/10, got %d/%d", p.Count, p.Skip)
	}
}

func TestFromContext_MaxCount(t *testing.T) {
	p := FromContext(contextFor("/?_count=500"))

	if p.Count != MaxCount {
		t.Errorf("expected count capped at %d, got %d", MaxCount, p.Count)
	}
}

func TestFromContext_NegativeSkip(t *testing.T) {
	p := FromContext(contextFor("/?_skip=-5"))

	if p.Skip != 0 {
		t.Errorf("expected negative skip to be clamped to 0, got %d", p.Skip)
	}
}

func TestApply(t *testing.T) {
	q := url.Values{}
	Params{Count: 10, Skip: 30}.Apply(q)
	if q.Get("_count") != "10" || q.Get("_skip") != "30" {
		t.Errorf("unexpected query %v", q)
	}

	q = url.Values{}
	Params{}.Apply(q)
	if len(q) != 0 {
		t.Errorf("expected zero params to be omitted, got %v", q)
	}
}

func TestNavigation(t *testing.T) {
	p := Params{Count: 20, Skip: 10}

	if !p.HasNext(50) {
		t.Error("expected a next page")
	}
	if p.HasNext(30) {
		t.Error("expected no next page")
	}
	if !p.HasPrevious() {
		t.Error("expected a previous page")
	}
	if n := p.Next(); n.Skip != 30 || n.Count != 20 {
		t.Errorf("unexpected next page %+v", n)
	}
	if prev := p.Previous(); prev.Skip != 0 {
		t.Errorf("expected previous skip clamped to 0, got %d", prev.Skip)
	}
}
