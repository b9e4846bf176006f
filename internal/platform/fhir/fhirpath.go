package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
)

// Inspector evaluates FHIRPath expressions against documents. Compiled
// expressions are cached and the cache is safe for concurrent use.
type Inspector struct {
	mu    sync.RWMutex
	cache map[string]*fhirpath.Expression
}

func NewInspector() *Inspector {
	return &Inspector{cache: make(map[string]*fhirpath.Expression)}
}

// PathResult is the outcome of evaluating one expression.
type PathResult struct {
	Expression string   `json:"expression"`
	Values     []string `json:"values"`
	Truthy     bool     `json:"truthy"`
}

// Evaluate runs expression against doc and renders each result item as text.
func (i *Inspector) Evaluate(doc Document, expression string) (*PathResult, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("fhirpath: empty expression")
	}
	compiled, err := i.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	result, err := compiled.Evaluate(data)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expression, err)
	}

	out := &PathResult{Expression: expression, Values: make([]string, 0, len(result))}
	for _, v := range result {
		out.Values = append(out.Values, fmt.Sprint(v))
	}
	out.Truthy = truthy(result)
	return out, nil
}

// CacheSize returns the number of compiled expressions held.
func (i *Inspector) CacheSize() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.cache)
}

func (i *Inspector) compile(expression string) (*fhirpath.Expression, error) {
	i.mu.RLock()
	compiled, ok := i.cache[expression]
	i.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	i.cache[expression] = compiled
	i.mu.Unlock()
	return compiled, nil
}

// truthy applies FHIRPath truthiness: empty is false, a single boolean is
// its value, anything else is true.
func truthy(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}
