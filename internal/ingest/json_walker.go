package ingest

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// JSONWalker implements Walker over data produced by encoding/json.Unmarshal
// into an `any`, for the Loader's "=.json(path!selector)" subaction.
type JSONWalker struct{}

func NewJsonWalker() *JSONWalker {
	return &JSONWalker{}
}

// Query implements Walker: selector is a JSONPath expression (spec.md's
// "=.json(path)" defaults it to "$", the whole document).
func (w *JSONWalker) Query(root any, selector string) ([]Match, error) {
	path, err := jp.ParseString(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath %q: %w", selector, err)
	}

	hits := path.Get(root)
	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = &projectionMatch{value: h}
	}
	return matches, nil
}

// projectionMatch wraps one jp.Get result. Shared between JSONWalker and
// YamlWalker since both decode into the same any-typed shape jp operates
// on; only the unmarshaler differs.
type projectionMatch struct {
	value any
}

// Values implements Match: an object match surfaces its own fields so a
// caller projecting into several sibling leaves can read them by name;
// anything else (string, number, bool, slice) has no fields of its own and
// is surfaced under the single key "value", which is also the key
// loadStructured (internal/loader/datasource.go) requires for a leaf store.
func (m *projectionMatch) Values() map[string]any {
	if obj, ok := m.value.(map[string]any); ok {
		return obj
	}
	return map[string]any{"value": m.value}
}

// Context implements Match.
func (m *projectionMatch) Context() any {
	return m.value
}
