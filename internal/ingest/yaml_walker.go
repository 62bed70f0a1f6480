package ingest

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// YamlWalker implements Walker over data decoded by gopkg.in/yaml.v3, for
// the Loader's "=.yaml(path!selector)" subaction. yaml.v3 decodes mappings
// as map[string]interface{} directly (unlike yaml.v2's
// map[interface{}]interface{}), so the same jp-based projection JSONWalker
// uses applies unchanged.
type YamlWalker struct{}

func NewYamlWalker() *YamlWalker {
	return &YamlWalker{}
}

// Query implements Walker.
func (w *YamlWalker) Query(root any, selector string) ([]Match, error) {
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
