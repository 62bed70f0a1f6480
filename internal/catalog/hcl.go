// Package catalog loads ConfigClass definitions from HCL source, the one
// on-disk catalog format this repository ships (spec.md §6 leaves the
// format to backends; SPEC_FULL.md §6.1 picks HCL). It never touches a live
// tree — internal/node compiles the api.ConfigClass values this package
// produces into runtime Value/IdCollection specs.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/agentic-research/configtree/api"
)

// elementKinds maps the catalog's "kind" attribute to api.ElementKind.
var elementKinds = map[string]api.ElementKind{
	"leaf":        api.ElementLeaf,
	"hash":        api.ElementHash,
	"list":        api.ElementList,
	"check_list":  api.ElementCheckList,
	"node":        api.ElementNode,
	"warped_node": api.ElementWarped,
}

// ruleBlockKeys names the nested block types that accumulate into a
// []map[string]any parameter instead of a scalar, matching what
// internal/node's regexRuleList/assertRuleList/keyRegexRuleList expect.
var ruleBlockKeys = map[string]bool{
	"warn_if_match":         true,
	"warn_unless_match":     true,
	"assert":                true,
	"warn_if":               true,
	"warn_unless":           true,
	"help":                  true,
	"warn_if_key_match":     true,
	"warn_unless_key_match": true,
}

// LoadDir reads every *.hcl file in dir and merges their class definitions
// into one Catalog. root names the class of the tree root; if empty and
// exactly one class was loaded, that class becomes root.
func LoadDir(dir, root string) (*api.Catalog, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, fmt.Errorf("catalog dir %s: %w", dir, err)
	}
	sort.Strings(matches)
	cat := &api.Catalog{Classes: make(map[string]*api.ConfigClass)}
	for _, path := range matches {
		src, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, rerr
		}
		part, perr := parseSource(src, path)
		if perr != nil {
			return nil, perr
		}
		for name, class := range part.Classes {
			cat.Classes[name] = class
		}
	}
	cat.RootClass = root
	if cat.RootClass == "" && len(cat.Classes) == 1 {
		for name := range cat.Classes {
			cat.RootClass = name
		}
	}
	return cat, nil
}

// LoadFile parses one HCL catalog file.
func LoadFile(path string) (*api.Catalog, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseSource(src, path)
}

// LoadBytes parses HCL source held in memory, filename used only for
// diagnostics.
func LoadBytes(src []byte, filename string) (*api.Catalog, error) {
	return parseSource(src, filename)
}

func parseSource(src []byte, filename string) (*api.Catalog, error) {
	f, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := f.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("catalog %s: unexpected body type %T", filename, f.Body)
	}

	cat := &api.Catalog{Classes: make(map[string]*api.ConfigClass)}
	for _, block := range body.Blocks {
		if block.Type != "class" {
			return nil, fmt.Errorf("catalog %s:%d: unexpected top-level block %q, want \"class\"", filename, block.Range().Start.Line, block.Type)
		}
		if len(block.Labels) != 1 {
			return nil, fmt.Errorf("catalog %s:%d: class block requires exactly one label", filename, block.Range().Start.Line)
		}
		class, err := decodeClass(block)
		if err != nil {
			return nil, err
		}
		cat.Classes[class.Name] = class
	}
	if len(cat.Classes) == 1 {
		for name := range cat.Classes {
			cat.RootClass = name
		}
	}
	return cat, nil
}

func decodeClass(block *hclsyntax.Block) (*api.ConfigClass, error) {
	class := &api.ConfigClass{Name: block.Labels[0]}

	attrs, err := decodeAttrs(block.Body)
	if err != nil {
		return nil, fmt.Errorf("class %q: %w", class.Name, err)
	}
	class.Summary, _ = attrs["summary"].(string)
	class.Description, _ = attrs["description"].(string)
	class.Gist, _ = attrs["gist"].(string)

	for _, sub := range block.Body.Blocks {
		switch sub.Type {
		case "element":
			el, eerr := decodeElement(sub)
			if eerr != nil {
				return nil, fmt.Errorf("class %q: %w", class.Name, eerr)
			}
			class.Elements = append(class.Elements, *el)
		case "accept":
			rule, aerr := decodeAccept(sub)
			if aerr != nil {
				return nil, fmt.Errorf("class %q: %w", class.Name, aerr)
			}
			class.Accept = append(class.Accept, *rule)
		default:
			return nil, fmt.Errorf("class %q: unexpected block %q", class.Name, sub.Type)
		}
	}
	return class, nil
}

func decodeElement(block *hclsyntax.Block) (*api.Element, error) {
	if len(block.Labels) != 1 {
		return nil, fmt.Errorf("element block requires exactly one label (name)")
	}
	el := &api.Element{Name: block.Labels[0], Level: api.LevelNormal, Status: api.StatusStandard}

	attrs, err := decodeAttrs(block.Body)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", el.Name, err)
	}

	kindName, _ := attrs["kind"].(string)
	kind, ok := elementKinds[kindName]
	if !ok {
		return nil, fmt.Errorf("element %q: unknown kind %q", el.Name, kindName)
	}
	el.Kind = kind
	delete(attrs, "kind")

	el.Summary, _ = attrs["summary"].(string)
	el.Description, _ = attrs["description"].(string)
	el.Gist, _ = attrs["gist"].(string)
	delete(attrs, "summary")
	delete(attrs, "description")
	delete(attrs, "gist")

	if level, ok := attrs["level"].(string); ok {
		el.Level = api.Level(level)
		delete(attrs, "level")
	}
	if status, ok := attrs["status"].(string); ok {
		el.Status = api.Status(status)
		delete(attrs, "status")
	}

	for _, sub := range block.Body.Blocks {
		if ruleBlockKeys[sub.Type] {
			ruleAttrs, rerr := decodeAttrs(sub.Body)
			if rerr != nil {
				return nil, fmt.Errorf("element %q %s: %w", el.Name, sub.Type, rerr)
			}
			list, _ := attrs[sub.Type].([]map[string]any)
			attrs[sub.Type] = append(list, ruleAttrs)
			continue
		}
		if sub.Type == "rule" {
			continue // consumed by decodeWarp below
		}
		return nil, fmt.Errorf("element %q: unexpected block %q", el.Name, sub.Type)
	}

	switch el.Kind {
	case api.ElementNode:
		el.ClassName, _ = attrs["class"].(string)
	case api.ElementWarped:
		warp, werr := decodeWarp(block, attrs)
		if werr != nil {
			return nil, fmt.Errorf("element %q: %w", el.Name, werr)
		}
		el.WarpParams = warp
		el.ClassName, _ = attrs["default_class"].(string)
	case api.ElementHash, api.ElementList, api.ElementCheckList:
		el.CollectionParams = attrs
	default:
		el.ValueParams = attrs
	}
	return el, nil
}

// decodeWarp builds WarpParams from a warped_node element's "masters"
// attribute and "rule" sub-blocks. Rule conditions are declarative: an
// "equals" list positional against masters (empty string means "don't
// care" for that master), or no "equals" at all for an unconditional
// catch-all rule (which must be listed last).
func decodeWarp(block *hclsyntax.Block, attrs map[string]any) (*api.WarpParams, error) {
	masters := stringSlice(attrs["masters"])
	delete(attrs, "masters")
	delete(attrs, "default_class")

	warp := &api.WarpParams{Masters: masters}
	for _, sub := range block.Body.Blocks {
		if sub.Type != "rule" {
			continue
		}
		ruleAttrs, err := decodeAttrs(sub.Body)
		if err != nil {
			return nil, fmt.Errorf("rule: %w", err)
		}
		rule := api.WarpRule{}
		rule.ClassName, _ = ruleAttrs["class"].(string)
		if props, ok := ruleAttrs["set"].(map[string]any); ok {
			rule.SetProperties = props
		}
		if equalsRaw, ok := ruleAttrs["equals"]; ok {
			equals := stringSlice(equalsRaw)
			rule.Condition = func(masterValues []string) bool {
				for i, want := range equals {
					if want == "" {
						continue
					}
					if i >= len(masterValues) || masterValues[i] != want {
						return false
					}
				}
				return true
			}
		}
		warp.Rules = append(warp.Rules, rule)
	}
	return warp, nil
}

func decodeAccept(block *hclsyntax.Block) (*api.AcceptRule, error) {
	attrs, err := decodeAttrs(block.Body)
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	pattern, _ := attrs["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("accept: missing pattern")
	}
	if _, cerr := regexp.Compile(pattern); cerr != nil {
		return nil, fmt.Errorf("accept: pattern %q: %w", pattern, cerr)
	}
	rule := &api.AcceptRule{Pattern: pattern}
	rule.AcceptAfter, _ = attrs["after"].(string)

	for _, sub := range block.Body.Blocks {
		if sub.Type != "template" {
			continue
		}
		el, terr := decodeElement(&hclsyntax.Block{Type: "element", Labels: []string{"__accept_template__"}, Body: sub.Body})
		if terr != nil {
			return nil, fmt.Errorf("accept template: %w", terr)
		}
		rule.Template = *el
	}
	return rule, nil
}

// decodeAttrs converts every attribute of body into a Go-native map,
// evaluated with an empty context: catalog files describe static schema,
// never expressions referencing other attributes.
func decodeAttrs(body *hclsyntax.Body) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes))
	ctx := &hcl.EvalContext{}
	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(ctx)
		if diags.HasErrors() {
			return nil, diags
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = goVal
	}
	return out, nil
}

// ctyToGo converts a decoded cty.Value into the plain string/bool/
// float64/[]any/map[string]any shapes internal/node's param helpers
// expect.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	t := val.Type()
	switch {
	case t == cty.String:
		return val.AsString(), nil
	case t == cty.Bool:
		return val.True(), nil
	case t == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case t.IsListType(), t.IsTupleType(), t.IsSetType():
		var out []any
		it := val.ElementIterator()
		for it.Next() {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, gv)
		}
		return out, nil
	case t.IsMapType(), t.IsObjectType():
		out := make(map[string]any)
		it := val.ElementIterator()
		for it.Next() {
			kv, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[kv.AsString()] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported HCL value type %s", t.FriendlyName())
	}
}

func stringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
