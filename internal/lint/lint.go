// Package lint flags structural problems in a catalog that parse cleanly
// but describe an inconsistent schema: a default outside its own choice
// set, an accept regex no element name can ever reach, a duplicate class
// block. Grounded on the teacher's internal/linter/linter.go — the same
// tree-sitter-query diagnostic shape, retargeted from Go-AST nil-slice
// declarations to HCL catalog structure, using the HCL grammar the teacher
// already introspects elsewhere in its own test suite.
package lint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/hcl"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/catalog"
)

// Diagnostic is one lint finding, formatted the way the teacher's
// linter.Diagnostic renders (line, then message).
type Diagnostic struct {
	File    string
	Line    uint32 // 0-indexed
	Message string
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("line %d: %s", d.Line+1, d.Message)
	}
	return fmt.Sprintf("%s:%d: %s", d.File, d.Line+1, d.Message)
}

// dupClassQuery finds every top-level "class" block's name label, so
// CheckBytes can flag a catalog file declaring the same class twice.
const dupClassQuery = `
	(block
		(identifier) @kind
		(string_lit (template_literal) @name)
	) @block
`

// CheckBytes runs the tree-sitter structural pass over one HCL source
// file's raw content (duplicate class names within the file), matching
// the teacher's query-then-walk-captures technique.
func CheckBytes(content []byte, file string) ([]Diagnostic, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(hcl.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("lint: parse %s: %w", file, err)
	}
	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	q, err := sitter.NewQuery([]byte(dupClassQuery), hcl.GetLanguage())
	if err != nil {
		return nil, fmt.Errorf("lint: compile query: %w", err)
	}
	qc := sitter.NewQueryCursor()
	qc.Exec(q, root)

	seen := make(map[string]bool)
	var diags []Diagnostic
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		var kind, name string
		var line uint32
		for _, c := range m.Captures {
			switch q.CaptureNameForId(c.Index) {
			case "kind":
				kind = c.Node.Content(content)
			case "name":
				name = c.Node.Content(content)
				line = c.Node.StartPoint().Row
			}
		}
		if kind != "class" || name == "" {
			continue
		}
		if seen[name] {
			diags = append(diags, Diagnostic{File: file, Line: line, Message: fmt.Sprintf("duplicate class %q", name)})
		}
		seen[name] = true
	}
	return diags, nil
}

// CheckCatalog runs the semantic pass over an already-decoded catalog: a
// default outside its own choice set, an accept rule with an empty pattern
// (which matches every name), an accept pattern that does not compile, and
// an accept pattern that matches neither its template's name, "a", nor the
// empty string (flagged as possibly unreachable).
func CheckCatalog(cat *api.Catalog) []Diagnostic {
	var diags []Diagnostic
	names := make([]string, 0, len(cat.Classes))
	for name := range cat.Classes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		class := cat.Classes[name]
		for _, el := range class.Elements {
			diags = append(diags, checkElement(class.Name, el)...)
		}
		for _, acc := range class.Accept {
			if acc.Pattern == "" {
				diags = append(diags, Diagnostic{Message: fmt.Sprintf("class %q: accept rule has an empty pattern, matches every name including declared elements", class.Name)})
				continue
			}
			re, err := regexp.Compile(acc.Pattern)
			if err != nil {
				diags = append(diags, Diagnostic{Message: fmt.Sprintf("class %q: accept pattern %q does not compile: %v", class.Name, acc.Pattern, err)})
				continue
			}
			if !re.MatchString(acc.Template.Name) && acc.Template.Name != "" && !re.MatchString("a") && !re.MatchString("") {
				// Heuristic only: a pattern that matches neither the
				// template's own placeholder name nor any short probe
				// string is likely unreachable; real unreachability is
				// undecidable in general, so this never raises, only
				// flags for human review.
				diags = append(diags, Diagnostic{Message: fmt.Sprintf("class %q: accept pattern %q may be unreachable", class.Name, acc.Pattern)})
			}
		}
	}
	return diags
}

func checkElement(className string, el api.Element) []Diagnostic {
	var diags []Diagnostic
	choice := stringSliceParam(el.ValueParams, "choice")
	if len(choice) == 0 {
		return diags
	}
	choiceSet := make(map[string]bool, len(choice))
	for _, c := range choice {
		choiceSet[c] = true
	}
	if def, ok := el.ValueParams["default"].(string); ok && def != "" && !choiceSet[def] {
		diags = append(diags, Diagnostic{Message: fmt.Sprintf("class %q element %q: default %q is outside choice %v", className, el.Name, def, choice)})
	}
	if up, ok := el.ValueParams["upstream_default"].(string); ok && up != "" && !choiceSet[up] {
		diags = append(diags, Diagnostic{Message: fmt.Sprintf("class %q element %q: upstream_default %q is outside choice %v", className, el.Name, up, choice)})
	}
	return diags
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// CheckPath runs both passes over a catalog path, a single *.hcl file or a
// directory of them, matching cmd/check's single entry point.
func CheckPath(path string) ([]Diagnostic, error) {
	if path == "" {
		return nil, fmt.Errorf("lint: empty catalog path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var files []string
	if info.IsDir() {
		matches, gerr := filepath.Glob(filepath.Join(path, "*.hcl"))
		if gerr != nil {
			return nil, gerr
		}
		files = matches
	} else {
		files = []string{path}
	}
	sort.Strings(files)

	var diags []Diagnostic
	for _, f := range files {
		content, rerr := os.ReadFile(f)
		if rerr != nil {
			return nil, rerr
		}
		fileDiags, cerr := CheckBytes(content, f)
		if cerr != nil {
			return nil, cerr
		}
		diags = append(diags, fileDiags...)
	}

	var cat *api.Catalog
	if info.IsDir() {
		cat, err = catalog.LoadDir(path, "")
	} else {
		cat, err = catalog.LoadFile(path)
	}
	if err != nil {
		return diags, fmt.Errorf("lint: decode catalog: %w", err)
	}
	diags = append(diags, CheckCatalog(cat)...)
	return diags, nil
}
