package node

import (
	"strings"

	"github.com/agentic-research/configtree/internal/value"
)

// Gist resolves this node's class-level gist template (if any), and
// ElementGist resolves the template configured on a single element —
// substituting {elt}-style holes with each named sibling's fetched value
// (spec.md §4.3). Missing or errored elements substitute empty string
// rather than failing the whole render.
//
// text/template's {{ }} delimiters can be swapped to bare braces, but its
// action syntax still requires a leading "." for field/key access
// (".elt", not "elt") — incompatible with the catalog's bare-identifier
// hole syntax. A direct string-replace pass is used instead.

func (n *Node) Gist() string {
	return n.renderGist(n.gistOverride["*self*"], n.class.Gist)
}

// ElementGist resolves the gist template configured on a single element,
// most commonly a node-kind element summarizing its own sub-tree.
func (n *Node) ElementGist(name string) string {
	for _, el := range n.class.Elements {
		if el.Name == name {
			return n.renderGist(n.gistOverride[name], el.Gist)
		}
	}
	return ""
}

// DescribeAt resolves the gist of the element named by a dotted path from
// the tree root, descending through intermediate node elements along the
// way. An empty path describes the root itself. This is the primitive
// behind the agent-facing "describe" tool (internal/mcpserver).
func (n *Node) DescribeAt(path string) (string, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return n.Root().Gist(), nil
	}
	cur := n.Root()
	for i, seg := range segs {
		name, _, _ := parseSegment(seg)
		if i == len(segs)-1 {
			return cur.ElementGist(name), nil
		}
		child, err := cur.Child(name)
		if err != nil {
			return "", err
		}
		cur = child
	}
	return "", nil
}

func (n *Node) renderGist(override, fallback string) string {
	raw := fallback
	if override != "" {
		raw = override
	}
	if raw == "" {
		return ""
	}
	out := raw
	for _, hole := range holeNames(raw) {
		val, err := n.FetchLeaf(hole, value.FetchUser)
		if err != nil {
			val = ""
		}
		out = strings.ReplaceAll(out, "{"+hole+"}", val)
	}
	return out
}

// holeNames extracts the bare identifiers between { and } in raw.
func holeNames(raw string) []string {
	var out []string
	var cur strings.Builder
	inHole := false
	for _, r := range raw {
		switch {
		case r == '{':
			inHole = true
			cur.Reset()
		case r == '}':
			if inHole {
				out = append(out, cur.String())
			}
			inHole = false
		case inHole:
			cur.WriteRune(r)
		}
	}
	return out
}
