package loader

import (
	"fmt"
	"strings"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/value"
)

// Dump renders n's live tree back into the command DSL, satisfying spec.md
// §6/§8's round-trip property: load(Dump(n)) reproduces n's user-set
// values, up to element order. Leaves are read in user mode, so a value
// that comes from a preset, computed, layered or default source is
// emitted as well; only leaves that read empty are left out.
func Dump(n *node.Node) string {
	var b strings.Builder
	dumpNode(&b, n)
	return strings.TrimSpace(b.String())
}

func dumpNode(b *strings.Builder, n *node.Node) {
	for _, name := range n.Children(false) {
		kind, err := n.Kind(name)
		if err != nil {
			continue
		}
		switch kind {
		case api.ElementLeaf:
			dumpLeaf(b, n, name)
		case api.ElementHash, api.ElementList, api.ElementCheckList:
			dumpCollection(b, n, name)
		case api.ElementNode, api.ElementWarped:
			dumpChild(b, n, name)
		}
	}
}

func dumpLeaf(b *strings.Builder, n *node.Node, name string) {
	raw, err := n.FetchLeaf(name, value.FetchUser)
	if err != nil || raw == "" {
		return
	}
	fmt.Fprintf(b, "%s=%s ", name, quoteToken(raw))
}

func dumpChild(b *strings.Builder, n *node.Node, name string) {
	child, err := n.Child(name)
	if err != nil {
		return
	}
	var inner strings.Builder
	dumpNode(&inner, child)
	if inner.Len() == 0 {
		return
	}
	fmt.Fprintf(b, "%s %s- ", name, inner.String())
}

func dumpCollection(b *strings.Builder, n *node.Node, name string) {
	coll, err := n.Collection(name)
	if err != nil {
		return
	}
	keys, err := coll.FetchAllIndexes(0)
	if err != nil {
		return
	}
	for _, k := range keys {
		if child, cerr := n.CollectionCargoNode(name, k); cerr == nil {
			var inner strings.Builder
			dumpNode(&inner, child)
			if inner.Len() == 0 {
				continue
			}
			fmt.Fprintf(b, "%s:%s %s- ", name, quoteToken(k), inner.String())
			continue
		}
		raw, ferr := n.FetchCollectionLeaf(name, k, value.FetchUser)
		if ferr != nil || raw == "" {
			continue
		}
		fmt.Fprintf(b, "%s:%s=%s ", name, quoteToken(k), quoteToken(raw))
	}
}

// quoteToken wraps tok in double quotes, escaping embedded quotes and
// backslashes, whenever it contains whitespace or a grammar delimiter
// that the scanner would otherwise treat as a boundary.
func quoteToken(tok string) string {
	if tok != "" && !strings.ContainsAny(tok, " \t\n\r:=~#\"") {
		return tok
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range tok {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
