// Package backend implements instance.Backend: concrete read/write
// collaborators a tree's rw_config elements register against (spec.md §6).
// Both backends here persist the same shape — a flat dotted-path to raw
// string map covering only custom (non-default) leaf values — differing
// only in the storage medium.
package backend

import (
	"fmt"
	"strings"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/value"
)

// elementDef looks up name's declared shape on n's class: the one piece of
// catalog metadata (cargo_type) Node itself doesn't expose a getter for.
func elementDef(n *node.Node, name string) (api.Element, bool) {
	for _, el := range n.Class().Elements {
		if el.Name == name {
			return el, true
		}
	}
	return api.Element{}, false
}

func cargoIsNode(el api.Element) bool {
	cargoType, _ := el.CollectionParams["cargo_type"].(string)
	return cargoType == "node"
}

// flattenLeaves walks n collecting every leaf holding a custom value under
// its dotted path, recursing into child nodes and collection entries.
// Catalog defaults, computed values, and upstream fallbacks are never
// written back — a backend remembers overrides, not the whole resolved
// tree (spec.md §4.1's FetchCustom distinction).
func flattenLeaves(n *node.Node, prefix string, out map[string]string) error {
	for _, name := range n.Children(true) {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		kind, err := n.Kind(name)
		if err != nil {
			continue
		}
		switch kind {
		case api.ElementLeaf:
			raw, ferr := n.FetchLeaf(name, value.FetchCustom)
			if ferr != nil || raw == "" {
				continue
			}
			out[path] = raw
		case api.ElementNode, api.ElementWarped:
			child, cerr := n.Child(name)
			if cerr != nil {
				continue
			}
			if err := flattenLeaves(child, path, out); err != nil {
				return err
			}
		case api.ElementHash, api.ElementList, api.ElementCheckList:
			if err := flattenCollection(n, name, path, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func flattenCollection(n *node.Node, name, path string, out map[string]string) error {
	coll, err := n.Collection(name)
	if err != nil {
		return err
	}
	el, _ := elementDef(n, name)
	keys, ferr := coll.FetchAllIndexes(n.CollectionMode())
	if ferr != nil {
		return ferr
	}
	for _, k := range keys {
		entryPath := fmt.Sprintf("%s[%s]", path, k)
		if cargoIsNode(el) {
			child, cerr := n.CollectionCargoNode(name, k)
			if cerr != nil {
				continue
			}
			if err := flattenLeaves(child, entryPath, out); err != nil {
				return err
			}
			continue
		}
		v, vpath, lerr := n.CollectionCargoLeaf(name, k)
		if lerr != nil {
			continue
		}
		raw, _, ferr := v.Fetch(vpath, value.FetchCustom)
		if ferr != nil || raw == "" {
			continue
		}
		out[entryPath] = raw
	}
	return nil
}

// applyPath stores raw at path, a dotted element path with optional
// "[index]" collection suffixes (e.g. "database.tags[web]"), descending
// through node/collection boundaries as it goes.
func applyPath(root *node.Node, path, raw string) error {
	segs := strings.Split(path, ".")
	n := root
	for i, seg := range segs {
		name, idx, hasIdx := splitIndex(seg)
		last := i == len(segs)-1

		if hasIdx {
			if last {
				return n.StoreCollectionLeaf(name, idx, raw)
			}
			child, err := n.CollectionCargoNode(name, idx)
			if err != nil {
				return err
			}
			n = child
			continue
		}

		if last {
			return n.StoreLeaf(name, raw)
		}
		child, err := n.Child(name)
		if err != nil {
			return err
		}
		n = child
	}
	return nil
}

func splitIndex(seg string) (name, idx string, hasIdx bool) {
	i := strings.IndexByte(seg, '[')
	if i < 0 || !strings.HasSuffix(seg, "]") {
		return seg, "", false
	}
	return seg[:i], seg[i+1 : len(seg)-1], true
}
