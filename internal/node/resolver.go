package node

import (
	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/value"
)

// Node implements value.Resolver and collection.Resolver so leaves and
// collections can reach across the tree (refer_to, follow_keys_from,
// replace_follow, compute variables) through weak lookup paths rather than
// an owning reference (spec.md §3's "relations + lookup paths, never
// ownership edges").

// walk descends from the tree root along path, returning the containing
// node and the final segment's slot (nil for an intermediate-only path),
// plus that segment's index expression if it had one.
func (n *Node) walk(path string) (cur *Node, s *slot, index string, hasIndex bool, err error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, nil, "", false, cfgerr.New(cfgerr.LoadError, path, "empty path")
	}

	cur = n.Root()
	for i, seg := range segs {
		name, idx, hasIdx := parseSegment(seg)
		elemSlot, ferr := cur.FetchElement(name, value.CheckSkip, true, true)
		if ferr != nil || elemSlot == nil {
			return nil, nil, "", false, cfgerr.New(cfgerr.UnknownElement, path, "no such element %q", name)
		}

		if i == len(segs)-1 {
			return cur, elemSlot, idx, hasIdx, nil
		}

		switch elemSlot.kind {
		case slotNode:
			cur = elemSlot.child
		case slotWarped:
			if elemSlot.warped.child == nil {
				return nil, nil, "", false, cfgerr.New(cfgerr.UnknownElement, path, "warped element %q has not selected a class yet", name)
			}
			cur = elemSlot.warped.child
		case slotCollection:
			if !hasIdx {
				return nil, nil, "", false, cfgerr.New(cfgerr.WrongType, path, "collection %q needs an index to descend through", name)
			}
			cargo, ok := elemSlot.coll.Peek(idx)
			if !ok {
				return nil, nil, "", false, cfgerr.New(cfgerr.UnknownId, path, "index %q not found in %q", idx, name)
			}
			nc, ok := cargo.(*nodeCargo)
			if !ok {
				return nil, nil, "", false, cfgerr.New(cfgerr.WrongType, path, "index %q of %q is not a node", idx, name)
			}
			cur = nc.n
		default:
			return nil, nil, "", false, cfgerr.New(cfgerr.WrongType, path, "element %q is not a node", name)
		}
	}
	return cur, nil, "", false, nil
}

// PathValue resolves path to its current user-mode value, for compute and
// migrate_from formula variables.
func (n *Node) PathValue(path string) (string, error) {
	cur, s, idx, hasIdx, err := n.walk(path)
	if err != nil {
		return "", err
	}
	if hasIdx {
		if s == nil || s.kind != slotCollection {
			return "", cfgerr.New(cfgerr.WrongType, path, "index used on a non-collection")
		}
		cargo, ok := s.coll.Peek(idx)
		if !ok {
			return "", cfgerr.New(cfgerr.UnknownId, path, "index %q not found", idx)
		}
		lc, ok := cargo.(*leafCargo)
		if !ok {
			return "", cfgerr.New(cfgerr.WrongType, path, "index %q is not a leaf", idx)
		}
		raw, _, ferr := lc.v.Fetch(lc.path, value.FetchUser)
		return raw, ferr
	}
	if s == nil || s.kind != slotValue || s.leaf == nil {
		return "", cfgerr.New(cfgerr.WrongType, path, "path does not resolve to a leaf")
	}
	raw, _, ferr := s.leaf.Fetch(cur.elementPath(s.def.Name), value.FetchUser)
	return raw, ferr
}

// LiveChoices resolves a refer_to/computed_refer_to path to the live index
// set of the collection it names.
func (n *Node) LiveChoices(path string) ([]string, error) {
	return n.LiveKeys(path)
}

// LiveKeys resolves follow_keys_from/allow_keys_from to the live index set
// of the collection path names.
func (n *Node) LiveKeys(path string) ([]string, error) {
	_, s, _, hasIdx, err := n.walk(path)
	if err != nil {
		return nil, err
	}
	if hasIdx || s == nil || s.kind != slotCollection {
		return nil, cfgerr.New(cfgerr.WrongType, path, "path does not resolve to a collection")
	}
	return s.coll.FetchAllIndexes(n.owner.CollectionMode())
}

// ReplaceFollow resolves replace_follow to a live index->value map, built
// from a hash of leaf cargo.
func (n *Node) ReplaceFollow(path string) (map[string]string, error) {
	_, s, _, hasIdx, err := n.walk(path)
	if err != nil {
		return nil, err
	}
	if hasIdx || s == nil || s.kind != slotCollection {
		return nil, cfgerr.New(cfgerr.WrongType, path, "replace_follow target is not a collection")
	}
	keys, err := s.coll.FetchAllIndexes(n.owner.CollectionMode())
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		cargo, ok := s.coll.Peek(k)
		if !ok {
			continue
		}
		lc, ok := cargo.(*leafCargo)
		if !ok {
			continue
		}
		raw, _, _ := lc.v.Fetch(lc.path, value.FetchUser)
		out[k] = raw
	}
	return out, nil
}
