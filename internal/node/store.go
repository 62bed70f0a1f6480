package node

import (
	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/collection"
	"github.com/agentic-research/configtree/internal/value"
)

// leafSlot resolves name to a leaf slot, failing with WrongType if the
// element exists but is some other kind.
func (n *Node) leafSlot(name string) (*slot, error) {
	s, err := n.FetchElement(name, value.CheckYes, true, false)
	if err != nil {
		return nil, err
	}
	if s.kind != slotValue {
		return nil, cfgerr.New(cfgerr.WrongType, n.elementPath(name), "element %q is not a leaf", name)
	}
	if s.compileErr != nil {
		return nil, s.compileErr
	}
	return s, nil
}

// StoreLeaf implements the Loader's "leaf with =v" command and any other
// direct write into a leaf, centralizing the initial-load-mode decision
// (spec.md §5, §9: "implementers must centralize the decision in one
// function").
func (n *Node) StoreLeaf(name, raw string) error {
	s, err := n.leafSlot(name)
	if err != nil {
		return err
	}
	return n.storeValue(s.leaf, n.elementPath(name), raw)
}

// storeValue is the single place spec.md §9 requires the initial-load-mode
// decision to live: every write into a *value.Value, whether it backs a
// declared leaf element or a collection cargo entry, funnels through here.
func (n *Node) storeValue(v *value.Value, path, raw string) error {
	mode, check := n.owner.ValueMode(), n.owner.Check()
	silent := mode == value.ModeInitialLoad
	storeMode := value.ModeNormal
	if mode == value.ModePreset {
		storeMode = value.ModePreset
	} else if mode == value.ModeLayered {
		storeMode = value.ModeLayered
	}

	result, serr := v.Store(path, storeMode, raw, check, silent)
	if serr != nil {
		return serr
	}
	for _, w := range result.Emitted {
		n.owner.LogWarning(path, w.Message, w.Repeat)
	}
	if result.SoftError != nil {
		n.owner.RecordChange(path, "soft error: "+result.SoftError.Error(), result.Old, result.New)
		n.owner.RecordError(path, result.SoftError)
	}
	if !result.Changed {
		return nil
	}
	conflict := mode == value.ModeInitialLoad && n.initialLoadConflict(path, result.Old, result.New)
	if mode != value.ModeInitialLoad || result.Transformed || conflict {
		note := result.Note
		if conflict {
			note = conflictNote(note)
		}
		n.owner.RecordChange(path, note, result.Old, result.New)
	}
	return n.owner.Warps().NotifyChanged(path)
}

// initialLoadConflict reports whether path has already been stored once
// during this initial-load pass with a value other than new — the other
// suppression exception spec.md §9 names besides "store happened during
// initial load": "two consecutive stores produce a conflict" always force
// a change-log entry even though the pass as a whole stays silent.
func (n *Node) initialLoadConflict(path, old, new string) bool {
	if n.initialLoadSeen == nil {
		n.initialLoadSeen = make(map[string]bool)
		n.initialLoadFirst = make(map[string]string)
	}
	if !n.initialLoadSeen[path] {
		n.initialLoadSeen[path] = true
		n.initialLoadFirst[path] = new
		return false
	}
	first := n.initialLoadFirst[path]
	return first != new
}

func conflictNote(note string) string {
	if note == "" {
		return "conflicting initial-load store"
	}
	return "conflicting initial-load store: " + note
}

// clearValue is storeValue's counterpart for the "~" clear action.
func (n *Node) clearValue(v *value.Value, path string) error {
	result := v.Clear(path)
	if !result.Changed {
		return nil
	}
	if n.owner.ValueMode() != value.ModeInitialLoad {
		n.owner.RecordChange(path, "cleared", result.Old, result.New)
	}
	return n.owner.Warps().NotifyChanged(path)
}

// AppendLeaf implements the Loader's ".=v" command: fetch the current
// user value, concatenate, and store.
func (n *Node) AppendLeaf(name, suffix string) error {
	s, err := n.leafSlot(name)
	if err != nil {
		return err
	}
	path := n.elementPath(name)
	current, _, ferr := s.leaf.Fetch(path, value.FetchUser)
	if ferr != nil {
		return ferr
	}
	return n.StoreLeaf(name, current+suffix)
}

// FetchLeaf implements the Loader/consumer read path for a named leaf.
func (n *Node) FetchLeaf(name string, mode value.FetchMode) (string, error) {
	s, err := n.leafSlot(name)
	if err != nil {
		return "", err
	}
	raw, _, ferr := s.leaf.Fetch(n.elementPath(name), mode)
	return raw, ferr
}

// ClearLeaf implements the Loader's "~" command: store null, restoring
// precedence to the next lower source.
func (n *Node) ClearLeaf(name string) error {
	s, err := n.leafSlot(name)
	if err != nil {
		return err
	}
	return n.clearValue(s.leaf, n.elementPath(name))
}

// StoreCollectionLeaf writes into a hash-of-values/list-of-values entry,
// autovivifying it first if the schema allows (spec.md §4.4's ":id =v"
// inline leaf-cargo form).
func (n *Node) StoreCollectionLeaf(collName, index, raw string) error {
	v, _, err := n.CollectionCargoLeaf(collName, index)
	if err != nil {
		return err
	}
	return n.storeValue(v, n.elementPath(collName)+"["+index+"]", raw)
}

// ClearCollectionLeaf is StoreCollectionLeaf's "~" counterpart.
func (n *Node) ClearCollectionLeaf(collName, index string) error {
	v, _, err := n.CollectionCargoLeaf(collName, index)
	if err != nil {
		return err
	}
	return n.clearValue(v, n.elementPath(collName)+"["+index+"]")
}

// FetchCollectionLeaf is CollectionCargoLeaf's read-path counterpart,
// returning the raw fetched value rather than the *value.Value handle.
func (n *Node) FetchCollectionLeaf(collName, index string, mode value.FetchMode) (string, error) {
	v, path, err := n.CollectionCargoLeaf(collName, index)
	if err != nil {
		return "", err
	}
	raw, _, ferr := v.Fetch(path, mode)
	return raw, ferr
}

// ApplyFixes implements spec.md §4.1's apply_fixes, invoked by the Loader
// or a backend after a bulk read to auto-repair warn_if_match/assert
// violations that carry a fix closure.
func (n *Node) ApplyFixes(name string) error {
	s, err := n.leafSlot(name)
	if err != nil {
		return err
	}
	path := n.elementPath(name)
	result, ferr := s.leaf.ApplyFixes(path, value.ModeNormal)
	if ferr != nil {
		return ferr
	}
	if !result.Changed {
		return nil
	}
	n.owner.RecordChange(path, result.Note, result.Old, result.New)
	return n.owner.Warps().NotifyChanged(path)
}

// ResetInitialLoadTracking forgets every path's first-seen-this-pass value,
// recursively across already-built children and collection entries. Instance
// calls this from InitialLoadStart so a conflict can only be detected
// between two stores within the same initial-load pass, never across two
// separate passes over the same tree.
func (n *Node) ResetInitialLoadTracking() {
	n.initialLoadSeen = nil
	n.initialLoadFirst = nil
	for _, name := range n.order {
		s := n.elements[name]
		if s == nil {
			continue
		}
		switch s.kind {
		case slotCollection:
			if s.coll == nil {
				continue
			}
			keys, err := s.coll.FetchAllIndexes(n.owner.CollectionMode())
			if err != nil {
				continue
			}
			for _, k := range keys {
				cargo, ok := s.coll.Peek(k)
				if !ok {
					continue
				}
				if nc, ok := cargo.(*nodeCargo); ok {
					nc.n.ResetInitialLoadTracking()
				}
			}
		case slotNode:
			if s.child != nil {
				s.child.ResetInitialLoadTracking()
			}
		case slotWarped:
			if s.warped != nil && s.warped.child != nil {
				s.warped.child.ResetInitialLoadTracking()
			}
		}
	}
}

// CollectionMode reports the DataMode the owning Instance is currently in,
// for Loader collection methods (push/unshift/insert_at/...) that
// autovivify entries outside of Collection.Get's own path.
func (n *Node) CollectionMode() collection.DataMode {
	return n.owner.CollectionMode()
}

// Collection resolves name to its *collection.IdCollection, for the
// Loader's :id / :.push / :.sort / ... dispatch.
func (n *Node) Collection(name string) (*collection.IdCollection, error) {
	s, err := n.FetchElement(name, value.CheckYes, true, false)
	if err != nil {
		return nil, err
	}
	if s.kind != slotCollection {
		return nil, cfgerr.New(cfgerr.WrongType, n.elementPath(name), "element %q is not a collection", name)
	}
	if s.compileErr != nil {
		return nil, s.compileErr
	}
	return s.coll, nil
}

// CollectionCargoNode resolves a hash-of-nodes/list-of-nodes entry to the
// *Node it wraps, used by the Loader's ":id" descent and by regex loops.
func (n *Node) CollectionCargoNode(collName, index string) (*Node, error) {
	coll, err := n.Collection(collName)
	if err != nil {
		return nil, err
	}
	cargo, cerr := coll.Get(n.elementPath(collName), index, n.owner.CollectionMode())
	if cerr != nil {
		return nil, cerr
	}
	nc, ok := cargo.(*nodeCargo)
	if !ok {
		return nil, cfgerr.New(cfgerr.WrongType, n.elementPath(collName), "index %q is a leaf, not a node", index)
	}
	return nc.n, nil
}

// CollectionCargoLeaf resolves a hash-of-values/list-of-values entry to the
// *value.Value it wraps.
func (n *Node) CollectionCargoLeaf(collName, index string) (*value.Value, string, error) {
	coll, err := n.Collection(collName)
	if err != nil {
		return nil, "", err
	}
	cargo, cerr := coll.Get(n.elementPath(collName), index, n.owner.CollectionMode())
	if cerr != nil {
		return nil, "", cerr
	}
	lc, ok := cargo.(*leafCargo)
	if !ok {
		return nil, "", cfgerr.New(cfgerr.WrongType, n.elementPath(collName), "index %q is a node, not a leaf", index)
	}
	return lc.v, lc.path, nil
}

// EnsureCargo implements spec.md §4.2's ensure(v): return the key of a live
// entry whose value equals want, or create one. Lists append at the end;
// hashes key the new entry by want itself, the common case for a set-like
// hash where the value doubles as its own key.
func (n *Node) EnsureCargo(collName, want string) (string, error) {
	coll, err := n.Collection(collName)
	if err != nil {
		return "", err
	}
	if k, ok := coll.FindByValue(want); ok {
		return k, nil
	}
	mode := n.owner.CollectionMode()
	if coll.Kind() == collection.KindList {
		k, cargo, perr := coll.Push(mode)
		if perr != nil {
			return "", perr
		}
		if lc, ok := cargo.(*leafCargo); ok {
			if err := n.storeValue(lc.v, n.elementPath(collName)+"["+k+"]", want); err != nil {
				return "", err
			}
		}
		return k, nil
	}
	cargo, gerr := coll.Get(n.elementPath(collName), want, mode)
	if gerr != nil {
		return "", gerr
	}
	if lc, ok := cargo.(*leafCargo); ok {
		if err := n.storeValue(lc.v, n.elementPath(collName)+"["+want+"]", want); err != nil {
			return "", err
		}
	}
	return want, nil
}

// Child resolves a node-kind element to the *Node it owns.
func (n *Node) Child(name string) (*Node, error) {
	s, err := n.FetchElement(name, value.CheckYes, true, false)
	if err != nil {
		return nil, err
	}
	switch s.kind {
	case slotNode:
		if s.compileErr != nil {
			return nil, s.compileErr
		}
		return s.child, nil
	case slotWarped:
		if s.warped.child == nil {
			return nil, cfgerr.New(cfgerr.UserError, n.elementPath(name), "warped element %q has not selected a class yet", name)
		}
		return s.warped.child, nil
	default:
		return nil, cfgerr.New(cfgerr.WrongType, n.elementPath(name), "element %q is not a node", name)
	}
}

// ClearLayeredValues recursively drops the layered slot of every leaf this
// Node and its already-built children/collection entries hold, for
// Instance's layered_clear (spec.md §4.6). Elements never lazily built
// have no layered data to clear.
func (n *Node) ClearLayeredValues() error {
	for _, name := range n.order {
		s := n.elements[name]
		if s == nil {
			continue
		}
		switch s.kind {
		case slotValue:
			if s.leaf != nil {
				s.leaf.ClearLayered()
			}
		case slotCollection:
			if s.coll == nil {
				continue
			}
			keys, err := s.coll.FetchAllIndexes(n.owner.CollectionMode())
			if err != nil {
				return err
			}
			for _, k := range keys {
				cargo, ok := s.coll.Peek(k)
				if !ok {
					continue
				}
				switch c := cargo.(type) {
				case *leafCargo:
					c.v.ClearLayered()
				case *nodeCargo:
					if err := c.n.ClearLayeredValues(); err != nil {
						return err
					}
				}
			}
		case slotNode:
			if s.child != nil {
				if err := s.child.ClearLayeredValues(); err != nil {
					return err
				}
			}
		case slotWarped:
			if s.warped != nil && s.warped.child != nil {
				if err := s.warped.child.ClearLayeredValues(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Kind reports the element kind of name as seen by the Loader's dispatch
// table. It goes through FetchElement, so the element is built if it did
// not exist yet.
func (n *Node) Kind(name string) (api.ElementKind, error) {
	s, err := n.FetchElement(name, value.CheckYes, true, false)
	if err != nil {
		return "", err
	}
	return s.def.Kind, nil
}
