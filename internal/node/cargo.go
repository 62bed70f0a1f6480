package node

import (
	"fmt"
	"regexp"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/collection"
	"github.com/agentic-research/configtree/internal/value"
)

// leafCargo adapts a *value.Value to collection.Cargo for list/hash
// collections whose entries are plain values rather than nested nodes.
type leafCargo struct {
	path string
	v    *value.Value
}

func (c *leafCargo) HasData() bool { return c.v.HasData(c.path) }

// nodeCargo adapts a *Node to collection.Cargo for list/hash collections
// whose entries are themselves sub-trees ("hash_of_nodes" in spec.md's
// end-to-end scenario 4).
type nodeCargo struct {
	n *Node
}

func (c *nodeCargo) HasData() bool {
	for _, name := range c.n.order {
		if s := c.n.elements[name]; s != nil && slotHasData(s) {
			return true
		}
	}
	return false
}

func slotHasData(s *slot) bool {
	switch s.kind {
	case slotValue:
		return s.leaf != nil && s.leaf.HasData(s.def.Name)
	case slotCollection:
		return s.coll != nil && s.coll.HasData()
	case slotNode:
		if s.child == nil {
			return false
		}
		nc := nodeCargo{n: s.child}
		return nc.HasData()
	case slotWarped:
		if s.warped == nil || s.warped.child == nil {
			return false
		}
		nc := nodeCargo{n: s.warped.child}
		return nc.HasData()
	}
	return false
}

// compileCollectionSpec turns a hash/list/check_list catalog element into a
// *collection.Spec, wiring cargo construction (leaf or node) and the
// follow/allow resolver back into the owning Node.
func compileCollectionSpec(el *api.Element, owner *Node, name string) (*collection.Spec, error) {
	params := el.CollectionParams

	spec := &collection.Spec{Resolver: owner, Notify: owner.notifyFunc(name)}

	switch el.Kind {
	case api.ElementList, api.ElementCheckList:
		spec.Kind = collection.KindList
	default:
		spec.Kind = collection.KindHash
	}

	if it, ok := paramString(params, "index_type"); ok && it == "integer" {
		spec.IndexType = collection.IndexInteger
	}

	if mi, err := paramInt(params, "min_index"); err != nil {
		return nil, err
	} else {
		spec.MinIndex = mi
	}
	if mx, err := paramInt(params, "max_index"); err != nil {
		return nil, err
	} else {
		spec.MaxIndex = mx
	}
	if mn, err := paramInt(params, "max_nb"); err != nil {
		return nil, err
	} else if mn != nil {
		n := int(*mn)
		spec.MaxNb = &n
	}

	spec.DefaultKeys = paramStringSlice(params, "default_keys")
	spec.FollowKeysFrom, _ = paramString(params, "follow_keys_from")
	spec.AllowKeys = paramStringSlice(params, "allow_keys")
	spec.AllowKeysFrom, _ = paramString(params, "allow_keys_from")
	spec.AutoCreateKeys = paramBool(params, "auto_create_keys")
	spec.AutoCreateIds = paramBool(params, "auto_create_ids")
	spec.MigrateKeysFrom, _ = paramString(params, "migrate_keys_from")
	spec.MigrateValuesFrom, _ = paramString(params, "migrate_values_from")
	spec.Ordered = paramBool(params, "ordered")
	spec.Convert, _ = paramString(params, "convert")
	spec.WriteEmptyValue = paramBool(params, "write_empty_value")

	if pattern, ok := paramString(params, "allow_keys_matching"); ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("element %q allow_keys_matching: %w", name, err)
		}
		spec.AllowKeysMatching = re
	}

	if dup, ok := paramString(params, "duplicates"); ok {
		switch dup {
		case "forbid":
			spec.Duplicates = collection.DuplicatesForbid
		case "warn":
			spec.Duplicates = collection.DuplicatesWarn
		case "suppress":
			spec.Duplicates = collection.DuplicatesSuppress
		default:
			spec.Duplicates = collection.DuplicatesAllow
		}
	}

	var err error
	if spec.WarnIfKeyMatch, err = keyRegexRuleList(params, "warn_if_key_match", false); err != nil {
		return nil, err
	}
	if spec.WarnUnlessKeyMatch, err = keyRegexRuleList(params, "warn_unless_key_match", true); err != nil {
		return nil, err
	}

	cargoType, _ := paramString(params, "cargo_type")
	switch cargoType {
	case "node":
		className, _ := paramString(params, "cargo_class")
		spec.ExtractValue = nil // nested nodes have no single scalar to dedup on
		spec.NewCargo = func(index string, mode collection.DataMode) (collection.Cargo, error) {
			class := owner.catalog().Classes[className]
			if class == nil {
				return nil, fmt.Errorf("collection %q: unknown cargo class %q", name, className)
			}
			child := &Node{
				owner:        owner.owner,
				class:        class,
				parent:       owner,
				nameInParent: fmt.Sprintf("%s[%s]", name, index),
				elements:     make(map[string]*slot),
			}
			return &nodeCargo{n: child}, nil
		}
	default: // "leaf"
		cargoParams, _ := params["cargo_value"].(map[string]any)
		spec.ExtractValue = func(c collection.Cargo) (string, bool) {
			lc, ok := c.(*leafCargo)
			if !ok {
				return "", false
			}
			raw, _, err := lc.v.Fetch(lc.path, value.FetchUser)
			if err != nil {
				return "", false
			}
			return raw, true
		}
		spec.NewCargo = func(index string, mode collection.DataMode) (collection.Cargo, error) {
			elemDef := api.Element{Name: index, Kind: api.ElementLeaf, ValueParams: cargoParams}
			vspec, err := compileValueSpec(&elemDef, owner.owner.Hooks(), owner)
			if err != nil {
				return nil, err
			}
			v, err := value.New(vspec)
			if err != nil {
				return nil, err
			}
			return &leafCargo{path: fmt.Sprintf("%s[%s]", name, index), v: v}, nil
		}
	}

	return spec, nil
}

func keyRegexRuleList(params map[string]any, key string, unless bool) ([]collection.KeyRegexRule, error) {
	raw, ok := params[key]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]map[string]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be a list of rule maps", key)
	}
	out := make([]collection.KeyRegexRule, 0, len(items))
	for _, item := range items {
		pattern, _ := paramString(item, "pattern")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("param %q pattern %q: %w", key, pattern, err)
		}
		msg, _ := paramString(item, "message")
		out = append(out, collection.KeyRegexRule{Label: itemLabel(item, pattern), Pattern: re, Unless: unless, Message: msg})
	}
	return out, nil
}

func paramInt(params map[string]any, key string) (*int64, error) {
	f, err := paramFloat(params, key)
	if err != nil || f == nil {
		return nil, err
	}
	n := int64(*f)
	return &n, nil
}
