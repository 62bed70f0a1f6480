package node

import "github.com/agentic-research/configtree/internal/cfgerr"

// Warper observes zero or more master Values and, on any master change,
// re-evaluates its rule table and reapplies property overrides to a
// dependent element (spec.md §4.5).
type Warper struct {
	id      uint32
	owner   *Node // node that owns the warped element
	element string
	masters []string
	rules   []WarpCondRule
}

// WarpCondRule pairs a condition over resolved master values with the
// overrides to apply when it matches. Condition nil means "always match".
type WarpCondRule struct {
	Condition     func(masterValues []string) bool
	ClassName     string
	SetProperties map[string]any
}

// Reconfigure resolves every master's current value, finds the first
// matching rule, and applies it to the owning element (class substitution
// for a warped_node, property overrides otherwise).
func (w *Warper) Reconfigure() error {
	values := make([]string, len(w.masters))
	for i, mp := range w.masters {
		v, err := w.owner.PathValue(mp)
		if err != nil {
			return err
		}
		values[i] = v
	}

	for _, rule := range w.rules {
		if rule.Condition != nil && !rule.Condition(values) {
			continue
		}
		return w.apply(rule)
	}
	return nil
}

func (w *Warper) apply(rule WarpCondRule) error {
	s := w.owner.elements[w.element]
	if s == nil {
		return cfgerr.New(cfgerr.Internal, w.owner.elementPath(w.element), "warper fired before its element slot existed")
	}

	if s.kind == slotWarped && rule.ClassName != "" && s.warped.class != rule.ClassName {
		class := w.owner.catalog().Classes[rule.ClassName]
		if class == nil {
			return cfgerr.New(cfgerr.ModelError, w.owner.elementPath(w.element), "warp rule names unknown class %q", rule.ClassName)
		}
		s.warped.class = rule.ClassName
		s.warped.child = &Node{owner: w.owner.owner, class: class, parent: w.owner, nameInParent: w.element, elements: make(map[string]*slot)}
	}

	if len(rule.SetProperties) > 0 {
		return w.owner.SetProperties(w.element, rule.SetProperties)
	}
	return nil
}

// registerWarper wires a freshly-created warped_node slot's masters into
// the tree-wide WarpRegistry, keyed by each master path as written; the
// paths are resolved from the tree root, not from this node.
func (n *Node) registerWarper(name string, s *slot) {
	rules := make([]WarpCondRule, len(s.warped.rules))
	for i, r := range s.warped.rules {
		rules[i] = WarpCondRule{Condition: r.Condition, ClassName: r.ClassName, SetProperties: r.SetProperties}
	}
	w := &Warper{owner: n, element: name, masters: s.warped.masters, rules: rules}
	reg := n.owner.Warps()
	w.id = reg.add(w)
	for _, masterPath := range s.warped.masters {
		reg.register(masterPath, w)
	}
	// Apply the rule set once immediately so the element has a concrete
	// class/property set before any master ever changes (e.g. if all
	// masters already have values from initial load).
	_ = w.Reconfigure()
}
