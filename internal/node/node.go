// Package node implements spec.md §4.3's Node (and §4.5's WarpedNode /
// Warper): a record of named elements, each lazily backed by a
// *value.Value, a *collection.IdCollection, or a nested *Node.
package node

import (
	"regexp"
	"sync"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/collection"
	"github.com/agentic-research/configtree/internal/value"
)

// Owner is what a Node needs from its owning Instance: the active load
// mode, the change log, the warp registry, and the hook/catalog lookup
// tables. Kept as an interface so this package never imports
// internal/instance (Instance, in turn, owns the root Node).
type Owner interface {
	ValueMode() value.Mode
	CollectionMode() collection.DataMode
	Check() value.CheckMode
	RecordChange(path, note, old, new string)
	RecordError(path string, err error)
	LogWarning(path, message string, repeat bool)
	Warps() *WarpRegistry
	Hooks() *HookRegistry
	Catalog() *api.Catalog
}

type slotKind int

const (
	slotValue slotKind = iota
	slotCollection
	slotNode
	slotWarped
)

type slot struct {
	def  api.Element
	kind slotKind

	leaf   *value.Value
	coll   *collection.IdCollection
	child  *Node
	warped *warpedSlot

	valueSpec *value.Spec
	compileErr error

	deprecationWarned bool
}

type warpedSlot struct {
	masters []string
	rules   []api.WarpRule
	class   string
	child   *Node
}

// Node is a live record of named elements, backed by a ConfigClass schema.
type Node struct {
	owner        Owner
	class        *api.ConfigClass
	parent       *Node
	nameInParent string

	elements map[string]*slot
	order    []string

	levelOverride  map[string]api.Level
	statusOverride map[string]api.Status
	gistOverride   map[string]string
	annotations    map[string]string

	// initialLoadSeen/initialLoadFirst track the first value each path
	// received during the current initial-load pass, so storeValue can
	// detect the "two consecutive stores produce a conflict" exception
	// spec.md §9 names alongside the initial-load suppression itself.
	initialLoadSeen  map[string]bool
	initialLoadFirst map[string]string
}

// NewRoot builds the root Node of a tree from its class. Instance calls
// this once, lazily, on first access (spec.md §3: "Instance creates the
// root Node lazily from a ConfigClass catalog").
func NewRoot(owner Owner, class *api.ConfigClass) *Node {
	return &Node{owner: owner, class: class, elements: make(map[string]*slot)}
}

// Class reports the ConfigClass this Node was instantiated from.
func (n *Node) Class() *api.ConfigClass { return n.class }

// Parent returns the owning Node, or nil at the root. This is a relation,
// never ownership (spec.md §3).
func (n *Node) Parent() *Node { return n.parent }

// Root walks parent pointers up to the tree root, used by resolver lookups
// that always start an absolute path from the top.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Path renders this Node's location as a dotted element path from the
// tree root, used in error messages and change-log entries.
func (n *Node) Path() string {
	if n.parent == nil {
		return ""
	}
	base := n.parent.Path()
	if base == "" {
		return n.nameInParent
	}
	return base + "." + n.nameInParent
}

func (n *Node) elementPath(name string) string {
	p := n.Path()
	if p == "" {
		return name
	}
	return p + "." + name
}

func (n *Node) catalog() *api.Catalog { return n.owner.Catalog() }

func (n *Node) notifyFunc(name string) func(string) {
	return func(suffix string) {
		n.owner.RecordChange(n.elementPath(name)+suffix, "", "", "")
	}
}

var (
	acceptRegexMu    sync.RWMutex
	acceptRegexCache = map[string]*regexp.Regexp{}
)

// acceptRegex compiles pattern once and caches it across every Node in the
// process — Accept rule patterns repeat across sibling nodes of the same
// class, and SafeInstance.Dump's write-lock no longer guarantees this is
// single-threaded (a caller may hold its own Instance outside SafeInstance
// entirely), so the cache guards itself rather than relying on a caller's
// lock.
func acceptRegex(pattern string) *regexp.Regexp {
	acceptRegexMu.RLock()
	re, ok := acceptRegexCache[pattern]
	acceptRegexMu.RUnlock()
	if ok {
		return re
	}
	re = regexp.MustCompile(pattern)
	acceptRegexMu.Lock()
	acceptRegexCache[pattern] = re
	acceptRegexMu.Unlock()
	return re
}

// lookupDef resolves name to its declared or accepted Element definition.
// accepted reports whether the match came from an Accept rule rather than
// a directly declared element, which triggers the possible-typo check in
// FetchElement.
func (n *Node) lookupDef(name string) (def api.Element, accepted, ok bool) {
	if s, already := n.elements[name]; already {
		return s.def, false, true
	}
	for _, el := range n.class.Elements {
		if el.Name == name {
			return el, false, true
		}
	}
	for _, rule := range n.class.Accept {
		if acceptRegex(rule.Pattern).MatchString(name) {
			cloned := rule.Template
			cloned.Name = name
			return cloned, true, true
		}
	}
	return api.Element{}, false, false
}

// FetchElement implements spec.md §4.3's fetch_element: resolution through
// Accept, level/status gating, and lazy construction.
func (n *Node) FetchElement(name string, check value.CheckMode, autoadd, acceptHidden bool) (*slot, error) {
	def, accepted, known := n.lookupDef(name)
	if !known {
		switch check {
		case value.CheckYes:
			return nil, cfgerr.New(cfgerr.UnknownElement, n.elementPath(name), "no such element %q", name)
		default:
			return nil, nil
		}
	}

	if accepted {
		n.warnPossibleTypo(name)
	}

	level := def.Level
	if lv, ok := n.levelOverride[name]; ok {
		level = lv
	}
	if level == api.LevelHidden && !acceptHidden {
		switch check {
		case value.CheckYes:
			return nil, cfgerr.New(cfgerr.UserError, n.elementPath(name), "element %q is hidden", name)
		default:
			return nil, nil
		}
	}

	status := def.Status
	if st, ok := n.statusOverride[name]; ok {
		status = st
	}
	if status == api.StatusObsolete {
		switch check {
		case value.CheckYes:
			return nil, cfgerr.New(cfgerr.UserError, n.elementPath(name), "element %q is obsolete", name)
		default:
			return nil, nil
		}
	}

	s, err := n.ensureSlot(name, def)
	if err != nil {
		return nil, err
	}

	if status == api.StatusDeprecated && check == value.CheckYes && !s.deprecationWarned {
		s.deprecationWarned = true
		n.owner.RecordChange(n.elementPath(name), "dropping deprecated parameter", "", "")
	}

	return s, nil
}

// warnPossibleTypo implements spec.md §4.3's Accept fuzzy-match note: if
// the accepted name is within edit distance 2 of an already-declared
// element, flag it as a possible typo without refusing the Accept match.
func (n *Node) warnPossibleTypo(name string) {
	best := -1
	for _, el := range n.class.Elements {
		if d := levenshteinDistance(name, el.Name); best < 0 || d < best {
			best = d
		}
	}
	if best >= 0 && best <= 2 && best > 0 {
		n.owner.RecordChange(n.elementPath(name), "possible typo: close to a declared element name", "", "")
	}
}

func (n *Node) ensureSlot(name string, def api.Element) (*slot, error) {
	if s, ok := n.elements[name]; ok {
		return s, s.compileErr
	}
	s := &slot{def: def}

	switch def.Kind {
	case api.ElementLeaf:
		s.kind = slotValue
		spec, err := compileValueSpec(&def, n.owner.Hooks(), n)
		if err != nil {
			s.compileErr = err
		} else {
			s.valueSpec = spec
			v, verr := value.New(spec)
			if verr != nil {
				s.compileErr = verr
			} else {
				s.leaf = v
			}
		}
	case api.ElementHash, api.ElementList, api.ElementCheckList:
		s.kind = slotCollection
		cspec, err := compileCollectionSpec(&def, n, name)
		if err != nil {
			s.compileErr = err
		} else {
			coll, cerr := collection.New(cspec)
			if cerr != nil {
				s.compileErr = cerr
			} else {
				s.coll = coll
			}
		}
	case api.ElementNode:
		s.kind = slotNode
		class := n.catalog().Classes[def.ClassName]
		if class == nil {
			s.compileErr = cfgerr.New(cfgerr.ModelError, n.elementPath(name), "unknown class %q", def.ClassName)
		} else {
			s.child = &Node{owner: n.owner, class: class, parent: n, nameInParent: name, elements: make(map[string]*slot)}
		}
	case api.ElementWarped:
		s.kind = slotWarped
		s.warped = &warpedSlot{masters: def.WarpParams.Masters, rules: def.WarpParams.Rules}
		n.registerWarper(name, s)
	default:
		s.compileErr = cfgerr.New(cfgerr.ModelError, n.elementPath(name), "unknown element kind %q", def.Kind)
	}

	n.elements[name] = s
	n.order = append(n.order, name)
	return s, s.compileErr
}

// HasElement reports whether name resolves to a declared or accepted
// element on this Node, without building it. Used by the Loader's "/name"
// search-up navigation.
func (n *Node) HasElement(name string) bool {
	_, _, ok := n.lookupDef(name)
	return ok
}

// SetAnnotation records a Loader "#text" annotation against name (or
// against "*self*" for a node-level annotation), surfaced by dump/printer
// tooling. Annotations are metadata, not catalog state, so they live in a
// per-Node map beside the level/status/gist override maps rather than on
// the slot.
func (n *Node) SetAnnotation(name, text string) {
	if n.annotations == nil {
		n.annotations = map[string]string{}
	}
	n.annotations[name] = text
}

// Annotation returns a previously recorded annotation, if any.
func (n *Node) Annotation(name string) (string, bool) {
	text, ok := n.annotations[name]
	return text, ok
}

// Children returns declared element names in model order, excluding
// hidden/obsolete/deprecated unless all is set (spec.md §4.3's iteration
// rule: "an all flag returns every declared name, for backends").
func (n *Node) Children(all bool) []string {
	out := make([]string, 0, len(n.class.Elements))
	for _, el := range n.class.Elements {
		if all {
			out = append(out, el.Name)
			continue
		}
		level := el.Level
		if lv, ok := n.levelOverride[el.Name]; ok {
			level = lv
		}
		status := el.Status
		if st, ok := n.statusOverride[el.Name]; ok {
			status = st
		}
		if level == api.LevelHidden || status == api.StatusObsolete || status == api.StatusDeprecated {
			continue
		}
		out = append(out, el.Name)
	}
	return out
}

// SetProperties applies a warp rule's property overrides to name's live
// definition: level/status/gist are Node-level overrides; everything else
// is forwarded to the compiled *value.Spec, if the slot is a leaf, since
// Node keeps the spec pointer the Value was built from (spec.md §4.5).
func (n *Node) SetProperties(name string, props map[string]any) error {
	if lv, ok := props["level"].(string); ok {
		if n.levelOverride == nil {
			n.levelOverride = map[string]api.Level{}
		}
		n.levelOverride[name] = api.Level(lv)
	}
	if st, ok := props["status"].(string); ok {
		if n.statusOverride == nil {
			n.statusOverride = map[string]api.Status{}
		}
		n.statusOverride[name] = api.Status(st)
	}
	if g, ok := props["gist"].(string); ok {
		if n.gistOverride == nil {
			n.gistOverride = map[string]string{}
		}
		n.gistOverride[name] = g
	}

	s := n.elements[name]
	if s == nil || s.valueSpec == nil {
		return nil
	}
	if mandatory, ok := props["mandatory"].(bool); ok {
		s.valueSpec.Mandatory = mandatory
	}
	if def, ok := props["default"].(string); ok {
		s.valueSpec.Default = &def
	}
	if choice, ok := props["choice"].([]string); ok {
		s.valueSpec.Choice = choice
		s.valueSpec.InvalidateChoiceCache()
	}
	if min, err := paramFloat(props, "min"); err == nil && min != nil {
		s.valueSpec.Min = min
	}
	if max, err := paramFloat(props, "max"); err == nil && max != nil {
		s.valueSpec.Max = max
	}
	return nil
}
