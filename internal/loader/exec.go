package loader

import (
	"regexp"
	"strconv"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/collection"
	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/value"
)

// Options configures one Load run.
type Options struct {
	// Check governs what Load returns when a command fails: CheckYes
	// returns the error; CheckSkip and CheckNo both stop at the failing
	// command and return nil, and Load records the error nowhere. How a
	// store that fails validation is handled is decided by the tree
	// owner's own check mode, not by this option.
	Check value.CheckMode
}

// Loader parses and executes spec.md §4.4's command DSL against a Node.
type Loader struct {
	opts Options
}

// New returns a Loader configured with opts.
func New(opts Options) *Loader {
	return &Loader{opts: opts}
}

// Load runs program against start, left to right, per spec.md §4.4's
// "load()" entry point. Returns nil on a clean "done"; a *cfgerr.Error
// otherwise, per the Check mode's propagation policy.
func (l *Loader) Load(start *node.Node, program string) error {
	sc := newScanner(program)
	_, err := l.run(sc, []*node.Node{start}, 1)
	if err != nil && l.opts.Check != value.CheckYes {
		return nil
	}
	return err
}

// run executes commands from sc against stack until the program (or, when
// floor > 1, the current regex-loop iteration) ends. floor is the minimum
// stack depth this run is allowed to pop to; going below it silently ends
// the run instead of erroring (spec.md §4.4's regex-loop termination
// rule), except at the true top level (floor == 1) where popping past the
// root ends the whole Loader and an unresolved "/name" is an error.
func (l *Loader) run(sc *scanner, stack []*node.Node, floor int) ([]*node.Node, error) {
	for {
		cmd, ok := parseNext(sc)
		if !ok {
			return stack, nil
		}

		switch cmd.kind {
		case cmdPopRoot:
			if floor <= 1 {
				stack = stack[:1]
			}
			// "Does not change the stack during regex-loops" (spec.md §4.4).

		case cmdPopOne:
			if len(stack) <= floor {
				return stack, nil
			}
			stack = stack[:len(stack)-1]

		case cmdSearchUp:
			idx := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].HasElement(cmd.searchName) {
					idx = i
					break
				}
			}
			switch {
			case idx < 0:
				if floor <= 1 {
					return stack, cfgerr.New(cfgerr.LoadError, cmd.searchName, "searched item not found: %q", cmd.searchName)
				}
				return stack, nil
			case idx < floor-1:
				return stack, nil
			default:
				stack = stack[:idx+1]
			}

		case cmdElement:
			newStack, terminate, err := l.execElement(sc, stack, floor, cmd)
			if err != nil {
				return stack, err
			}
			if terminate {
				return newStack, nil
			}
			stack = newStack
		}
	}
}

func (l *Loader) execElement(sc *scanner, stack []*node.Node, floor int, cmd command) (newStack []*node.Node, terminate bool, err error) {
	cur := stack[len(stack)-1]
	kind, err := cur.Kind(cmd.name)
	if err != nil {
		return stack, false, err
	}

	switch kind {
	case api.ElementNode, api.ElementWarped:
		child, cerr := cur.Child(cmd.name)
		if cerr != nil {
			return stack, false, cerr
		}
		if cmd.hasAnnotation {
			child.SetAnnotation("*self*", cmd.annotation)
		}
		return append(stack, child), false, nil

	case api.ElementHash, api.ElementList, api.ElementCheckList:
		return l.execCollection(sc, stack, floor, cur, cmd)

	default: // api.ElementLeaf
		if cmd.hasAnnotation {
			cur.SetAnnotation(cmd.name, cmd.annotation)
		}
		return stack, false, l.execLeafSub(declaredLeaf(cur, cmd.name), cmd)
	}
}

// leafTarget abstracts over the two things a leaf subaction can address:
// a declared leaf element on a Node, or a hash-of-values/list-of-values
// cargo entry inside a collection. Both funnel through Node's centralized
// storeValue/clearValue decision (spec.md §9).
type leafTarget struct {
	store  func(raw string) error
	append func(suffix string) error
	clear  func() error
	fetch  func(mode value.FetchMode) (string, error)
}

func declaredLeaf(cur *node.Node, name string) leafTarget {
	return leafTarget{
		store:  func(raw string) error { return cur.StoreLeaf(name, raw) },
		append: func(suffix string) error { return cur.AppendLeaf(name, suffix) },
		clear:  func() error { return cur.ClearLeaf(name) },
		fetch:  func(mode value.FetchMode) (string, error) { return cur.FetchLeaf(name, mode) },
	}
}

func collectionLeaf(cur *node.Node, collName, index string) leafTarget {
	return leafTarget{
		store:  func(raw string) error { return cur.StoreCollectionLeaf(collName, index, raw) },
		clear:  func() error { return cur.ClearCollectionLeaf(collName, index) },
		fetch:  func(mode value.FetchMode) (string, error) { return cur.FetchCollectionLeaf(collName, index, mode) },
		append: nil, // set below, needs fetch+store composed
	}
}

// execLeafSub applies a parsed subaction (or the bare '~' clear action) to
// target, per spec.md §4.4's leaf dispatch row.
func (l *Loader) execLeafSub(target leafTarget, cmd command) error {
	if cmd.action == actionClear {
		return target.clear()
	}
	switch cmd.sub {
	case subStore:
		return target.store(cmd.subValue)
	case subAppend:
		if target.append != nil {
			return target.append(cmd.subValue)
		}
		current, err := target.fetch(value.FetchUser)
		if err != nil {
			return err
		}
		return target.store(current + cmd.subValue)
	case subSubst:
		return l.execSubst(target, cmd.subValue)
	case subFile:
		return loadFile(target, cmd.subValue)
	case subJSON:
		return loadStructured(target, cmd.subValue, formatJSON)
	case subYAML:
		return loadStructured(target, cmd.subValue, formatYAML)
	case subEnv:
		return loadEnv(target, cmd.subValue)
	default:
		return nil
	}
}

func (l *Loader) execSubst(target leafTarget, subst string) error {
	current, err := target.fetch(value.FetchUser)
	if err != nil {
		return err
	}
	replaced, err := applySubst(current, subst)
	if err != nil {
		return err
	}
	return target.store(replaced)
}

func (l *Loader) execCollection(sc *scanner, stack []*node.Node, floor int, cur *node.Node, cmd command) (newStack []*node.Node, terminate bool, err error) {
	coll, err := cur.Collection(cmd.name)
	if err != nil {
		return stack, false, err
	}

	switch cmd.action {
	case actionSelectID:
		return l.selectCargo(stack, cur, cmd, cmd.actionID)

	case actionRegexLoop:
		tail := sc.s[sc.pos:]
		sc.pos = len(sc.s)
		if err := l.runRegexLoop(cur, cmd.name, cmd.pattern, stack, tail); err != nil {
			return stack, false, err
		}
		return stack, true, nil

	case actionMethod:
		return stack, false, l.execCollectionMethod(cur, cmd)

	case actionMoveUp:
		n, perr := strconv.Atoi(cmd.actionID)
		if perr != nil {
			return stack, false, cfgerr.New(cfgerr.LoadError, cmd.name, "move up requires an integer count, got %q", cmd.actionID)
		}
		return stack, false, coll.MoveUp(n)
	case actionMoveDown:
		n, perr := strconv.Atoi(cmd.actionID)
		if perr != nil {
			return stack, false, cfgerr.New(cfgerr.LoadError, cmd.name, "move down requires an integer count, got %q", cmd.actionID)
		}
		return stack, false, coll.MoveDown(n)
	case actionSortMark:
		return stack, false, coll.Sort(defaultLess)
	case actionDeleteID:
		coll.Delete(cmd.actionID)
		return stack, false, nil
	case actionDeleteMatch:
		re, rerr := regexp.Compile(cmd.pattern)
		if rerr != nil {
			return stack, false, cfgerr.New(cfgerr.LoadError, cmd.pattern, "invalid regex: %v", rerr)
		}
		keys, kerr := coll.FetchAllIndexes(0)
		if kerr != nil {
			return stack, false, kerr
		}
		for _, k := range keys {
			if re.MatchString(k) {
				coll.Delete(k)
			}
		}
		return stack, false, nil
	case actionEnsure:
		if _, eerr := cur.EnsureCargo(cmd.name, cmd.actionID); eerr != nil {
			return stack, false, eerr
		}
		return stack, false, nil
	case actionRenameMatch:
		return stack, false, l.renameKeysMatching(coll, cmd.pattern)
	case actionClear:
		coll.Clear()
		return stack, false, nil
	default:
		// bare navigation into the collection element itself makes no
		// sense without an id; nothing to do.
		return stack, false, nil
	}
}

func (l *Loader) selectCargo(stack []*node.Node, cur *node.Node, cmd command, id string) ([]*node.Node, bool, error) {
	if child, cerr := cur.CollectionCargoNode(cmd.name, id); cerr == nil {
		if cmd.hasAnnotation {
			child.SetAnnotation("*self*", cmd.annotation)
		}
		return append(stack, child), false, nil
	}
	// Not a node cargo: treat as a leaf cargo and apply any inline
	// subaction (or a trailing ":id~" clear) directly, without pushing a
	// stack frame.
	target := collectionLeaf(cur, cmd.name, id)
	var leafErr error
	if cmd.clearSelected {
		leafErr = target.clear()
	} else {
		leafErr = l.execLeafSub(target, cmd)
	}
	if cmd.hasAnnotation {
		cur.SetAnnotation(cmd.name+"["+id+"]", cmd.annotation)
	}
	return stack, false, leafErr
}

func defaultLess(a, b collection.Cargo) bool {
	return false // stable no-op comparator; ':.sort(field)' is the real entry point for value-driven ordering.
}
