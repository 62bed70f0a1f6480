package loader

import (
	"strconv"

	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/collection"
	"github.com/agentic-research/configtree/internal/node"
)

// execCollectionMethod dispatches ":.method(args)" against a collection,
// per spec.md §4.4's collection method row: push, unshift, insert_at,
// insert_before, move, copy, clear.
func (l *Loader) execCollectionMethod(cur *node.Node, cmd command) error {
	coll, err := cur.Collection(cmd.name)
	if err != nil {
		return err
	}

	arg := func(i int) string {
		if i < len(cmd.methodArgs) {
			return cmd.methodArgs[i]
		}
		return ""
	}

	switch cmd.method {
	case "push":
		_, _, err := coll.Push(cur.CollectionMode())
		return err
	case "unshift":
		_, _, err := coll.Unshift(cur.CollectionMode())
		return err
	case "insert_at":
		idx, perr := strconv.Atoi(arg(0))
		if perr != nil {
			return cfgerr.New(cfgerr.LoadError, cmd.name, "insert_at requires an integer index, got %q", arg(0))
		}
		_, _, err := coll.InsertAt(idx, cur.CollectionMode())
		return err
	case "insert_before":
		_, _, err := coll.InsertBefore(arg(0), cur.CollectionMode())
		return err
	case "move":
		return coll.Move(arg(0), arg(1))
	case "copy":
		return coll.Copy(arg(0), arg(1))
	case "clear":
		coll.Clear()
		return nil
	default:
		return cfgerr.New(cfgerr.LoadError, cmd.name, "unknown collection method %q", cmd.method)
	}
}

// renameKeysMatching implements the best-effort ":=~s/pat/repl/flags"
// mapping for bulk key renaming: every live key matching pat is moved to
// the substituted key, reusing the leaf substitution grammar (spec.md
// §4.4 never defines ":=~" against a collection directly; this is the
// analogical extension recorded as an Open Question resolution).
func (l *Loader) renameKeysMatching(coll *collection.IdCollection, pattern string) error {
	keys, err := coll.FetchAllIndexes(0)
	if err != nil {
		return err
	}
	for _, oldKey := range keys {
		newKey, serr := applySubst(oldKey, pattern)
		if serr != nil {
			return serr
		}
		if newKey == oldKey {
			continue
		}
		if err := coll.Move(oldKey, newKey); err != nil {
			return err
		}
	}
	return nil
}
