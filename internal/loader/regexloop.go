package loader

import (
	"regexp"

	"github.com/agentic-research/configtree/internal/cfgerr"
	"github.com/agentic-research/configtree/internal/node"
)

// runRegexLoop implements spec.md §4.4's ":~pattern" collection action:
// replay the remainder of the command line once per live key matching
// pattern. A node-cargo match gets the tail run as a nested program with
// its own floor, so a stray "-" or "!" ends only that iteration; a
// leaf-cargo match gets the tail's single subaction applied directly.
func (l *Loader) runRegexLoop(cur *node.Node, collName, pattern string, stack []*node.Node, tail string) error {
	coll, err := cur.Collection(collName)
	if err != nil {
		return err
	}
	re, rerr := regexp.Compile(pattern)
	if rerr != nil {
		return cfgerr.New(cfgerr.LoadError, pattern, "invalid regex: %v", rerr)
	}
	keys, kerr := coll.FetchAllIndexes(0)
	if kerr != nil {
		return kerr
	}

	tailCmd := parseTailCommand(tail)

	for _, k := range keys {
		if !re.MatchString(k) {
			continue
		}
		if child, cerr := cur.CollectionCargoNode(collName, k); cerr == nil {
			newStack := append(append([]*node.Node{}, stack...), child)
			if _, err := l.run(newScanner(tail), newStack, len(newStack)); err != nil {
				return err
			}
			continue
		}
		if err := l.execLeafSub(collectionLeaf(cur, collName, k), tailCmd); err != nil {
			return err
		}
	}
	return nil
}

// parseTailCommand parses the "(action)? (subaction)? (#annotation)?" tail
// of a regex-loop leaf iteration into a command, reusing the same grammar
// a normal element_cmd's suffix uses.
func parseTailCommand(tail string) command {
	sc := newScanner(tail)
	var cmd command
	if sc.peek() == '~' {
		sc.pos++
		cmd.action = actionClear
	}
	parseSubaction(sc, &cmd)
	if sc.peek() == '#' {
		sc.pos++
		cmd.annotation = sc.readSpan(nil)
		cmd.hasAnnotation = true
	}
	return cmd
}
