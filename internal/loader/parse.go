package loader

import "strings"

// cmdKind is the top-level shape of one parsed command, per spec.md §4.4's
// grammar (navigation | element_cmd).
type cmdKind int

const (
	cmdPopRoot  cmdKind = iota // "!"
	cmdPopOne                  // "-"
	cmdSearchUp                // "/name"
	cmdElement                 // name (action)? (subaction)? (#annotation)?
)

type actionKind int

const (
	actionNone     actionKind = iota
	actionSelectID            // ':' id
	actionMethod              // ':.'method(args)
	actionRegexLoop           // ':~'pattern
	actionClear               // '~' (bare, no colon)
	actionMoveUp              // ':<'
	actionMoveDown            // ':>'
	actionSortMark            // ':@'
	actionDeleteID            // ':-'id
	actionEnsure              // ':-='value
	actionDeleteMatch         // ':-~'pattern
	actionRenameMatch         // ':=~'subst
)

type subKind int

const (
	subNone  subKind = iota
	subStore         // '=' value
	subAppend        // '.=' value
	subSubst         // '=~' s/.../.../flags
	subFile          // '=.file(path)'
	subJSON          // '=.json(path)'
	subYAML          // '=.yaml(path)'
	subEnv           // '=.env(NAME)'
)

// command is one fully parsed element_cmd (or a bare navigation marker).
type command struct {
	kind cmdKind

	searchName string // cmdSearchUp

	name string // cmdElement

	action     actionKind
	actionID   string   // actionSelectID / actionDeleteID / actionEnsure value / actionMoveUp/Down N
	method     string   // actionMethod
	methodArgs []string // actionMethod
	pattern    string   // actionRegexLoop / actionDeleteMatch regex / actionRenameMatch subst source

	sub      subKind
	subValue string

	// clearSelected marks a ":id~" select-then-clear, the one spot the
	// grammar's action/subaction split leaves no room for a subaction: the
	// trailing '~' after a bare id selection reads as "clear this cargo"
	// rather than a second action.
	clearSelected bool

	annotation string
	hasAnnotation bool
}

func isNameStop(c byte) bool {
	return c == ':' || c == '=' || c == '~' || c == '#'
}

// readRegexPattern reads a ':~'/':-~' pattern. spec.md §8 scenario 5's own
// example (`std_id:~/^\w+$/ DX=Bv int_v=9`) delimits the pattern with '/'
// so the regex itself can contain ':', '=', '~' or '#' without being cut
// short by isNameStop — mirroring parseSubstSpec's delimiter handling for
// "=~s/.../.../flags". A pattern not starting with '/' is read the legacy
// undelimited way, stopping at the next isNameStop character or space.
func readRegexPattern(sc *scanner) string {
	if sc.peek() != '/' {
		return sc.readSpan(isNameStop)
	}
	sc.pos++
	var b strings.Builder
	for !sc.eof() && sc.s[sc.pos] != '/' {
		b.WriteByte(sc.s[sc.pos])
		sc.pos++
	}
	if !sc.eof() {
		sc.pos++ // closing '/'
	}
	return b.String()
}

// parseNext consumes and returns the next command from sc, or ok=false at
// end of program.
func parseNext(sc *scanner) (command, bool) {
	sc.skipSpace()
	if sc.eof() {
		return command{}, false
	}

	if sc.peek() == '!' {
		sc.pos++
		return command{kind: cmdPopRoot}, true
	}
	if sc.peek() == '-' && (sc.pos+1 >= len(sc.s) || isSpace(sc.s[sc.pos+1])) {
		sc.pos++
		return command{kind: cmdPopOne}, true
	}
	if sc.peek() == '/' {
		sc.pos++
		name := sc.readSpan(nil)
		return command{kind: cmdSearchUp, searchName: name}, true
	}

	cmd := command{kind: cmdElement}
	cmd.name = sc.readSpan(isNameStop)

	if sc.peek() == '~' {
		sc.pos++
		cmd.action = actionClear
	} else if sc.peek() == ':' {
		sc.pos++
		parseAction(sc, &cmd)
	}

	// A regex-loop's tail (everything after the pattern) is replayed
	// verbatim per matching key by execCollection/runRegexLoop, not parsed
	// as this command's own subaction.
	if cmd.action != actionRegexLoop {
		parseSubaction(sc, &cmd)
	}

	if sc.peek() == '#' {
		sc.pos++
		cmd.annotation = sc.readSpan(nil)
		cmd.hasAnnotation = true
	}

	return cmd, true
}

func parseAction(sc *scanner, cmd *command) {
	switch {
	case sc.peek() == '.':
		sc.pos++
		cmd.action = actionMethod
		cmd.method = sc.readSpan(func(c byte) bool { return c == '(' || isNameStop(c) })
		cmd.methodArgs = parseArgs(sc)
	case sc.peek() == '~':
		sc.pos++
		cmd.action = actionRegexLoop
		cmd.pattern = readRegexPattern(sc)
	case sc.peek() == '<':
		sc.pos++
		cmd.action = actionMoveUp
		cmd.actionID = sc.readSpan(isNameStop)
	case sc.peek() == '>':
		sc.pos++
		cmd.action = actionMoveDown
		cmd.actionID = sc.readSpan(isNameStop)
	case sc.peek() == '@':
		sc.pos++
		cmd.action = actionSortMark
	case sc.peek() == '-':
		sc.pos++
		switch sc.peek() {
		case '=':
			sc.pos++
			cmd.action = actionEnsure
			cmd.actionID = sc.readRestOfToken()
		case '~':
			sc.pos++
			cmd.action = actionDeleteMatch
			cmd.pattern = readRegexPattern(sc)
		default:
			cmd.action = actionDeleteID
			cmd.actionID = sc.readSpan(isNameStop)
		}
	case sc.peek() == '=':
		sc.pos++
		if sc.peek() == '~' {
			sc.pos++
			cmd.action = actionRenameMatch
			cmd.pattern = sc.readSpan(nil)
		} else {
			// bare ':=' with no following subaction char: select-by-id
			// where id happens to be given via '='. Treated the same as
			// ':id'.
			cmd.action = actionSelectID
			cmd.actionID = sc.readSpan(isNameStop)
		}
	default:
		cmd.action = actionSelectID
		cmd.actionID = sc.readSpan(isNameStop)
		if sc.peek() == '~' {
			sc.pos++
			cmd.clearSelected = true
		}
	}
}

// parseParenArg reads a single "(...)" span verbatim (no comma splitting),
// for =.file/=.json/=.yaml/=.env, whose payload is a slash-separated path
// rather than a comma-separated argument list.
func parseParenArg(sc *scanner) string {
	if sc.peek() != '(' {
		return ""
	}
	sc.pos++
	raw := sc.readSpan(func(c byte) bool { return c == ')' })
	if sc.peek() == ')' {
		sc.pos++
	}
	return raw
}

func parseArgs(sc *scanner) []string {
	if sc.peek() != '(' {
		return nil
	}
	sc.pos++
	raw := sc.readSpan(func(c byte) bool { return c == ')' })
	if sc.peek() == ')' {
		sc.pos++
	}
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseSubaction(sc *scanner, cmd *command) {
	if sc.peek() != '=' && sc.peek() != '.' {
		return
	}
	if sc.peek() == '.' {
		// ".=" append, only valid with no leading '='.
		save := sc.pos
		sc.pos++
		if sc.peek() == '=' {
			sc.pos++
			cmd.sub = subAppend
			cmd.subValue = sc.readRestOfToken()
			return
		}
		sc.pos = save
		return
	}

	sc.pos++ // consume '='
	switch sc.peek() {
	case '~':
		sc.pos++
		cmd.sub = subSubst
		cmd.subValue = sc.readSpan(nil)
	case '.':
		sc.pos++
		kind := sc.readSpan(func(c byte) bool { return c == '(' })
		path := parseParenArg(sc)
		switch kind {
		case "file":
			cmd.sub = subFile
		case "json":
			cmd.sub = subJSON
		case "yaml":
			cmd.sub = subYAML
		case "env":
			cmd.sub = subEnv
		}
		cmd.subValue = path
	default:
		cmd.sub = subStore
		cmd.subValue = sc.readRestOfToken()
	}
}
