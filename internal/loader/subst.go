package loader

import (
	"regexp"
	"strings"

	"github.com/agentic-research/configtree/internal/cfgerr"
)

// substSpec is one parsed "s/pattern/replacement/flags" expression, per
// spec.md §4.4's "=~s/.../.../flags" leaf subaction.
type substSpec struct {
	pattern     string
	replacement string
	global      bool
	ignoreCase  bool
}

// parseSubstSpec splits a "s<delim>pattern<delim>replacement<delim>flags"
// string on its first character, used as the delimiter throughout (usually
// '/', but any non-alphanumeric rune works, matching the sed convention the
// grammar borrows this syntax from).
func parseSubstSpec(raw string) (substSpec, error) {
	if len(raw) < 2 || raw[0] != 's' {
		return substSpec{}, cfgerr.New(cfgerr.SyntaxError, "", "substitution %q must start with 's<delim>'", raw)
	}
	delim := raw[1]
	parts := strings.Split(raw[2:], string(delim))
	if len(parts) < 2 {
		return substSpec{}, cfgerr.New(cfgerr.SyntaxError, "", "substitution %q needs pattern%cand replacement%c", raw, delim, delim)
	}
	spec := substSpec{pattern: parts[0], replacement: parts[1]}
	if len(parts) > 2 {
		for _, f := range parts[2] {
			switch f {
			case 'g':
				spec.global = true
			case 'i':
				spec.ignoreCase = true
			}
		}
	}
	return spec, nil
}

// applySubst implements the "=~s/.../.../flags" leaf subaction: apply a
// regex substitution to current and return the result, raising SyntaxError
// on a malformed spec or invalid pattern.
func applySubst(current, raw string) (string, error) {
	spec, err := parseSubstSpec(raw)
	if err != nil {
		return "", err
	}
	pattern := spec.pattern
	if spec.ignoreCase {
		pattern = "(?i)" + pattern
	}
	re, rerr := regexp.Compile(pattern)
	if rerr != nil {
		return "", cfgerr.New(cfgerr.SyntaxError, "", "invalid substitution pattern %q: %v", spec.pattern, rerr)
	}
	repl := regexp.MustCompile(`\$(\d)`).ReplaceAllString(spec.replacement, "$${$1}")
	if spec.global {
		return re.ReplaceAllString(current, repl), nil
	}
	replaced := false
	return re.ReplaceAllStringFunc(current, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return re.ReplaceAllString(m, repl)
	}), nil
}
