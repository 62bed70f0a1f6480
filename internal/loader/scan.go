// Package loader implements spec.md §4.4's command DSL: the textual
// navigation/mutation language the Instance and backends replay against a
// Node tree. It is the only stable wire surface of the core (spec.md §6).
package loader

import "strings"

// scanner walks a program string one rune at a time, honoring the
// double-quoted-run rule from spec.md §4.4: "Unquoted tokens are split on
// whitespace but keep balanced double-quoted runs intact." Escapes (\" and
// \\) and the literal \n->newline substitution only apply inside quotes.
type scanner struct {
	s   string
	pos int
}

func newScanner(program string) *scanner { return &scanner{s: program} }

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (sc *scanner) eof() bool { return sc.pos >= len(sc.s) }

func (sc *scanner) peek() byte {
	if sc.eof() {
		return 0
	}
	return sc.s[sc.pos]
}

func (sc *scanner) skipSpace() {
	for !sc.eof() && isSpace(sc.s[sc.pos]) {
		sc.pos++
	}
}

// readSpan consumes runes until a rune outside any quoted run satisfies
// stop, or whitespace is reached outside a quoted run. Quoted runs are
// unquoted and escape-resolved in the result; stop never applies inside a
// quoted run, so a delimiter character can appear in a quoted value.
func (sc *scanner) readSpan(stop func(byte) bool) string {
	var b strings.Builder
	for !sc.eof() {
		c := sc.s[sc.pos]
		if c == '"' {
			sc.pos++
			for !sc.eof() && sc.s[sc.pos] != '"' {
				if sc.s[sc.pos] == '\\' && sc.pos+1 < len(sc.s) {
					switch sc.s[sc.pos+1] {
					case '"':
						b.WriteByte('"')
					case '\\':
						b.WriteByte('\\')
					case 'n':
						b.WriteByte('\n')
					default:
						b.WriteByte('\\')
						b.WriteByte(sc.s[sc.pos+1])
					}
					sc.pos += 2
					continue
				}
				b.WriteByte(sc.s[sc.pos])
				sc.pos++
			}
			if !sc.eof() {
				sc.pos++ // closing quote
			}
			continue
		}
		if isSpace(c) || (stop != nil && stop(c)) {
			break
		}
		b.WriteByte(c)
		sc.pos++
	}
	return b.String()
}

// readRestOfToken reads to the next unquoted whitespace, with no stop
// characters — used once a subaction's delimiter has been consumed and
// everything remaining up to whitespace is its value.
func (sc *scanner) readRestOfToken() string {
	return sc.readSpan(nil)
}
