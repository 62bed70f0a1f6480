package value

import "strings"

// normalizeBool implements the boolean normalization table from spec.md
// §4.1: on store, {y,yes,true,on,1,write_as[1]} -> true and
// {n,no,false,off,0,"",write_as[0]} -> false; anything else is a
// validation error. Returns the canonical "true"/"false" string.
func (s *Spec) normalizeBool(raw string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	trueWord := ""
	falseWord := ""
	if s.HasWriteAs {
		falseWord = strings.ToLower(s.WriteAs[0])
		trueWord = strings.ToLower(s.WriteAs[1])
	}
	switch lower {
	case "y", "yes", "true", "on", "1":
		return "true", true
	case "n", "no", "false", "off", "0", "":
		return "false", true
	}
	if trueWord != "" && lower == trueWord {
		return "true", true
	}
	if falseWord != "" && lower == falseWord {
		return "false", true
	}
	return "", false
}

// projectBool maps the canonical "true"/"false" back through write_as for
// display, per the fetch protocol's closing step.
func (s *Spec) projectBool(canonical string) string {
	if !s.HasWriteAs {
		return canonical
	}
	if canonical == "true" {
		return s.WriteAs[1]
	}
	return s.WriteAs[0]
}
