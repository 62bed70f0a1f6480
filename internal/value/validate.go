package value

import (
	"fmt"
	"strconv"
)

// Warning is a single non-fatal finding from validation. Fix, if non-nil,
// repairs the value when ApplyFixes runs.
type Warning struct {
	Label   string
	Message string
	Fix     FixFunc
}

// validate runs the composed pipeline from spec.md §4.1 "Validation rules"
// against pending, in order. A non-nil err is always a hard failure
// (WrongValue); warnings never contribute to err.
func (s *Spec) validate(path, pending string) (warnings []Warning, err error) {
	// 1. Type check.
	switch s.Type {
	case KindInteger:
		if _, convErr := strconv.ParseInt(pending, 10, 64); convErr != nil {
			return nil, wrongValuef(path, "%q is not a valid integer", pending)
		}
	case KindNumber:
		if _, convErr := strconv.ParseFloat(pending, 64); convErr != nil {
			return nil, wrongValuef(path, "%q is not a valid number", pending)
		}
	case KindEnum:
		if !s.choiceSet()[pending] {
			return nil, wrongValuef(path, "%q is not one of %v", pending, s.Choice)
		}
	case KindUniline:
		for _, r := range pending {
			if r == '\n' {
				return nil, wrongValuef(path, "uniline value must not contain a newline")
			}
		}
	case KindFile, KindDir:
		if w := s.checkPathKind(pending); w != "" {
			warnings = append(warnings, Warning{Label: "path", Message: w})
		}
	case KindReference:
		if s.Refer != nil && s.Resolver != nil {
			choices, rerr := s.Resolver.LiveChoices(s.Refer.Path)
			if rerr == nil && !contains(choices, pending) {
				return nil, wrongValuef(path, "%q is not a live member of %s", pending, s.Refer.Path)
			}
		}
	case KindBoolean, KindString:
		// no type-shape check beyond normalization (boolean) / none (string)
	}

	// 2. Bounds.
	if s.Type.numeric() && (s.Min != nil || s.Max != nil) {
		f, _ := strconv.ParseFloat(pending, 64)
		if s.Min != nil && f < *s.Min {
			return nil, wrongValuef(path, "%v is below min %v", f, *s.Min)
		}
		if s.Max != nil && f > *s.Max {
			return nil, wrongValuef(path, "%v is above max %v", f, *s.Max)
		}
	}

	// 3. match regex.
	if s.Match != nil && !s.Match.MatchString(pending) {
		return nil, wrongValuef(path, "%q does not match required pattern %s", pending, s.Match.String())
	}

	// 4. grammar.
	if s.Grammar != nil && !s.Grammar.Accept(pending) {
		return nil, wrongValuef(path, "%q is not accepted by the configured grammar", pending)
	}

	// 5. warn_if_match / warn_unless_match.
	for _, rule := range s.WarnIfMatch {
		matched := rule.Pattern.MatchString(pending)
		fire := matched
		if rule.Unless {
			fire = !matched
		}
		if fire {
			warnings = append(warnings, Warning{Label: rule.Label, Message: rule.Message, Fix: rule.Fix})
		}
	}

	// 6. assert / warn_if / warn_unless. assert always rejects on failure
	// (spec.md line 84) regardless of whether it carries a Fix — a Fix
	// only changes how the caller may recover (ApplyFixes, explicitly
	// invoked per spec.md lines 117-122), never whether validate() itself
	// fails.
	for _, rule := range s.Assert {
		ok := rule.Code(pending)
		if rule.Unless {
			ok = !ok
		}
		if !ok {
			warnings = append(warnings, Warning{Label: rule.Label, Message: rule.Message, Fix: rule.Fix})
			return warnings, wrongValuef(path, "assertion %q failed: %s", rule.Label, rule.Message)
		}
	}
	for _, rule := range s.WarnIf {
		ok := rule.Code(pending)
		if rule.Unless {
			ok = !ok
		}
		if !ok {
			warnings = append(warnings, Warning{Label: rule.Label, Message: rule.Message, Fix: rule.Fix})
		}
	}

	// 7. unconditional warn.
	if s.Warn != "" {
		warnings = append(warnings, Warning{Label: "warn", Message: s.Warn})
	}

	return warnings, nil
}

func (s *Spec) checkPathKind(p string) string {
	// Kept deliberately light: existence/kind checks touch the filesystem,
	// which a schema-level validator should only ever warn about, never
	// fail on (spec.md §4.1: "emit a warning (not error) if path does not
	// exist or mismatches kind").
	info, err := statFunc(p)
	if err != nil {
		return fmt.Sprintf("path %q does not exist", p)
	}
	if s.Type == KindDir && !info.IsDir() {
		return fmt.Sprintf("path %q exists but is not a directory", p)
	}
	if s.Type == KindFile && info.IsDir() {
		return fmt.Sprintf("path %q exists but is a directory", p)
	}
	return ""
}

func (s *Spec) choiceSet() map[string]bool {
	if s.choiceIndex != nil {
		return s.choiceIndex
	}
	m := make(map[string]bool, len(s.Choice))
	for _, c := range s.Choice {
		m[c] = true
	}
	s.choiceIndex = m
	return m
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
