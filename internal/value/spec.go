package value

import "regexp"

// FixFunc repairs an offending stored value, returning the replacement.
// Invoked by ApplyFixes when the rule it is attached to fails validation.
type FixFunc func(current string) string

// RegexRule is one entry of warn_if_match / warn_unless_match: a compiled
// pattern plus an optional message and fix.
type RegexRule struct {
	Label   string // map key, used in change-log notes
	Pattern *regexp.Regexp
	Unless  bool // true for warn_unless_match semantics
	Message string
	Fix     FixFunc
}

// AssertFunc evaluates a pending value and reports whether it satisfies the
// rule. Used by both assert (hard failure) and warn_if/warn_unless (soft).
type AssertFunc func(pending string) bool

// AssertRule is one entry of assert / warn_if / warn_unless.
type AssertRule struct {
	Label   string
	Code    AssertFunc
	Unless  bool // true for warn_unless semantics (condition must be false)
	Message string
	Fix     FixFunc
}

// HelpEntry is one entry of the help map, tried longest-pattern-first.
type HelpEntry struct {
	Pattern *regexp.Regexp
	Raw     string // original key, for fallback detection ("." / ".*")
	Text    string
}

// ComputeSpec describes a computed or migrated value: a formula evaluated
// over named variables resolved from other tree paths.
//
// The catalog's "formula" parameter is a Go closure rather than a parsed
// expression string: no library in the dependency surface provides a
// runtime expression evaluator (see DESIGN.md), so catalogs register
// formulas programmatically.
type ComputeSpec struct {
	// Variables maps a symbolic name used inside Formula to a tree path,
	// resolved by the caller (Node/Instance) before Formula runs.
	Variables map[string]string
	// Formula computes the result from resolved variable values.
	Formula func(vars map[string]string) (string, error)
	// Replace is applied to the formula's result before validation, same
	// shape as the leaf-level replace parameter.
	Replace map[string]string
	// AllowOverride permits a user store to shadow the computed value.
	AllowOverride bool
}

// ReferSpec describes refer_to / computed_refer_to: the set of legal values
// for a reference-typed leaf is the live key set of another collection.
type ReferSpec struct {
	// Path is a (possibly templated) path to a Hash/List collection whose
	// indices form the choice set.
	Path string
	// Computed marks computed_refer_to (the path itself may reference
	// other values); resolution still goes through Resolver.
	Computed bool
}

// Resolver lets a Value reach back into its owning tree without holding a
// direct reference to Node/Instance (keeps the package dependency-free and
// unit-testable). Node wires a concrete Resolver in when constructing a
// Value from a catalog element.
type Resolver interface {
	// PathValue resolves a dotted element path to its current fetched
	// value (mode=user), for compute/migrate variables.
	PathValue(path string) (string, error)
	// LiveChoices resolves a refer_to/follow_keys_from path to the live
	// set of indices (hash keys or list positions as strings).
	LiveChoices(path string) ([]string, error)
	// ReplaceFollow resolves path to a live string->string map used by
	// replace_follow.
	ReplaceFollow(path string) (map[string]string, error)
}

// Spec is the full set of schema parameters recognized for a leaf, matching
// spec.md §4.1's parameter table.
type Spec struct {
	Type Kind

	Min, Max    *float64
	Choice      []string
	WriteAs     [2]string // [false_string, true_string]; empty means unset
	HasWriteAs  bool
	Default     *string
	Upstream    *string
	Mandatory   bool
	Match       *regexp.Regexp
	Grammar     *Grammar
	WarnIfMatch []RegexRule
	Assert      []AssertRule
	WarnIf      []AssertRule
	Warn        string
	Convert     string // "lc" | "uc" | ""
	Replace     map[string]string
	ReplaceFollowPath string
	Compute     *ComputeSpec
	MigrateFrom *ComputeSpec
	Help        []HelpEntry
	Refer       *ReferSpec

	Resolver Resolver

	choiceIndex map[string]bool
}

// InvalidateChoiceCache clears the memoized choice-set index, used after a
// warp rule overwrites Choice at runtime (spec.md §4.5, §8 scenario 2).
func (s *Spec) InvalidateChoiceCache() {
	s.choiceIndex = nil
}

// Validate checks the schema itself for internal consistency, raising the
// ModelError conditions spec.md §4.1 names explicitly.
func (s *Spec) selfCheck() error {
	if !s.Type.valid() {
		return modelErrf("unknown value_type %q", s.Type)
	}
	if s.HasWriteAs && s.Type != KindBoolean {
		return modelErrf("write_as is only valid on boolean leaves")
	}
	if s.Default != nil && s.Upstream != nil {
		return modelErrf("default and upstream_default are mutually exclusive")
	}
	if (s.Min != nil || s.Max != nil) && !s.Type.numeric() {
		return modelErrf("min/max only apply to integer/number leaves")
	}
	if s.Type == KindEnum && len(s.Choice) == 0 {
		return modelErrf("enum leaf requires a non-empty choice list")
	}
	return nil
}
