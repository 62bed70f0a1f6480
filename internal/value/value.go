package value

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentic-research/configtree/internal/cfgerr"
)

var (
	lowerCaser = cases.Lower(language.Und)
	upperCaser = cases.Upper(language.Und)
)

// maxFixIterations bounds apply_fixes's re-validate loop (spec.md §4.1,
// §5, §9): a fix that always re-violates its own rule is an engine bug,
// not a user error.
const maxFixIterations = 20

// StoreResult reports what a Store call actually did, so the caller
// (Node/Instance) can decide whether to append a change-log entry. Per
// spec.md §9's design note, the initial-load decision is centralized in
// Instance, not scattered across Value — Value only reports the facts.
type StoreResult struct {
	Changed     bool
	Old, New    string
	Transformed bool // convert/replace/fix mutated the raw input
	Note        string
	SoftError   error
	Emitted     []EmittedWarning
}

// EmittedWarning is one warning Store decided to surface to the caller's
// logger, with Repeat set once the same (path, message) pair has already
// been seen once on this Value (spec.md §7: "subsequent identical messages
// drop to debug level").
type EmittedWarning struct {
	Message string
	Repeat  bool
}

// Value is a typed leaf: at most one live value per source, precedence
// resolved at fetch time. See spec.md §3, §4.1.
type Value struct {
	spec *Spec

	user    *string
	preset  *string
	layered *string

	migrationDone bool
	migrateArmed  bool

	lastWarnings []Warning
	warnedOnce   map[string]bool
}

// New builds a Value from a validated schema. Returns a ModelError if the
// schema itself is inconsistent.
func New(spec *Spec) (*Value, error) {
	if err := spec.selfCheck(); err != nil {
		return nil, err
	}
	return &Value{spec: spec, warnedOnce: make(map[string]bool)}, nil
}

// HasData reports whether reading in custom mode yields a value (spec.md
// §3's has_data invariant).
func (v *Value) HasData(path string) bool {
	custom, _, err := v.Fetch(path, FetchCustom)
	return err == nil && custom != ""
}

// HasFixes reports how many findings from the last store/fetch validation
// carry an attached fix closure.
func (v *Value) HasFixes() int {
	n := 0
	for _, w := range v.lastWarnings {
		if w.Fix != nil {
			n++
		}
	}
	return n
}

// Clear removes the user slot, restoring precedence to the next source
// (spec.md §3: "writing null to the user slot restores precedence").
func (v *Value) Clear(path string) StoreResult {
	old := v.userRaw()
	if v.user == nil {
		return StoreResult{Changed: false, Old: old, New: old}
	}
	v.user = nil
	newVal := v.userRaw()
	return StoreResult{Changed: old != newVal, Old: old, New: newVal}
}

// ClearLayered drops the layered slot, used by Instance's layered_clear
// between layered_start/layered_stop brackets (spec.md §4.6). Unlike
// Clear, this never touches the user slot and is not itself a change-log
// event — layered data is scratch state a backend rebuilds every pass.
func (v *Value) ClearLayered() {
	v.layered = nil
}

// userRaw returns the raw user-slot string, or "" if unset — used
// internally for change-log deltas (not the public fetch API).
func (v *Value) userRaw() string {
	if v.user != nil {
		return *v.user
	}
	raw, _, _ := v.Fetch("", FetchStandard)
	return raw
}

// Store implements spec.md §4.1's store protocol.
func (v *Value) Store(path string, mode Mode, raw string, check CheckMode, silent bool) (StoreResult, error) {
	s := v.spec

	if s.Compute != nil && !s.Compute.AllowOverride {
		if check == CheckYes {
			return StoreResult{}, cfgerr.New(cfgerr.ModelError, path, "cannot store into a computed value")
		}
		return StoreResult{}, nil // no-op
	}

	pending := raw
	transformed := false

	switch s.Convert {
	case "lc":
		if low := lowerCaser.String(pending); low != pending {
			pending = low
			transformed = true
		}
	case "uc":
		if up := upperCaser.String(pending); up != pending {
			pending = up
			transformed = true
		}
	}

	if s.Type == KindBoolean {
		canon, ok := s.normalizeBool(pending)
		if !ok {
			return StoreResult{}, wrongValuef(path, "%q is not a recognized boolean", pending)
		}
		if canon != pending {
			transformed = true
		}
		pending = canon
	}

	if len(s.Replace) > 0 {
		if repl, ok := s.Replace[pending]; ok && repl != pending {
			pending = repl
			transformed = true
		}
	}

	if pending == "" && s.Mandatory {
		resolved, _, _ := v.Fetch(path, FetchStandard)
		if resolved != "" {
			pending = resolved
			transformed = true
		}
	}

	warnings, verr := s.validate(path, pending)
	v.lastWarnings = warnings
	var emitted []EmittedWarning
	if verr != nil {
		switch check {
		case CheckYes:
			return StoreResult{}, verr
		case CheckSkip:
			return StoreResult{SoftError: verr}, nil
		case CheckNo:
			// fall through: store anyway, but remember the soft error
		}
	} else if !silent {
		for _, w := range warnings {
			first := v.emitWarning(path, w.Message)
			emitted = append(emitted, EmittedWarning{Message: w.Message, Repeat: !first})
		}
	}

	old := v.slotValue(mode)
	if old != nil && *old == pending && verr == nil {
		return StoreResult{Changed: false, Old: pending, New: pending, Emitted: emitted}, nil
	}

	oldStr := ""
	if old != nil {
		oldStr = *old
	}
	v.setSlot(mode, pending)

	result := StoreResult{Changed: oldStr != pending, Old: oldStr, New: pending, Transformed: transformed, Emitted: emitted}
	if check == CheckNo && verr != nil {
		result.SoftError = verr
	}
	return result, nil
}

func (v *Value) slotValue(mode Mode) *string {
	switch mode {
	case ModePreset:
		return v.preset
	case ModeLayered:
		return v.layered
	default:
		return v.user
	}
}

func (v *Value) setSlot(mode Mode, val string) {
	switch mode {
	case ModePreset:
		v.preset = &val
	case ModeLayered:
		v.layered = &val
	default:
		v.user = &val
	}
}

// emitWarning reports whether message is the first occurrence of this exact
// text on this value. Store's caller turns that into an EmittedWarning, and
// Instance.LogWarning is what actually downgrades a repeat to debug level —
// Value has no logger of its own, only this dedup bookkeeping.
func (v *Value) emitWarning(path, message string) bool {
	key := path + "\x00" + message
	if v.warnedOnce[key] {
		return false
	}
	v.warnedOnce[key] = true
	return true
}

// Fetch implements spec.md §4.1's read protocol across all FetchModes.
func (v *Value) Fetch(path string, mode FetchMode) (result string, substituted bool, err error) {
	s := v.spec

	raw, rerr := v.resolveRaw(path, mode)
	if rerr != nil {
		return "", false, rerr
	}

	if v.mandatoryEmptyApplies(mode) && raw == "" && s.Mandatory {
		if mode == FetchAllowUndef {
			return "", false, nil
		}
		return "", false, userErrf(path, "mandatory value is empty")
	}

	if s.ReplaceFollowPath != "" && s.Resolver != nil && raw != "" {
		if m, merr := s.Resolver.ReplaceFollow(s.ReplaceFollowPath); merr == nil {
			if repl, ok := m[raw]; ok && repl != raw {
				raw = repl
				substituted = true
			}
		}
	}

	if s.Type == KindBoolean && raw != "" {
		raw = s.projectBool(raw)
	}

	return raw, substituted, nil
}

func (v *Value) mandatoryEmptyApplies(mode FetchMode) bool {
	switch mode {
	case FetchBackend, FetchUser, FetchStandard, FetchCustom, FetchNonUpstreamDefault, FetchAllowUndef:
		return true
	default:
		return false
	}
}

func (v *Value) resolveRaw(path string, mode FetchMode) (string, error) {
	s := v.spec

	v.tryMigrate(path)

	str := func(p *string) (string, bool) {
		if p == nil {
			return "", false
		}
		return *p, true
	}

	computed := func() (string, bool) {
		if s.Compute == nil {
			return "", false
		}
		val, err := evalCompute(s.Compute, s.Resolver)
		if err != nil {
			return "", false
		}
		return val, true
	}

	def := func() (string, bool) {
		if s.Default == nil {
			return "", false
		}
		return *s.Default, true
	}
	upstream := func() (string, bool) {
		if s.Upstream == nil {
			return "", false
		}
		return *s.Upstream, true
	}

	chain := func(steps ...func() (string, bool)) string {
		for _, step := range steps {
			if val, ok := step(); ok {
				return val
			}
		}
		return ""
	}

	switch mode {
	case FetchBackend:
		return chain(func() (string, bool) { return str(v.user) }, func() (string, bool) { return str(v.preset) }, computed, def), nil
	case FetchUser:
		return chain(
			func() (string, bool) { return str(v.user) },
			func() (string, bool) { return str(v.preset) },
			computed,
			func() (string, bool) { return str(v.layered) },
			def,
			upstream,
		), nil
	case FetchStandard, FetchNonUpstreamDefault:
		val := chain(
			func() (string, bool) { return str(v.preset) },
			computed,
			func() (string, bool) { return str(v.layered) },
			def,
		)
		if mode == FetchStandard {
			if val == "" {
				val = chain(upstream)
			}
		}
		return val, nil
	case FetchCustom:
		u, ok := str(v.user)
		if !ok {
			return "", nil
		}
		standard, _ := v.resolveRaw(path, FetchStandard)
		if u == standard {
			return "", nil
		}
		return u, nil
	case FetchPreset:
		return chain(func() (string, bool) { return str(v.preset) }), nil
	case FetchLayered:
		return chain(func() (string, bool) { return str(v.layered) }), nil
	case FetchDefault:
		return chain(def), nil
	case FetchUpstreamDefault:
		return chain(upstream), nil
	case FetchAllowUndef:
		return v.resolveRaw(path, FetchUser)
	default:
		return "", cfgerr.New(cfgerr.Internal, path, "unknown fetch mode %d", mode)
	}
}

func evalCompute(c *ComputeSpec, r Resolver) (string, error) {
	vars := make(map[string]string, len(c.Variables))
	for name, p := range c.Variables {
		if r == nil {
			continue
		}
		val, err := r.PathValue(p)
		if err != nil {
			return "", err
		}
		vars[name] = val
	}
	result, err := c.Formula(vars)
	if err != nil {
		return "", err
	}
	if repl, ok := c.Replace[result]; ok {
		result = repl
	}
	return result, nil
}

// ArmMigration marks this leaf as eligible for a one-shot migrate_from
// evaluation on its next read, mirroring spec.md §4.1: "on first read
// after initial load". Instance calls this on every leaf when
// initial_load_stop() fires.
func (v *Value) ArmMigration() {
	v.migrateArmed = true
}

func (v *Value) tryMigrate(path string) {
	s := v.spec
	if !v.migrateArmed || v.migrationDone || s.MigrateFrom == nil {
		return
	}
	v.migrationDone = true
	if v.user != nil {
		return // user slot already populated — nothing to migrate into
	}
	result, err := evalCompute(s.MigrateFrom, s.Resolver)
	if err != nil {
		return
	}
	if _, verr := s.validate(path, result); verr != nil {
		return
	}
	v.user = &result
}

// ApplyFixes re-runs validation and invokes every triggered rule's Fix
// closure, iterating until nothing changes or maxFixIterations is
// exceeded (spec.md §4.1, §9).
func (v *Value) ApplyFixes(path string, mode Mode) (StoreResult, error) {
	current := v.userRaw()
	start := current
	applied := []string{}

	for i := 0; i < maxFixIterations; i++ {
		warnings, _ := v.spec.validate(path, current)
		v.lastWarnings = warnings
		fixed := false
		for _, w := range warnings {
			if w.Fix == nil {
				continue
			}
			next := w.Fix(current)
			if next != current {
				current = next
				applied = append(applied, w.Message)
				fixed = true
			}
		}
		if !fixed {
			if current == start {
				return StoreResult{Changed: false, Old: start, New: start}, nil
			}
			v.setSlot(mode, current)
			note := "applied fix"
			if len(applied) > 0 {
				note = "applied fix: " + applied[len(applied)-1]
			}
			return StoreResult{Changed: true, Old: start, New: current, Transformed: true, Note: note}, nil
		}
	}
	return StoreResult{}, cfgerr.New(cfgerr.ModelError, path, "fix loop exceeded %d iterations", maxFixIterations)
}
