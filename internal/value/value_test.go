package value

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/configtree/internal/cfgerr"
)

func mustValue(t *testing.T, s *Spec) *Value {
	t.Helper()
	v, err := New(s)
	require.NoError(t, err)
	return v
}

func TestStoreBasicInteger(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindInteger})

	res, err := v.Store("port", ModeNormal, "8080", CheckYes, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "8080", res.New)

	got, _, err := v.Fetch("port", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "8080", got)
}

func TestStoreRejectsNonInteger(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindInteger})
	_, err := v.Store("port", ModeNormal, "abc", CheckYes, false)
	require.Error(t, err)
	assert.True(t, cfgerr.Is(err, cfgerr.WrongValue))
}

func TestMandatoryEmptyRaisesOnFetch(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindString, Mandatory: true})
	_, _, err := v.Fetch("name", FetchUser)
	require.Error(t, err)
}

func TestMandatoryWithDefaultNeverEmpty(t *testing.T) {
	def := "localhost"
	v := mustValue(t, &Spec{Type: KindString, Mandatory: true, Default: &def})
	got, _, err := v.Fetch("host", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "localhost", got)
}

func TestEnumRejectsOutsideChoice(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindEnum, Choice: []string{"red", "green", "blue"}})
	_, err := v.Store("color", ModeNormal, "purple", CheckYes, false)
	require.Error(t, err)

	res, err := v.Store("color", ModeNormal, "green", CheckYes, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestEnumReChoiceAfterCatalogShrink(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindEnum, Choice: []string{"red", "green"}})
	_, err := v.Store("color", ModeNormal, "red", CheckYes, false)
	require.NoError(t, err)

	v.spec.Choice = []string{"green", "blue"}
	v.spec.choiceIndex = nil

	got, _, err := v.Fetch("color", FetchCustom)
	require.NoError(t, err)
	assert.Equal(t, "red", got, "stale user value is still readable until overwritten")

	_, err = v.Store("color", ModeNormal, "red", CheckYes, false)
	require.Error(t, err, "red is no longer a member of the shrunk choice set")
}

func TestBooleanNormalizationRoundTrip(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindBoolean})
	for _, raw := range []string{"y", "yes", "true", "on", "1"} {
		res, err := v.Store("enabled", ModeNormal, raw, CheckYes, false)
		require.NoError(t, err, raw)
		assert.Equal(t, "true", res.New, raw)
	}
	for _, raw := range []string{"n", "no", "false", "off", "0", ""} {
		res, err := v.Store("enabled", ModeNormal, raw, CheckYes, false)
		require.NoError(t, err, raw)
		assert.Equal(t, "false", res.New, raw)
	}
}

func TestBooleanWriteAsProjection(t *testing.T) {
	v := mustValue(t, &Spec{Type: KindBoolean, HasWriteAs: true, WriteAs: [2]string{"disabled", "enabled"}})

	res, err := v.Store("state", ModeNormal, "enabled", CheckYes, false)
	require.NoError(t, err)
	assert.Equal(t, "true", res.New)

	got, _, err := v.Fetch("state", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "enabled", got)

	// Storing the already-canonical projected word a second time is a no-op.
	res2, err := v.Store("state", ModeNormal, "enabled", CheckYes, false)
	require.NoError(t, err)
	assert.False(t, res2.Changed)
}

func TestWarnIfMatchAutoFix(t *testing.T) {
	fix := func(current string) string { return "fixed-" + current }
	v := mustValue(t, &Spec{
		Type: KindString,
		WarnIfMatch: []RegexRule{
			{Label: "no-raw", Pattern: regexp.MustCompile("^raw-.*"), Message: "raw values must be wrapped", Fix: fix},
		},
	})

	res, err := v.Store("label", ModeNormal, "raw-data", CheckSkip, true)
	require.NoError(t, err)
	assert.True(t, res.Changed, "a warn-only rule still stores the value")
	assert.Nil(t, res.SoftError, "warn_if_match never raises a hard validation error")

	fixed, err := v.ApplyFixes("label", ModeNormal)
	require.NoError(t, err)
	assert.True(t, fixed.Changed)
	assert.Equal(t, "fixed-raw-data", fixed.New)

	// Second pass is a no-op: the fixed value no longer matches the rule.
	again, err := v.ApplyFixes("label", ModeNormal)
	require.NoError(t, err)
	assert.False(t, again.Changed)
}

func TestApplyFixesGivesUpAfterIterationLimit(t *testing.T) {
	// A fix that always re-triggers its own rule must not loop forever.
	fix := func(current string) string { return current + "!" }
	v := mustValue(t, &Spec{
		Type: KindString,
		WarnIfMatch: []RegexRule{
			{Label: "never-satisfied", Pattern: regexp.MustCompile(".*"), Message: "always fires", Fix: fix},
		},
	})
	_, err := v.Store("x", ModeNormal, "seed", CheckSkip, true)
	require.NoError(t, err)

	_, err = v.ApplyFixes("x", ModeNormal)
	require.Error(t, err)
	assert.True(t, cfgerr.Is(err, cfgerr.ModelError))
}

func TestComputeValueIsReadOnlyByDefault(t *testing.T) {
	v := mustValue(t, &Spec{
		Type: KindString,
		Compute: &ComputeSpec{
			Formula: func(vars map[string]string) (string, error) { return "derived", nil },
		},
	})
	got, _, err := v.Fetch("x", FetchStandard)
	require.NoError(t, err)
	assert.Equal(t, "derived", got)

	_, err = v.Store("x", ModeNormal, "manual", CheckYes, false)
	require.Error(t, err)
}

func TestComputeValueAllowsOverrideWhenConfigured(t *testing.T) {
	v := mustValue(t, &Spec{
		Type: KindString,
		Compute: &ComputeSpec{
			Formula:       func(vars map[string]string) (string, error) { return "derived", nil },
			AllowOverride: true,
		},
	})
	res, err := v.Store("x", ModeNormal, "manual", CheckYes, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	got, _, err := v.Fetch("x", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "manual", got)
}

func TestClearRestoresPrecedence(t *testing.T) {
	def := "fallback"
	v := mustValue(t, &Spec{Type: KindString, Default: &def})
	_, err := v.Store("x", ModeNormal, "override", CheckYes, false)
	require.NoError(t, err)

	got, _, err := v.Fetch("x", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "override", got)

	cleared := v.Clear("x")
	assert.True(t, cleared.Changed)

	got, _, err = v.Fetch("x", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}

func TestMinMaxBounds(t *testing.T) {
	min, max := 1.0, 10.0
	v := mustValue(t, &Spec{Type: KindNumber, Min: &min, Max: &max})

	_, err := v.Store("x", ModeNormal, "0.5", CheckYes, false)
	require.Error(t, err)

	_, err = v.Store("x", ModeNormal, "10.5", CheckYes, false)
	require.Error(t, err)

	res, err := v.Store("x", ModeNormal, "5", CheckYes, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestSelfCheckRejectsConflictingDefaults(t *testing.T) {
	def, up := "a", "b"
	_, err := New(&Spec{Type: KindString, Default: &def, Upstream: &up})
	require.Error(t, err)
	assert.True(t, cfgerr.Is(err, cfgerr.ModelError))
}

func TestSelfCheckRejectsWriteAsOnNonBoolean(t *testing.T) {
	_, err := New(&Spec{Type: KindString, HasWriteAs: true, WriteAs: [2]string{"off", "on"}})
	require.Error(t, err)
}

type stubResolver struct {
	values  map[string]string
	choices map[string][]string
}

func (r *stubResolver) PathValue(path string) (string, error) { return r.values[path], nil }
func (r *stubResolver) LiveChoices(path string) ([]string, error) {
	return r.choices[path], nil
}
func (r *stubResolver) ReplaceFollow(path string) (map[string]string, error) { return nil, nil }

func TestMigrateFromArmsOnceAndOnlyWhenUserUnset(t *testing.T) {
	resolver := &stubResolver{values: map[string]string{"old.path": "legacy-value"}}
	v := mustValue(t, &Spec{
		Type: KindString,
		MigrateFrom: &ComputeSpec{
			Variables: map[string]string{"old": "old.path"},
			Formula:   func(vars map[string]string) (string, error) { return vars["old"], nil },
		},
		Resolver: resolver,
	})

	v.ArmMigration()
	got, _, err := v.Fetch("new.path", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "legacy-value", got)

	resolver.values["old.path"] = "changed-after-migration"
	v.migrateArmed = true // simulate a second initial_load_stop on the same instance
	got2, _, err := v.Fetch("new.path", FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "legacy-value", got2, "migration runs at most once per value")
}

func TestReferenceValidatesAgainstLiveChoices(t *testing.T) {
	resolver := &stubResolver{choices: map[string][]string{"hosts": {"web-1", "web-2"}}}
	v := mustValue(t, &Spec{
		Type:     KindReference,
		Refer:    &ReferSpec{Path: "hosts"},
		Resolver: resolver,
	})

	_, err := v.Store("primary", ModeNormal, "web-3", CheckYes, false)
	require.Error(t, err)

	res, err := v.Store("primary", ModeNormal, "web-1", CheckYes, false)
	require.NoError(t, err)
	assert.True(t, res.Changed)
}
