package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringCargo struct {
	val string
}

func (c *stringCargo) HasData() bool { return c.val != "" }

func newHashSpec() *Spec {
	return &Spec{
		Kind: KindHash,
		NewCargo: func(index string, mode DataMode) (Cargo, error) {
			return &stringCargo{}, nil
		},
	}
}

func newListSpec() *Spec {
	return &Spec{
		Kind: KindList,
		NewCargo: func(index string, mode DataMode) (Cargo, error) {
			return &stringCargo{}, nil
		},
	}
}

func TestGetAutocreatesHashEntry(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	c, err := New(s)
	require.NoError(t, err)

	cargo, err := c.Get("", "web-1", DataModeNormal)
	require.NoError(t, err)
	assert.NotNil(t, cargo)

	same, err := c.Get("", "web-1", DataModeNormal)
	require.NoError(t, err)
	assert.Same(t, cargo, same)
}

func TestGetRejectsUnknownWithoutAutoCreate(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = false
	c, err := New(s)
	require.NoError(t, err)

	_, err = c.Get("", "web-1", DataModeNormal)
	require.Error(t, err)
}

func TestMaxNbEnforced(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	max := 2
	s.MaxNb = &max
	c, err := New(s)
	require.NoError(t, err)

	_, err = c.Get("", "a", DataModeNormal)
	require.NoError(t, err)
	_, err = c.Get("", "b", DataModeNormal)
	require.NoError(t, err)
	_, err = c.Get("", "c", DataModeNormal)
	require.Error(t, err)
}

func TestMinMaxIndexBoundsOnListKeys(t *testing.T) {
	s := newListSpec()
	min, max := int64(0), int64(5)
	s.MinIndex, s.MaxIndex = &min, &max
	c, err := New(s)
	require.NoError(t, err)

	_, err = c.Get("", "6", DataModeNormal)
	require.Error(t, err)
	_, err = c.Get("", "-1", DataModeNormal)
	require.Error(t, err)
	_, err = c.Get("", "3", DataModeNormal)
	require.NoError(t, err)
}

func TestDeleteRemovesFromOrderAndBitmap(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	c, err := New(s)
	require.NoError(t, err)

	_, err = c.Get("", "a", DataModeNormal)
	require.NoError(t, err)
	_, err = c.Get("", "b", DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())

	c.Delete("a")
	assert.Equal(t, 1, c.Size())
	_, ok := c.Peek("a")
	assert.False(t, ok)

	// Re-adding "a" must succeed and not collide with the removed bitmap bit.
	_, err = c.Get("", "a", DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())
}

func TestFetchAllIndexesSortsUnorderedHash(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	c, err := New(s)
	require.NoError(t, err)

	for _, k := range []string{"zeta", "alpha", "mid"} {
		_, err := c.Get("", k, DataModeNormal)
		require.NoError(t, err)
	}

	idx, err := c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, idx)
}

func TestFetchAllIndexesPreservesOrderedHash(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.Ordered = true
	c, err := New(s)
	require.NoError(t, err)

	for _, k := range []string{"zeta", "alpha", "mid"} {
		_, err := c.Get("", k, DataModeNormal)
		require.NoError(t, err)
	}

	idx, err := c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, idx)
}

func TestLazyDefaultKeysSeedOnFirstEnumeration(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.DefaultKeys = []string{"one", "two"}
	c, err := New(s)
	require.NoError(t, err)

	assert.Equal(t, 0, c.Size())
	idx, err := c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, idx)
}

func TestLazyDefaultKeysSkippedWhenAlreadyPopulated(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.DefaultKeys = []string{"one", "two"}
	c, err := New(s)
	require.NoError(t, err)

	_, err = c.Get("", "custom", DataModeNormal)
	require.NoError(t, err)

	idx, err := c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, idx)
}

func TestPushAppendsSequentialListIndices(t *testing.T) {
	c, err := New(newListSpec())
	require.NoError(t, err)

	k0, _, err := c.Push(DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, "0", k0)

	k1, _, err := c.Push(DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, "1", k1)
}

func TestInsertAtShiftsLaterIndices(t *testing.T) {
	c, err := New(newListSpec())
	require.NoError(t, err)

	_, first, err := c.Push(DataModeNormal)
	require.NoError(t, err)
	first.(*stringCargo).val = "first"
	_, second, err := c.Push(DataModeNormal)
	require.NoError(t, err)
	second.(*stringCargo).val = "second"

	_, inserted, err := c.InsertAt(1, DataModeNormal)
	require.NoError(t, err)
	inserted.(*stringCargo).val = "inserted"

	idx, err := c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, idx)

	c0, _ := c.Peek("0")
	c1, _ := c.Peek("1")
	c2, _ := c.Peek("2")
	assert.Equal(t, "first", c0.(*stringCargo).val)
	assert.Equal(t, "inserted", c1.(*stringCargo).val)
	assert.Equal(t, "second", c2.(*stringCargo).val)
}

func TestSwapAndMoveUpDown(t *testing.T) {
	c, err := New(newListSpec())
	require.NoError(t, err)
	_, a, _ := c.Push(DataModeNormal)
	a.(*stringCargo).val = "a"
	_, b, _ := c.Push(DataModeNormal)
	b.(*stringCargo).val = "b"

	require.NoError(t, c.Swap(0, 1))
	c0, _ := c.Peek("0")
	c1, _ := c.Peek("1")
	assert.Equal(t, "b", c0.(*stringCargo).val)
	assert.Equal(t, "a", c1.(*stringCargo).val)

	require.NoError(t, c.MoveUp(1))
	c0, _ = c.Peek("0")
	c1, _ = c.Peek("1")
	assert.Equal(t, "a", c0.(*stringCargo).val)
	assert.Equal(t, "b", c1.(*stringCargo).val)
}

func TestMovePreservesDataMode(t *testing.T) {
	spec := newHashSpec()
	spec.AutoCreateKeys = true
	c, err := New(spec)
	require.NoError(t, err)

	_, err = c.Get("", "old", DataModePreset)
	require.NoError(t, err)

	require.NoError(t, c.Move("old", "new"))

	_, ok := c.Peek("new")
	require.True(t, ok)
	assert.Equal(t, DataModePreset, c.modes["new"], "Move must carry the source entry's load-provenance tag, not reset it to DataModeNormal")
}

func TestSortReordersAndRenumbers(t *testing.T) {
	c, err := New(newListSpec())
	require.NoError(t, err)
	_, x, _ := c.Push(DataModeNormal)
	x.(*stringCargo).val = "banana"
	_, y, _ := c.Push(DataModeNormal)
	y.(*stringCargo).val = "apple"

	err = c.Sort(func(a, b Cargo) bool {
		return a.(*stringCargo).val < b.(*stringCargo).val
	})
	require.NoError(t, err)

	c0, _ := c.Peek("0")
	c1, _ := c.Peek("1")
	assert.Equal(t, "apple", c0.(*stringCargo).val)
	assert.Equal(t, "banana", c1.(*stringCargo).val)
}

func TestDuplicatesForbidRaisesErrors(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.Duplicates = DuplicatesForbid
	s.ExtractValue = func(cg Cargo) (string, bool) { return cg.(*stringCargo).val, true }
	c, err := New(s)
	require.NoError(t, err)

	a, _ := c.Get("", "a", DataModeNormal)
	a.(*stringCargo).val = "x"
	b, _ := c.Get("", "b", DataModeNormal)
	b.(*stringCargo).val = "x"

	errs, warnings := c.CheckContent(false, false)
	assert.Len(t, errs, 1)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, c.Size(), "forbid never mutates the collection")
}

func TestDuplicatesSuppressRemovesLaterOccurrences(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.Duplicates = DuplicatesSuppress
	s.ExtractValue = func(cg Cargo) (string, bool) { return cg.(*stringCargo).val, true }
	c, err := New(s)
	require.NoError(t, err)

	a, _ := c.Get("", "a", DataModeNormal)
	a.(*stringCargo).val = "x"
	b, _ := c.Get("", "b", DataModeNormal)
	b.(*stringCargo).val = "x"

	_, warnings := c.CheckContent(false, false)
	assert.Len(t, warnings, 1)
	assert.Equal(t, 1, c.Size())
	_, aStillThere := c.Peek("a")
	assert.True(t, aStillThere)
}

func TestDuplicatesWarnAppliesFixOnlyWhenAsked(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.Duplicates = DuplicatesWarn
	s.ExtractValue = func(cg Cargo) (string, bool) { return cg.(*stringCargo).val, true }
	c, err := New(s)
	require.NoError(t, err)

	a, _ := c.Get("", "a", DataModeNormal)
	a.(*stringCargo).val = "x"
	b, _ := c.Get("", "b", DataModeNormal)
	b.(*stringCargo).val = "x"

	_, warnings := c.CheckContent(false, false)
	assert.Len(t, warnings, 1)
	assert.Equal(t, 2, c.Size(), "warn without apply_fix leaves both entries")

	_, warnings = c.CheckContent(true, false)
	assert.Len(t, warnings, 1)
	assert.Equal(t, 1, c.Size())
}

func TestEnsureReturnsExistingBeforeCreating(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	c, err := New(s)
	require.NoError(t, err)

	a, _ := c.Get("", "a", DataModeNormal)
	a.(*stringCargo).val = "target"

	created := false
	k, cargo, err := c.Ensure(
		func(cg Cargo) bool { return cg.(*stringCargo).val == "target" },
		func() (string, DataMode) { created = true; return "new", DataModeNormal },
	)
	require.NoError(t, err)
	assert.Equal(t, "a", k)
	assert.Same(t, a, cargo)
	assert.False(t, created)
}

type stubResolver struct {
	keys map[string][]string
}

func (r *stubResolver) LiveKeys(path string) ([]string, error) { return r.keys[path], nil }

func TestMigrateKeysRunsOnceAgainstResolver(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	s.MigrateKeysFrom = "old.hosts"
	s.Resolver = &stubResolver{keys: map[string][]string{"old.hosts": {"a", "b"}}}
	c, err := New(s)
	require.NoError(t, err)

	require.NoError(t, c.MigrateKeys(DataModeNormal))
	idx, err := c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, idx)

	// A second call must not re-run against a changed resolver result.
	s.Resolver = &stubResolver{keys: map[string][]string{"old.hosts": {"a", "b", "c"}}}
	require.NoError(t, c.MigrateKeys(DataModeNormal))
	idx, err = c.FetchAllIndexes(DataModeNormal)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, idx)
}

func TestEnsureNotifiesOnCreate(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	var notified []string
	s.Notify = func(suffix string) { notified = append(notified, suffix) }
	c, err := New(s)
	require.NoError(t, err)

	// Ensure's autovivify branch must notify exactly like every other
	// mutating method (Get, Push, Delete, ...), or a caller relying on
	// ensure(v) to autocreate an entry never sees the change recorded.
	_, _, err = c.Ensure(
		func(cg Cargo) bool { return false },
		func() (string, DataMode) { return "fresh", DataModeNormal },
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"{fresh}"}, notified)
}

func TestEnsureCreatesWhenNoMatch(t *testing.T) {
	s := newHashSpec()
	s.AutoCreateKeys = true
	c, err := New(s)
	require.NoError(t, err)

	k, cargo, err := c.Ensure(
		func(cg Cargo) bool { return false },
		func() (string, DataMode) { return "fresh", DataModeNormal },
	)
	require.NoError(t, err)
	assert.Equal(t, "fresh", k)
	assert.NotNil(t, cargo)
}
