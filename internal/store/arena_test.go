package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.arena")
	a, err := Open(path, 4096)
	require.NoError(t, err)

	snap := &Snapshot{Changes: []string{"database.host: \"\" -> \"db.internal\""}, HasData: []string{"database.host"}}
	require.NoError(t, a.Save(snap))
	assert.EqualValues(t, 1, snap.Generation)

	got, err := a.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"database.host"}, got.HasData)
	assert.EqualValues(t, 1, got.Generation)
}

func TestArenaLoadBeforeAnySaveIsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.arena")
	a, err := Open(path, 4096)
	require.NoError(t, err)

	got, err := a.Load()
	require.NoError(t, err)
	assert.Empty(t, got.Changes)
	assert.EqualValues(t, 0, got.Generation)
}

func TestArenaSwapsActiveBufferEachSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.arena")
	a, err := Open(path, 4096)
	require.NoError(t, err)

	require.NoError(t, a.Save(&Snapshot{HasData: []string{"a"}}))
	gen1, err := a.Generation()
	require.NoError(t, err)

	require.NoError(t, a.Save(&Snapshot{HasData: []string{"a", "b"}}))
	gen2, err := a.Generation()
	require.NoError(t, err)

	assert.Equal(t, gen1+1, gen2)

	got, err := a.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.HasData)
}

func TestArenaRejectsOversizedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.arena")
	a, err := Open(path, 16)
	require.NoError(t, err)

	big := make([]string, 50)
	for i := range big {
		big[i] = "some.fairly.long.path.segment.name"
	}
	err = a.Save(&Snapshot{HasData: big})
	assert.Error(t, err)
}

func TestArenaReopenPreservesState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.arena")
	a, err := Open(path, 4096)
	require.NoError(t, err)
	require.NoError(t, a.Save(&Snapshot{HasData: []string{"x"}}))

	reopened, err := Open(path, 4096)
	require.NoError(t, err)
	got, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.HasData)
}
