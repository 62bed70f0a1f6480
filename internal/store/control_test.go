package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerPublishesGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.ctrl")
	c, err := OpenControl(path)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.EqualValues(t, 0, c.Generation())
	require.NoError(t, c.SetArena("/tmp/instance.arena", 4096, 3))
	assert.EqualValues(t, 3, c.Generation())
	assert.Equal(t, "/tmp/instance.arena", c.ArenaPath())
}

func TestControllerRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instance.ctrl")
	c, err := OpenControl(path)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	// Corrupt the magic, then reopening must fail rather than silently
	// treat unrelated bytes as a control block.
	data, rerr := os.ReadFile(path)
	require.NoError(t, rerr)
	data[0] = 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenControl(path)
	assert.Error(t, err)
}
