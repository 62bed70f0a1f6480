package instance

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/loader"
	"github.com/agentic-research/configtree/internal/value"
)

func testCatalog() *api.Catalog {
	root := &api.ConfigClass{
		Name: "Root",
		Elements: []api.Element{
			{Name: "name", Kind: api.ElementLeaf, ValueParams: map[string]any{"type": "string"}},
		},
	}
	return &api.Catalog{Classes: map[string]*api.ConfigClass{"Root": root}, RootClass: "Root"}
}

func TestStoreRecordsChangeAndNeedsSave(t *testing.T) {
	inst := New("test", testCatalog(), nil)
	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))

	assert.Equal(t, 1, inst.NeedsSave())
	assert.Len(t, inst.ListChanges(), 1)

	got, err := inst.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestInitialLoadSuppressesChangeLog(t *testing.T) {
	inst := New("test", testCatalog(), nil)

	inst.InitialLoadStart()
	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))
	inst.InitialLoadStop()

	assert.Equal(t, 0, inst.NeedsSave())
	assert.Empty(t, inst.ListChanges())

	got, err := inst.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "alice", got)
}

func TestInitialLoadConflictForcesChangeLog(t *testing.T) {
	inst := New("test", testCatalog(), nil)

	inst.InitialLoadStart()
	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))
	require.NoError(t, inst.Root().StoreLeaf("name", "bob"))
	inst.InitialLoadStop()

	// The first store is silent (ordinary initial-load suppression); the
	// second disagrees with it, which spec.md §9's conflict exception
	// always logs regardless of load mode.
	assert.Equal(t, 1, inst.NeedsSave())
	require.Len(t, inst.ListChanges(), 1)
	assert.Contains(t, inst.ListChanges()[0], "conflicting initial-load store")

	got, err := inst.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "bob", got)
}

func TestInitialLoadConflictTrackingResetsBetweenPasses(t *testing.T) {
	inst := New("test", testCatalog(), nil)

	inst.InitialLoadStart()
	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))
	inst.InitialLoadStop()
	require.Equal(t, 0, inst.NeedsSave())

	// A second, separate initial-load pass storing the same single value
	// is not a conflict — only two stores within the *same* pass disagreeing
	// counts.
	inst.InitialLoadStart()
	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))
	inst.InitialLoadStop()

	assert.Equal(t, 0, inst.NeedsSave())
	assert.Empty(t, inst.ListChanges())
}

func TestLogWarningDedupsToDebugAfterFirstOccurrence(t *testing.T) {
	catalog := &api.Catalog{
		Classes: map[string]*api.ConfigClass{"Root": {
			Name: "Root",
			Elements: []api.Element{
				{Name: "name", Kind: api.ElementLeaf, ValueParams: map[string]any{
					"type": "string",
					"warn": "this field is deprecated",
				}},
			},
		}},
		RootClass: "Root",
	}
	inst := New("test", catalog, nil)

	var buf bytes.Buffer
	inst.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))
	require.NoError(t, inst.Root().StoreLeaf("name", "bob"))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "level=WARN"))
	assert.Equal(t, 1, strings.Count(out, "level=DEBUG"))
}

func TestStoreSoftErrorFilesPerPathError(t *testing.T) {
	catalog := &api.Catalog{
		Classes: map[string]*api.ConfigClass{"Root": {
			Name: "Root",
			Elements: []api.Element{
				{Name: "port", Kind: api.ElementLeaf, ValueParams: map[string]any{"type": "integer"}},
			},
		}},
		RootClass: "Root",
	}
	inst := New("test", catalog, nil)
	inst.SetCheck(value.CheckNo)

	require.NoError(t, inst.Root().StoreLeaf("port", "not-a-number"))

	errs := inst.Errors()
	require.Contains(t, errs, "port")
	assert.ErrorContains(t, errs["port"], "not a valid integer")
}

func TestPresetModeRoundTrip(t *testing.T) {
	inst := New("test", testCatalog(), nil)

	inst.PresetStart()
	require.NoError(t, inst.Root().StoreLeaf("name", "from-preset"))
	inst.PresetStop()

	assert.Equal(t, value.ModeNormal, inst.ValueMode())

	got, err := inst.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "from-preset", got)
}

func TestWriteBackRunsRegisteredClosures(t *testing.T) {
	inst := New("test", testCatalog(), nil)
	var ran []string
	inst.RegisterWriteBack("name", "file", func() error {
		ran = append(ran, "name")
		return nil
	})

	require.NoError(t, inst.WriteBack())
	assert.Equal(t, []string{"name"}, ran)
	assert.Equal(t, 0, inst.NeedsSave())
}

func TestWriteBackCollectsFailures(t *testing.T) {
	inst := New("test", testCatalog(), nil)
	inst.RegisterWriteBack("a", "file", func() error { return assert.AnError })
	inst.RegisterWriteBack("b", "file", func() error { return nil })

	err := inst.WriteBack()
	require.Error(t, err)
	assert.Contains(t, inst.Errors(), "a")
	assert.NotContains(t, inst.Errors(), "b")
}

func TestSafeInstanceLoadAndDump(t *testing.T) {
	inst := New("test", testCatalog(), nil)
	safe := NewSafeInstance(inst)

	require.NoError(t, safe.Load(`name="alice"`, loader.Options{Check: value.CheckYes}))
	assert.Contains(t, safe.Dump(), "name=alice")
}
