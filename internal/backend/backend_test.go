package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/instance"
	"github.com/agentic-research/configtree/internal/value"
)

func testCatalog() *api.Catalog {
	database := &api.ConfigClass{
		Name: "Database",
		Elements: []api.Element{
			{Name: "host", Kind: api.ElementLeaf, ValueParams: map[string]any{"type": "string"}},
			{Name: "port", Kind: api.ElementLeaf, ValueParams: map[string]any{"type": "integer"}},
		},
	}
	root := &api.ConfigClass{
		Name: "Root",
		Elements: []api.Element{
			{Name: "name", Kind: api.ElementLeaf, ValueParams: map[string]any{"type": "string"}},
			{Name: "database", Kind: api.ElementNode, ClassName: "Database"},
			{
				Name: "tags",
				Kind: api.ElementHash,
				CollectionParams: map[string]any{
					"auto_create_keys": true,
					"cargo_value":      map[string]any{"type": "string"},
				},
			},
		},
	}
	return &api.Catalog{Classes: map[string]*api.ConfigClass{"Database": database, "Root": root}, RootClass: "Root"}
}

func TestFileBackendJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inst := instance.New("test", testCatalog(), nil)

	require.NoError(t, inst.Root().StoreLeaf("name", "alice"))
	db, err := inst.Root().Child("database")
	require.NoError(t, err)
	require.NoError(t, db.StoreLeaf("host", "db.internal"))
	require.NoError(t, db.StoreLeaf("port", "5432"))
	require.NoError(t, inst.Root().StoreCollectionLeaf("tags", "web", "1"))

	fb := NewFileBackend("file")
	require.NoError(t, fb.Write(inst.Root(), dir, "config.json", 0))

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "database.host")
	assert.Contains(t, string(raw), "tags[web]")

	inst2 := instance.New("test", testCatalog(), nil)
	require.NoError(t, fb.Read(inst2.Root(), dir, "config.json", value.CheckYes))

	name, err := inst2.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	db2, err := inst2.Root().Child("database")
	require.NoError(t, err)
	host, err := db2.FetchLeaf("host", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", host)

	tag, err := inst2.Root().FetchCollectionLeaf("tags", "web", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "1", tag)
}

func TestFileBackendYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inst := instance.New("test", testCatalog(), nil)
	require.NoError(t, inst.Root().StoreLeaf("name", "bob"))

	fb := NewFileBackend("file")
	require.NoError(t, fb.Write(inst.Root(), dir, "config.yaml", 0))

	inst2 := instance.New("test", testCatalog(), nil)
	require.NoError(t, fb.Read(inst2.Root(), dir, "config.yaml", value.CheckYes))
	name, err := inst2.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestFileBackendMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	inst := instance.New("test", testCatalog(), nil)
	fb := NewFileBackend("file")
	assert.NoError(t, fb.Read(inst.Root(), dir, "missing.json", value.CheckYes))
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inst := instance.New("test", testCatalog(), nil)
	require.NoError(t, inst.Root().StoreLeaf("name", "carol"))
	require.NoError(t, inst.Root().StoreCollectionLeaf("tags", "db", "1"))

	sb := NewSQLiteBackend("sqlite")
	require.NoError(t, sb.Write(inst.Root(), dir, "config.db", 0))

	inst2 := instance.New("test", testCatalog(), nil)
	require.NoError(t, sb.Read(inst2.Root(), dir, "config.db", value.CheckYes))

	name, err := inst2.Root().FetchLeaf("name", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "carol", name)

	tag, err := inst2.Root().FetchCollectionLeaf("tags", "db", value.FetchUser)
	require.NoError(t, err)
	assert.Equal(t, "1", tag)
}
