package reference

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"modernc.org/sqlite/vtab"
)

// RefsModule implements vtab.Module, exposing a "configtree_refs(path,
// key)" virtual table over a sidecar SQLite schema of interned keys and
// per-path bitmaps. It is a process-wide singleton because
// modernc.org/sqlite registers modules globally (driver-level, not
// per-DB) — identical constraint to the teacher's refsvtab.
type RefsModule struct {
	mu  sync.RWMutex
	dbs map[string]*sql.DB
}

var (
	once      sync.Once
	singleton *RefsModule
	initErr   error
)

// Register registers the configtree_refs module with the global SQLite
// driver. Safe to call multiple times — only the first call registers.
func Register() (*RefsModule, error) {
	once.Do(func() {
		singleton = &RefsModule{dbs: make(map[string]*sql.DB)}
		if err := vtab.RegisterModule(nil, "configtree_refs", singleton); err != nil {
			initErr = fmt.Errorf("reference: register module: %w", err)
			singleton = nil
		}
	})
	return singleton, initErr
}

// RegisterDB associates db with id; id is the argument CREATE VIRTUAL
// TABLE ... USING configtree_refs(id) must pass.
func (m *RefsModule) RegisterDB(id string, db *sql.DB) {
	m.mu.Lock()
	m.dbs[id] = db
	m.mu.Unlock()
	_, _ = db.Exec(`CREATE TABLE IF NOT EXISTS ref_key_ids (id INTEGER PRIMARY KEY, key TEXT UNIQUE)`)
	_, _ = db.Exec(`CREATE TABLE IF NOT EXISTS ref_path_bitmaps (path TEXT PRIMARY KEY, bitmap BLOB)`)
}

// UnregisterDB removes db from the registry, called when the owning
// resolver is discarded.
func (m *RefsModule) UnregisterDB(id string) {
	m.mu.Lock()
	delete(m.dbs, id)
	m.mu.Unlock()
}

// IndexKeys records path's current live key set into db's sidecar
// tables, interning any key seen for the first time.
func (m *RefsModule) IndexKeys(db *sql.DB, id, path string, keys []string) error {
	bm := roaring.New()
	for _, k := range keys {
		kid, err := m.internKey(db, k)
		if err != nil {
			return err
		}
		bm.Add(kid)
	}
	blob, err := bm.MarshalBinary()
	if err != nil {
		return fmt.Errorf("reference: marshal bitmap for %q: %w", path, err)
	}
	_, err = db.Exec(`INSERT INTO ref_path_bitmaps(path, bitmap) VALUES(?, ?)
		ON CONFLICT(path) DO UPDATE SET bitmap = excluded.bitmap`, path, blob)
	return err
}

// DropKeys removes path's indexed key set, called on invalidation.
func (m *RefsModule) DropKeys(db *sql.DB, id, path string) {
	_, _ = db.Exec(`DELETE FROM ref_path_bitmaps WHERE path = ?`, path)
}

func (m *RefsModule) internKey(db *sql.DB, key string) (uint32, error) {
	if _, err := db.Exec(`INSERT INTO ref_key_ids(key) VALUES(?) ON CONFLICT(key) DO NOTHING`, key); err != nil {
		return 0, fmt.Errorf("reference: intern key %q: %w", key, err)
	}
	var id int64
	if err := db.QueryRow(`SELECT id FROM ref_key_ids WHERE key = ?`, key).Scan(&id); err != nil {
		return 0, fmt.Errorf("reference: lookup interned key %q: %w", key, err)
	}
	return uint32(id), nil
}

// ---------------------------------------------------------------------------
// vtab.Module
// ---------------------------------------------------------------------------

func (m *RefsModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("configtree_refs: missing DB ID argument (expected USING configtree_refs(id))")
	}
	id := args[3]

	m.mu.RLock()
	db, ok := m.dbs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("configtree_refs: unknown DB ID %q", id)
	}

	if err := ctx.Declare("CREATE TABLE x(path TEXT, key TEXT)"); err != nil {
		return nil, err
	}
	return &refsTable{mod: m, db: db}, nil
}

func (m *RefsModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

// ---------------------------------------------------------------------------
// vtab.Table
// ---------------------------------------------------------------------------

type refsTable struct {
	mod *RefsModule
	db  *sql.DB
}

func (t *refsTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column != 0 {
			continue
		}
		switch c.Op {
		case vtab.OpEQ:
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 1
			info.EstimatedCost = 1
			info.EstimatedRows = 10
			return nil
		case vtab.OpLIKE:
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 2
			info.EstimatedCost = 100
			info.EstimatedRows = 100
			return nil
		case vtab.OpGLOB:
			c.ArgIndex = 0
			c.Omit = true
			info.IdxNum = 3
			info.EstimatedCost = 100
			info.EstimatedRows = 100
			return nil
		}
	}
	info.IdxNum = 0
	info.EstimatedCost = 1e6
	info.EstimatedRows = 1e6
	return nil
}

func (t *refsTable) Open() (vtab.Cursor, error) {
	return &refsCursor{table: t}, nil
}

func (t *refsTable) Disconnect() error { return nil }
func (t *refsTable) Destroy() error    { return nil }

// ---------------------------------------------------------------------------
// vtab.Cursor
// ---------------------------------------------------------------------------

type refsRow struct {
	path string
	key  string
}

type refsCursor struct {
	table *refsTable
	rows  []refsRow
	pos   int
}

func (c *refsCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.rows = c.rows[:0]
	c.pos = 0

	db := c.table.db
	if db == nil {
		return nil
	}

	switch idxNum {
	case 1:
		path, ok := vals[0].(string)
		if !ok {
			return nil
		}
		return c.loadPath(db, path)
	case 2:
		pattern, ok := vals[0].(string)
		if !ok {
			return nil
		}
		return c.loadFiltered(db, "LIKE", pattern)
	case 3:
		pattern, ok := vals[0].(string)
		if !ok {
			return nil
		}
		return c.loadFiltered(db, "GLOB", pattern)
	default:
		return c.loadAll(db)
	}
}

func (c *refsCursor) loadPath(db *sql.DB, path string) error {
	var blob []byte
	err := db.QueryRow(`SELECT bitmap FROM ref_path_bitmaps WHERE path = ?`, path).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reference: query path %q: %w", path, err)
	}
	return c.expandBitmap(db, path, blob)
}

func (c *refsCursor) loadFiltered(db *sql.DB, op, pattern string) error {
	type entry struct {
		path string
		blob []byte
	}
	query := fmt.Sprintf(`SELECT path, bitmap FROM ref_path_bitmaps WHERE path %s ?`, op)
	rows, err := db.Query(query, pattern)
	if err != nil {
		return fmt.Errorf("reference: filtered scan (%s %q): %w", op, pattern, err)
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if serr := rows.Scan(&e.path, &e.blob); serr != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("reference: filtered scan rows: %w", err)
	}
	_ = rows.Close()
	for _, e := range entries {
		if err := c.expandBitmap(db, e.path, e.blob); err != nil {
			return err
		}
	}
	return nil
}

func (c *refsCursor) loadAll(db *sql.DB) error {
	type entry struct {
		path string
		blob []byte
	}
	rows, err := db.Query(`SELECT path, bitmap FROM ref_path_bitmaps`)
	if err != nil {
		return fmt.Errorf("reference: scan ref_path_bitmaps: %w", err)
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if serr := rows.Scan(&e.path, &e.blob); serr != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("reference: scan ref_path_bitmaps rows: %w", err)
	}
	_ = rows.Close()
	for _, e := range entries {
		if err := c.expandBitmap(db, e.path, e.blob); err != nil {
			return err
		}
	}
	return nil
}

// expandBitmap deserializes a roaring bitmap of interned key ids and
// resolves them back to key text.
func (c *refsCursor) expandBitmap(db *sql.DB, path string, blob []byte) error {
	rb := roaring.New()
	if err := rb.UnmarshalBinary(blob); err != nil {
		return fmt.Errorf("reference: unmarshal bitmap for %q: %w", path, err)
	}

	var ids []uint32
	it := rb.Iterator()
	for it.HasNext() {
		ids = append(ids, it.Next())
	}
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = "?"
	}

	query := fmt.Sprintf(`SELECT key FROM ref_key_ids WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("reference: resolve ref_key_ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		if serr := rows.Scan(&key); serr != nil {
			continue
		}
		c.rows = append(c.rows, refsRow{path: path, key: key})
	}
	return rows.Err()
}

func (c *refsCursor) Next() error {
	c.pos++
	return nil
}

func (c *refsCursor) Eof() bool {
	return c.pos >= len(c.rows)
}

func (c *refsCursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.rows) {
		return nil, nil
	}
	switch col {
	case 0:
		return c.rows[c.pos].path, nil
	case 1:
		return c.rows[c.pos].key, nil
	default:
		return nil, nil
	}
}

func (c *refsCursor) Rowid() (int64, error) {
	return int64(c.pos), nil
}

func (c *refsCursor) Close() error {
	c.rows = nil
	return nil
}
