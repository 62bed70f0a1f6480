package backend

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/value"
)

// SQLiteBackend persists a tree's custom overrides as rows in a SQLite
// database, one row per dotted leaf path, for configs too large or too
// frequently diffed for a flat file to serve well. Grounded on the
// open/prepare/batch-insert-in-a-transaction shape of a code-graph writer
// this module's teacher shipped for a different schema.
type SQLiteBackend struct {
	name string
}

// NewSQLiteBackend builds a SQLiteBackend registered under name.
func NewSQLiteBackend(name string) *SQLiteBackend {
	return &SQLiteBackend{name: name}
}

func (b *SQLiteBackend) Name() string { return b.name }

// SupportsAnnotation reports false: a relational row has no byte position
// to splice.
func (b *SQLiteBackend) SupportsAnnotation() bool { return false }

const leavesSchema = `
CREATE TABLE IF NOT EXISTS leaves (
	path  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Read opens configDir/file and applies every stored (path, value) row to
// root. A missing database file is not an error.
func (b *SQLiteBackend) Read(root *node.Node, configDir, file string, check value.CheckMode) error {
	dbPath := filepath.Join(configDir, file)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(leavesSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	rows, err := db.Query("SELECT path, value FROM leaves")
	if err != nil {
		return fmt.Errorf("query leaves: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var path, val string
		if err := rows.Scan(&path, &val); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := applyPath(root, path, val); err != nil && check == value.CheckYes {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	return rows.Err()
}

// Write flattens root's custom overrides and replaces the leaves table's
// contents in one transaction.
func (b *SQLiteBackend) Write(root *node.Node, configDir, file string, fileMode int) error {
	flat := make(map[string]string)
	if err := flattenLeaves(root, "", flat); err != nil {
		return err
	}

	dbPath := filepath.Join(configDir, file)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		return err
	}
	if _, err := db.Exec(leavesSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM leaves"); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO leaves (path, value) VALUES (?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for path, val := range flat {
		if _, err := stmt.Exec(path, val); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", path, err)
		}
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return err
	}

	if fileMode != 0 {
		_ = os.Chmod(dbPath, os.FileMode(fileMode))
	}
	return nil
}
