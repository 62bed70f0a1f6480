// Package reference provides an optional indexed accelerator for
// refer_to / follow_keys_from / replace_follow lookups (spec.md §3's
// "relations + lookup paths, never ownership edges"). The default resolver
// every Node wires in (internal/node/resolver.go) is a plain in-memory tree
// walk and is sufficient for ordinary catalogs; CachingResolver sits in
// front of it for trees with many collections and many cross-references,
// caching each path's live key set in memory and, once WithIndex is used,
// also in a SQLite virtual table backed by roaring bitmaps, grounded on internal/refsvtab/refs_module.go's
// SQLite-virtual-table-over-live-data pattern (there: file tokens resolved
// to matching file paths; here: a node path resolved to its collection's
// live keys).
package reference

import (
	"database/sql"
	"sync"
)

// Delegate is what a Node already implements: the full value/collection
// Resolver surface. CachingResolver wraps one and serves LiveChoices /
// LiveKeys from its cache before falling through.
type Delegate interface {
	PathValue(path string) (string, error)
	LiveChoices(path string) ([]string, error)
	LiveKeys(path string) ([]string, error)
	ReplaceFollow(path string) (map[string]string, error)
}

// CachingResolver implements the same surface as Delegate, memoizing
// LiveChoices/LiveKeys per path until explicitly invalidated. PathValue and
// ReplaceFollow always read through: a compute/migrate formula and a
// replace_follow map both need the current value, not a cached key list.
type CachingResolver struct {
	delegate Delegate

	mu     sync.RWMutex
	cache  map[string][]string
	db     *sql.DB // optional; non-nil once WithIndex is used
	dbID   string
	module *RefsModule
}

// New builds a CachingResolver over delegate with an in-memory cache only
// (no SQLite index). Suitable for the common case: a handful of
// cross-references, queried far more often than the tree mutates.
func New(delegate Delegate) *CachingResolver {
	return &CachingResolver{delegate: delegate, cache: make(map[string][]string)}
}

// WithIndex additionally registers path's live key sets in a SQLite
// virtual table for trees whose reference density makes an in-process map
// insufficient (prefix/GLOB queries over thousands of paths). db holds the
// sidecar tables RefsModule queries; id must be unique per db connection.
func (r *CachingResolver) WithIndex(db *sql.DB, id string) error {
	mod, err := Register()
	if err != nil {
		return err
	}
	mod.RegisterDB(id, db)
	r.mu.Lock()
	r.db, r.dbID, r.module = db, id, mod
	r.mu.Unlock()
	return nil
}

func (r *CachingResolver) PathValue(path string) (string, error) {
	return r.delegate.PathValue(path)
}

func (r *CachingResolver) ReplaceFollow(path string) (map[string]string, error) {
	return r.delegate.ReplaceFollow(path)
}

func (r *CachingResolver) LiveChoices(path string) ([]string, error) {
	return r.LiveKeys(path)
}

func (r *CachingResolver) LiveKeys(path string) ([]string, error) {
	r.mu.RLock()
	if keys, ok := r.cache[path]; ok {
		r.mu.RUnlock()
		return keys, nil
	}
	r.mu.RUnlock()

	keys, err := r.delegate.LiveKeys(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[path] = keys
	db, id, mod := r.db, r.dbID, r.module
	r.mu.Unlock()

	if db != nil && mod != nil {
		if ierr := mod.IndexKeys(db, id, path, keys); ierr != nil {
			return keys, ierr
		}
	}
	return keys, nil
}

// Invalidate drops path's cached key set, for a caller that knows a
// collection under path was mutated (store/delete/push/clear/...). The
// next LiveKeys/LiveChoices call re-walks the live tree and repopulates.
func (r *CachingResolver) Invalidate(path string) {
	r.mu.Lock()
	delete(r.cache, path)
	db, id, mod := r.db, r.dbID, r.module
	r.mu.Unlock()
	if db != nil && mod != nil {
		mod.DropKeys(db, id, path)
	}
}

// InvalidateAll drops every cached key set, the coarse-grained reset a
// caller takes after a DSL program runs against the tree: a single
// program can touch an unbounded number of collection paths, so
// invalidating each individually isn't worth tracking relative to just
// clearing the whole cache once per program.
func (r *CachingResolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string][]string)
	db, id, mod := r.db, r.dbID, r.module
	r.mu.Unlock()
	if db != nil && mod != nil {
		_, _ = db.Exec(`DELETE FROM ref_path_bitmaps`)
		_ = id
	}
}
