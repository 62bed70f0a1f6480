// Package instance implements spec.md §4.6's Instance: the owner of one
// live config tree. It holds the mode stack, the change log, the per-path
// soft-error map, and the backend/write-back registries, and is the one
// concrete implementation of node.Owner in this module.
package instance

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/collection"
	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/store"
	"github.com/agentic-research/configtree/internal/value"
)

// ChangeEntry is one line of Instance's change log (spec.md §4.6's
// list_changes).
type ChangeEntry struct {
	Path string
	Note string
	Old  string
	New  string
	At   time.Time
}

// Backend is what Instance needs from a read/write collaborator (spec.md
// §6's "Backend interface"). internal/backend provides concrete
// implementations (file, sqlite); Instance only depends on this interface.
type Backend interface {
	Name() string
	Read(root *node.Node, configDir, file string, check value.CheckMode) error
	Write(root *node.Node, configDir, file string, fileMode int) error
	SupportsAnnotation() bool
}

type writeBackReg struct {
	path    string
	backend string
	write   func() error
}

// Instance owns one live tree: its root Node, the active load mode, the
// change log, and the backends a write_back pass will drive.
type Instance struct {
	name    string
	catalog *api.Catalog
	hooks   *node.HookRegistry
	warps   *node.WarpRegistry

	root *node.Node

	mode      value.Mode
	modeStack []value.Mode
	check     value.CheckMode

	changes   []ChangeEntry
	needsSave int
	errors    map[string]error

	backends   map[string]Backend
	writeBacks []writeBackReg

	log *slog.Logger
}

// New builds an Instance over catalog, ready to lazily build its root Node
// on first access. hooks may be nil; an empty registry is used instead.
// Warnings are logged through slog.Default() until SetLogger overrides it.
func New(name string, catalog *api.Catalog, hooks *node.HookRegistry) *Instance {
	if hooks == nil {
		hooks = node.NewHookRegistry()
	}
	return &Instance{
		name:     name,
		catalog:  catalog,
		hooks:    hooks,
		warps:    node.NewWarpRegistry(),
		check:    value.CheckYes,
		errors:   make(map[string]error),
		backends: make(map[string]Backend),
		log:      slog.Default(),
	}
}

// SetLogger overrides the *slog.Logger warnings are emitted through.
func (inst *Instance) SetLogger(l *slog.Logger) {
	if l != nil {
		inst.log = l
	}
}

// Name reports the human label this tree was constructed with, surfaced in
// log lines and the agent-facing tool surface.
func (inst *Instance) Name() string { return inst.name }

// Root returns the tree's root Node, building it lazily on first access
// (spec.md §3: "Instance creates the root Node lazily from a ConfigClass
// catalog").
func (inst *Instance) Root() *node.Node {
	if inst.root == nil {
		inst.root = node.NewRoot(inst, inst.catalog.Classes[inst.catalog.RootClass])
	}
	return inst.root
}

// --- node.Owner ---

func (inst *Instance) ValueMode() value.Mode     { return inst.mode }
func (inst *Instance) Check() value.CheckMode    { return inst.check }
func (inst *Instance) Warps() *node.WarpRegistry { return inst.warps }
func (inst *Instance) Hooks() *node.HookRegistry { return inst.hooks }
func (inst *Instance) Catalog() *api.Catalog     { return inst.catalog }

// CollectionMode mirrors the active value.Mode onto collection.DataMode:
// collections have no distinct initial-load state of their own, since an
// autocreated entry during initial load is tagged DataModeNormal the same
// as any other normal-mode entry (spec.md §4.2 draws no initial-load
// distinction for container membership, only for leaf values).
func (inst *Instance) CollectionMode() collection.DataMode {
	switch inst.mode {
	case value.ModePreset:
		return collection.DataModePreset
	case value.ModeLayered:
		return collection.DataModeLayered
	default:
		return collection.DataModeNormal
	}
}

// RecordChange appends one change-log entry and increments needs_save.
// Instance is the single place this happens: Node's storeValue/clearValue
// call back into this method rather than growing their own log.
func (inst *Instance) RecordChange(path, note, old, new string) {
	inst.changes = append(inst.changes, ChangeEntry{Path: path, Note: note, Old: old, New: new, At: time.Now()})
	inst.needsSave++
}

// LogWarning implements node.Owner: a value emitted a validation warning at
// path. The first occurrence of a given (path, message) pair logs at Warn
// level; every later occurrence of the identical message logs at Debug
// (spec.md §7).
func (inst *Instance) LogWarning(path, message string, repeat bool) {
	if repeat {
		inst.log.Debug("config warning", "path", path, "message", message)
		return
	}
	inst.log.Warn("config warning", "path", path, "message", message)
}

// Snapshot builds a store.Snapshot from the change log accumulated so far:
// the formatted change lines, and the set of distinct paths that have ever
// been written to in this session (a practical stand-in for a full has_data
// tree walk, since every path that reached RecordChange now holds
// non-default data).
func (inst *Instance) Snapshot() *store.Snapshot {
	seen := make(map[string]bool)
	var hasData []string
	for _, c := range inst.changes {
		if !seen[c.Path] {
			seen[c.Path] = true
			hasData = append(hasData, c.Path)
		}
	}
	sort.Strings(hasData)
	return &store.Snapshot{Changes: inst.ListChanges(), HasData: hasData}
}

// SaveArena persists Instance's current snapshot to the double-buffered
// arena file at path, creating it with bufferSize bytes per half if it
// doesn't already exist.
func (inst *Instance) SaveArena(path string, bufferSize int64) error {
	a, err := store.Open(path, bufferSize)
	if err != nil {
		return err
	}
	return a.Save(inst.Snapshot())
}

// SaveArenaWithControl does what SaveArena does, then publishes the
// arena's new generation and path to a mmap'd control file at
// controlPath so other processes can poll for a fresher snapshot with a
// single atomic load instead of re-opening and parsing the arena file.
func (inst *Instance) SaveArenaWithControl(arenaPath, controlPath string, bufferSize int64) error {
	a, err := store.Open(arenaPath, bufferSize)
	if err != nil {
		return err
	}
	if err := a.Save(inst.Snapshot()); err != nil {
		return err
	}
	gen, err := a.Generation()
	if err != nil {
		return err
	}

	ctrl, err := store.OpenControl(controlPath)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()
	return ctrl.SetArena(arenaPath, uint64(bufferSize), gen)
}

// SetCheck overrides the default CheckMode new leaf/collection reads use.
func (inst *Instance) SetCheck(c value.CheckMode) { inst.check = c }

// --- mode stack ---

func (inst *Instance) pushMode(m value.Mode) {
	inst.modeStack = append(inst.modeStack, inst.mode)
	inst.mode = m
}

func (inst *Instance) popMode() {
	if len(inst.modeStack) == 0 {
		inst.mode = value.ModeNormal
		return
	}
	last := len(inst.modeStack) - 1
	inst.mode = inst.modeStack[last]
	inst.modeStack = inst.modeStack[:last]
}

// PresetStart/PresetStop bracket a preset-mode load pass (spec.md §4.6).
func (inst *Instance) PresetStart() { inst.pushMode(value.ModePreset) }
func (inst *Instance) PresetStop()  { inst.popMode() }

// LayeredStart/LayeredStop bracket a layered-mode load pass.
func (inst *Instance) LayeredStart() { inst.pushMode(value.ModeLayered) }
func (inst *Instance) LayeredStop()  { inst.popMode() }

// LayeredClear drops every leaf's layered slot across the tree, the reset
// a caller runs between successive layered passes (spec.md §4.6).
func (inst *Instance) LayeredClear() error {
	if inst.root == nil {
		return nil
	}
	return inst.root.ClearLayeredValues()
}

// InitialLoadStart/InitialLoadStop bracket the initial read-from-disk pass,
// during which change notifications are suppressed except for
// model-driven transformations (spec.md §5).
func (inst *Instance) InitialLoadStart() {
	inst.pushMode(value.ModeInitialLoad)
	if inst.root != nil {
		inst.root.ResetInitialLoadTracking()
	}
}
func (inst *Instance) InitialLoadStop()  { inst.popMode() }

// --- change log / save tracking ---

// NeedsSave reports how many changes have been recorded since the last
// reset, Instance's dirty counter (spec.md §4.6's needs_save()).
func (inst *Instance) NeedsSave() int { return inst.needsSave }

// ResetNeedsSave zeroes the dirty counter, called after a successful
// write_back.
func (inst *Instance) ResetNeedsSave() { inst.needsSave = 0 }

// ListChanges formats the change log, most recent last, matching the
// Loader's printer style (plain text, one line per entry).
func (inst *Instance) ListChanges() []string {
	out := make([]string, 0, len(inst.changes))
	for _, c := range inst.changes {
		switch {
		case c.Note == "":
			out = append(out, fmt.Sprintf("%s: %q -> %q", c.Path, c.Old, c.New))
		default:
			out = append(out, fmt.Sprintf("%s: %s (%q -> %q)", c.Path, c.Note, c.Old, c.New))
		}
	}
	return out
}

// Errors returns the per-path soft-error map accumulated while Check was
// not CheckYes (spec.md §4.6's "per-path error map").
func (inst *Instance) Errors() map[string]error {
	out := make(map[string]error, len(inst.errors))
	for k, v := range inst.errors {
		out[k] = v
	}
	return out
}

// RecordError files err against path in the soft-error map, used by
// callers operating under Check != CheckYes that still want the failure
// visible afterward instead of silently dropped.
func (inst *Instance) RecordError(path string, err error) {
	if err == nil {
		delete(inst.errors, path)
		return
	}
	inst.errors[path] = err
}

// --- backends / write-back ---

// RegisterBackend makes b available to RegisterWriteBack/WriteBack calls
// by name.
func (inst *Instance) RegisterBackend(b Backend) {
	inst.backends[b.Name()] = b
}

// Backend looks up a previously registered backend by name.
func (inst *Instance) Backend(name string) (Backend, bool) {
	b, ok := inst.backends[name]
	return b, ok
}

// RegisterWriteBack records that path's current subtree should be
// persisted through backendName the next time WriteBack runs, using
// write as the actual persistence closure (spec.md §4.6's
// register_write_back(path, backend_name, closure), called by nodes with
// an rw_config spec during init()).
func (inst *Instance) RegisterWriteBack(path, backendName string, write func() error) {
	inst.writeBacks = append(inst.writeBacks, writeBackReg{path: path, backend: backendName, write: write})
}

// WriteBack iterates every registered write-back closure in registration
// order and runs it, collecting (not short-circuiting on) per-closure
// errors so one failing backend doesn't block the rest (spec.md §4.6's
// write_back(options); the ordering/short-circuit policy is left
// unspecified there, so "run everything, report everything" is chosen).
func (inst *Instance) WriteBack() error {
	var failures []string
	for _, reg := range inst.writeBacks {
		if err := reg.write(); err != nil {
			inst.RecordError(reg.path, err)
			failures = append(failures, fmt.Sprintf("%s (%s): %v", reg.path, reg.backend, err))
		}
	}
	if len(failures) == 0 {
		inst.ResetNeedsSave()
		return nil
	}
	sort.Strings(failures)
	return fmt.Errorf("write_back: %d backend(s) failed: %v", len(failures), failures)
}
