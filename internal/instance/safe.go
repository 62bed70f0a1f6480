package instance

import (
	"sync"

	"github.com/agentic-research/configtree/internal/loader"
	"github.com/agentic-research/configtree/internal/node"
)

// SafeInstance is a mutex-guarded façade over Instance, for the optional
// concurrent surfaces (mount, MCP tool server) spec.md §5 allows an
// implementation to wrap the single-threaded core in: "an implementation
// may wrap Instance in an external mutex but the core assumes
// exclusivity." Adapted from internal/graph/hotswap.go's HotSwapGraph:
// every delegated call takes the lock for its own duration rather than
// letting the caller hold it across a Root()/mutate sequence.
type SafeInstance struct {
	mu   sync.RWMutex
	inst *Instance
}

// NewSafeInstance wraps inst for concurrent use.
func NewSafeInstance(inst *Instance) *SafeInstance {
	return &SafeInstance{inst: inst}
}

// Load runs program against the tree root under the write lock.
func (s *SafeInstance) Load(program string, opts loader.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loader.New(opts).Load(s.inst.Root(), program)
}

// Dump renders the tree under the write lock. Unlike HotSwapGraph's
// delegates, this isn't a pure read: rendering an element nobody has
// touched yet lazily builds its Node slot (internal/node's ensureSlot),
// which writes to unsynchronized maps — two concurrent dumps hitting the
// same unbuilt element would otherwise race.
func (s *SafeInstance) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loader.Dump(s.inst.Root())
}

// WithRoot runs fn against the tree root under the write lock, the
// sanctioned way to perform a multi-step read or mutation without racing
// a concurrent Load. fn must not retain the *node.Node it's given past
// return.
func (s *SafeInstance) WithRoot(fn func(root *node.Node) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.inst.Root())
}

// NeedsSave reports the dirty counter under the read lock.
func (s *SafeInstance) NeedsSave() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inst.NeedsSave()
}

// WriteBack runs every registered write-back closure under the write
// lock.
func (s *SafeInstance) WriteBack() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inst.WriteBack()
}

// ListChanges formats the change log under the read lock.
func (s *SafeInstance) ListChanges() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inst.ListChanges()
}
