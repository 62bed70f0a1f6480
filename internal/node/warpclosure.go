package node

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/configtree/internal/cfgerr"
)

// WarpRegistry is the tree-wide table of master-path -> dependant Warpers,
// plus the re-entrancy guard spec.md §4.5 and §9 require: "the engine is
// required to detect the second re-entry and raise rather than loop."
//
// The active-call tracking reuses the teacher's bitmap-closure technique
// from internal/lattice/closure.go (a roaring.Bitmap of live ids walked for
// a canonicity/closure test) repurposed here as a bitmap of Warper ids
// currently mid-Reconfigure, rather than copying that file verbatim.
type WarpRegistry struct {
	byMaster map[string][]*Warper
	active   *roaring.Bitmap
	nextID   uint32
}

// NewWarpRegistry returns an empty registry; one lives per Instance/tree.
func NewWarpRegistry() *WarpRegistry {
	return &WarpRegistry{byMaster: make(map[string][]*Warper), active: roaring.New()}
}

func (r *WarpRegistry) add(w *Warper) uint32 {
	id := r.nextID
	r.nextID++
	return id
}

func (r *WarpRegistry) register(masterPath string, w *Warper) {
	r.byMaster[masterPath] = append(r.byMaster[masterPath], w)
}

// NotifyChanged re-evaluates every Warper registered on masterPath. A
// Warper re-entered while already active in the current notification
// chain (a cascaded warp cycle) raises ModelError instead of looping
// forever.
func (r *WarpRegistry) NotifyChanged(masterPath string) error {
	for _, w := range r.byMaster[masterPath] {
		if r.active.Contains(w.id) {
			return cfgerr.New(cfgerr.ModelError, w.owner.elementPath(w.element), "cyclic warp: %q re-entered while still reconfiguring", w.element)
		}
		r.active.Add(w.id)
		err := w.Reconfigure()
		r.active.Remove(w.id)
		if err != nil {
			return err
		}
	}
	return nil
}
