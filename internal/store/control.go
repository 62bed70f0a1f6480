package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// ControlSize is one page: small enough that every platform's mmap
	// granularity accepts it untouched.
	ControlSize = 4096
	controlMagic = 0x43544343 // "CTCC"
)

// controlBlock is the memory-mapped layout a Controller exposes. Field
// order and sizes are fixed: this must match byte-for-byte across
// processes that mmap the same file.
type controlBlock struct {
	Magic      uint32
	Version    uint32
	Generation uint64 // atomic
	ArenaPath  [256]byte
	ArenaSize  uint64
	Padding    [ControlSize - 280]byte
}

// Controller lets a watcher process poll an Arena's current generation
// and active-snapshot path without opening or parsing the arena file
// itself — just an atomic load against a mmap'd page. Adapted from the
// teacher's mmap'd generation-counter control file, retargeted from a
// code-graph arena pointer to this package's Snapshot arena (see
// arena.go); golang.org/x/sys/unix is the one place this module reaches
// below the standard library, for the same reason the teacher did:
// os.File alone cannot give a second process a lock-free atomic view of
// a counter another process is updating.
type Controller struct {
	path string
	file *os.File
	data []byte
	ptr  *controlBlock
}

// OpenControl opens or creates the control file at path, mapping it
// shared so every Controller on the same path observes the same
// Generation without taking a lock.
func OpenControl(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("control: mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("control: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("control: stat: %w", err)
	}
	if info.Size() < ControlSize {
		if err := f.Truncate(ControlSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("control: truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, ControlSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("control: mmap: %w", err)
	}

	ptr := (*controlBlock)(unsafe.Pointer(&data[0]))
	if ptr.Magic == 0 {
		ptr.Magic = controlMagic
		ptr.Version = 1
	} else if ptr.Magic != controlMagic {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("control: invalid magic %x", ptr.Magic)
	}

	return &Controller{path: path, file: f, data: data, ptr: ptr}, nil
}

// Generation atomically reads the current generation counter.
func (c *Controller) Generation() uint64 {
	return atomic.LoadUint64(&c.ptr.Generation)
}

// ArenaPath returns the path the control block currently names.
func (c *Controller) ArenaPath() string {
	b := c.ptr.ArenaPath[:]
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// SetArena publishes a new active arena path/size/generation. Path and
// size are plain writes; the generation is stored last, atomically.
// Called by Arena.Save's caller after a successful snapshot write, so a
// watcher polling Generation() never observes a generation bump before
// the arena it names is fully written.
func (c *Controller) SetArena(path string, size, generation uint64) error {
	if len(path) >= len(c.ptr.ArenaPath) {
		return fmt.Errorf("control: path too long (max %d)", len(c.ptr.ArenaPath)-1)
	}
	copy(c.ptr.ArenaPath[:], path)
	c.ptr.ArenaPath[len(path)] = 0
	c.ptr.ArenaSize = size
	atomic.StoreUint64(&c.ptr.Generation, generation)
	return nil
}

// Close unmaps and closes the control file.
func (c *Controller) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}
