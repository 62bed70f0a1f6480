package backend

import "github.com/agentic-research/configtree/internal/instance"

var (
	_ instance.Backend = (*FileBackend)(nil)
	_ instance.Backend = (*SQLiteBackend)(nil)
)
