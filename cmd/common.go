package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-research/configtree/api"
	"github.com/agentic-research/configtree/internal/backend"
	"github.com/agentic-research/configtree/internal/catalog"
	"github.com/agentic-research/configtree/internal/instance"
	"github.com/agentic-research/configtree/internal/value"
)

// loadCatalog reads the catalog named by the --catalog flag, a single HCL
// file or a directory of them (internal/catalog.LoadFile/LoadDir).
func loadCatalog() (*api.Catalog, error) {
	if catalogPath == "" {
		return nil, fmt.Errorf("--catalog is required")
	}
	info, err := os.Stat(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if info.IsDir() {
		return catalog.LoadDir(catalogPath, rootClass)
	}
	return catalog.LoadFile(catalogPath)
}

// buildInstance loads the catalog named by the --catalog flag and returns
// a fresh Instance rooted at --root-class (or the catalog's own declared
// root if that flag is empty).
func buildInstance() (*instance.Instance, error) {
	cat, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	if rootClass != "" {
		cat.RootClass = rootClass
	}
	if cat.RootClass == "" {
		return nil, fmt.Errorf("catalog %s declares no single root class; pass --root-class", catalogPath)
	}
	return instance.New(filepath.Base(catalogPath), cat, nil), nil
}

// seedFromFile runs a FileBackend's Read against inst's root in
// initial-load mode, if seedFile names an existing file. A missing file is
// not an error — an unseeded tree is just empty.
func seedFromFile(inst *instance.Instance, seedFile string) error {
	if seedFile == "" {
		return nil
	}
	b := backend.NewFileBackend("cli-seed")
	inst.InitialLoadStart()
	defer inst.InitialLoadStop()
	return b.Read(inst.Root(), configDir, seedFile, value.CheckSkip)
}
