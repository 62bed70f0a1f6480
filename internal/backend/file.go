package backend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/value"
	"github.com/agentic-research/configtree/internal/writeback"
)

// FileBackend persists a tree's custom overrides as a single JSON or YAML
// document — a flat dotted-path-to-string object, format chosen by the
// target file's extension. It is one of the two concrete collaborators
// behind spec.md §6's Backend interface.
type FileBackend struct {
	name string
	mode os.FileMode
}

// NewFileBackend builds a FileBackend registered under name (the value a
// leaf's rw_config.backend parameter names to select it).
func NewFileBackend(name string) *FileBackend {
	return &FileBackend{name: name, mode: 0o644}
}

func (b *FileBackend) Name() string { return b.name }

// SupportsAnnotation reports true. Writes go through writeback.Splice, but
// Write replaces the file's whole byte range with the re-serialized
// document, so nothing from the previous file content (such as
// hand-added comments) is kept.
func (b *FileBackend) SupportsAnnotation() bool { return true }

// Read loads configDir/file and stores every entry into root, honoring
// check for the CheckYes case (fail loud) vs CheckSkip/CheckNo (best
// effort, skip bad paths). A missing file is not an error: an unwritten
// backend is indistinguishable from an empty one.
func (b *FileBackend) Read(root *node.Node, configDir, file string, check value.CheckMode) error {
	path := filepath.Join(configDir, file)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	flat, derr := decodeFlat(data, file)
	if derr != nil {
		return fmt.Errorf("decode %s: %w", path, derr)
	}
	for p, raw := range flat {
		if err := applyPath(root, p, raw); err != nil && check == value.CheckYes {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Write serializes root's custom overrides and splices them into
// configDir/file, replacing the whole document byte range (this backend
// has no per-leaf source-position tracking, so the rewrite is atomic but
// never partial).
func (b *FileBackend) Write(root *node.Node, configDir, file string, fileMode int) error {
	flat := make(map[string]string)
	if err := flattenLeaves(root, "", flat); err != nil {
		return err
	}
	data, err := encodeFlat(flat, file)
	if err != nil {
		return err
	}
	if err := writeback.Validate(data, file); err != nil {
		return fmt.Errorf("validate %s before write: %w", file, err)
	}

	path := filepath.Join(configDir, file)
	mode := b.mode
	if fileMode != 0 {
		mode = os.FileMode(fileMode)
	}

	existing, statErr := os.ReadFile(path)
	if statErr != nil {
		return os.WriteFile(path, data, mode)
	}
	if err := os.Chmod(path, mode); err != nil {
		return err
	}
	return writeback.Splice(writeback.SourceOrigin{FilePath: path, StartByte: 0, EndByte: uint32(len(existing))}, data)
}

func decodeFlat(data []byte, file string) (map[string]string, error) {
	raw := make(map[string]any)
	if len(data) == 0 {
		return map[string]string{}, nil
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

func encodeFlat(flat map[string]string, file string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return yaml.Marshal(flat)
	default:
		return json.MarshalIndent(flat, "", "  ")
	}
}
