// Package writeback implements an atomic byte-range rewrite: Splice
// replaces one span of a file and leaves the bytes outside it untouched.
// FileBackend uses it with a span covering the whole file.
package writeback

import (
	"fmt"
	"os"
	"path/filepath"
)

// SourceOrigin locates a byte range in a backing file, the span Splice
// replaces.
type SourceOrigin struct {
	FilePath  string
	StartByte uint32
	EndByte   uint32
}

// Splice replaces the byte range identified by origin with newContent in
// the source file. The write is atomic: content is written to a temp file
// first, then renamed.
func Splice(origin SourceOrigin, newContent []byte) error {
	src, err := os.ReadFile(origin.FilePath)
	if err != nil {
		return fmt.Errorf("read source %s: %w", origin.FilePath, err)
	}

	start := origin.StartByte
	end := origin.EndByte

	if int(start) > len(src) || int(end) > len(src) || start > end {
		return fmt.Errorf("invalid byte range [%d:%d] for file of length %d", start, end, len(src))
	}

	result := make([]byte, 0, int(start)+len(newContent)+len(src)-int(end))
	result = append(result, src[:start]...)
	result = append(result, newContent...)
	result = append(result, src[end:]...)

	dir := filepath.Dir(origin.FilePath)
	tmp, err := os.CreateTemp(dir, ".configtree-splice-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(result); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	info, err := os.Stat(origin.FilePath)
	if err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}

	if err := os.Rename(tmpName, origin.FilePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", origin.FilePath, err)
	}

	return nil
}
