// Package export writes user-exported bytes to a collision-free path
// next to the source document.
package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxProbes caps the collision scan; a directory holding this many
// copies of one name is misconfiguration, not normal use.
const maxProbes = 10000

// Resolve computes a collision-free destination for filename inside
// dir. The name splits into base and extension at the last dot; taken
// names get "(1)", "(2)", ... appended before the extension. A probe
// that fails for any reason other than not-found counts as taken,
// forcing the next candidate rather than risking an overwrite.
func Resolve(dir, filename string) (string, error) {
	// Filenames arrive over the bridge and are untrusted: strip any
	// path components so the destination cannot escape dir.
	filename = filepath.Base(filename)
	if filename == "." || filename == ".." || filename == string(filepath.Separator) {
		return "", fmt.Errorf("export: invalid filename %q", filename)
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	for i := 0; i < maxProbes; i++ {
		name := filename
		if i > 0 {
			name = fmt.Sprintf("%s(%d)%s", base, i, ext)
		}
		path := filepath.Join(dir, name)

		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("export: no free name for %q in %s", filename, dir)
}

// Write resolves a unique path and writes data there. Creation is
// exclusive: losing the probe-then-create race surfaces as a write
// failure, never a silent overwrite.
func Write(dir, filename string, data []byte) (string, error) {
	path, err := Resolve(dir, filename)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("export: create %s: %w", path, err)
	}

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return "", fmt.Errorf("export: write %s: %w", path, werr)
	}
	if cerr != nil {
		return "", fmt.Errorf("export: close %s: %w", path, cerr)
	}
	return path, nil
}
