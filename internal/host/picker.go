package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PickedFile is one file selected through a picker.
type PickedFile struct {
	Path string
	Data []byte
}

// PickOptions constrains a picker invocation.
type PickOptions struct {
	// Multiple allows selecting more than one file.
	Multiple bool
	// Patterns filter selectable names (doublestar syntax, matched
	// case-insensitively against the base name).
	Patterns []string
}

// FilePicker models the native file dialog. Platform shells plug in
// real dialogs; DirectoryPicker is the deterministic fallback.
type FilePicker interface {
	Pick(ctx context.Context, opts PickOptions) ([]PickedFile, error)
}

// DirectoryPicker selects matching files from a fixed directory, in
// name order. It stands in for a native dialog where none exists.
type DirectoryPicker struct {
	Dir string
}

// Pick implements FilePicker.
func (p DirectoryPicker) Pick(ctx context.Context, opts PickOptions) ([]PickedFile, error) {
	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("picker: list %s: %w", p.Dir, err)
	}

	var picked []PickedFile
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		if !matchesAny(entry.Name(), opts.Patterns) {
			continue
		}

		path := filepath.Join(p.Dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("picker: read %s: %w", path, err)
		}
		picked = append(picked, PickedFile{Path: path, Data: data})

		if !opts.Multiple {
			break
		}
	}
	return picked, nil
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(strings.ToLower(pattern), lower); err == nil && ok {
			return true
		}
	}
	return false
}
