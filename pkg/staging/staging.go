// Package staging manages the per-run local directory objects pass through
// between download and upload. Staged files are ephemeral: every worker exit
// path removes its file, and the whole root is removed when the run ends.
package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Dir is a per-run staging root. A fresh root is created for every run so
// concurrent runs against different buckets never collide.
type Dir struct {
	root string
}

// New creates the staging root under the system temp directory.
func New() (*Dir, error) {
	root := filepath.Join(os.TempDir(), "swift2s3-"+uuid.NewString())

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", root, err)
	}

	return &Dir{root: root}, nil
}

// Root returns the staging root path.
func (d *Dir) Root() string {
	return d.root
}

// PathFor returns the staging path mirroring an object key, creating any
// intermediate directories. Keys may contain nested separators, so the whole
// parent chain is created, not just the leaf.
func (d *Dir) PathFor(key string) (string, error) {
	path := filepath.Join(d.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging parents for %s: %w", key, err)
	}

	return path, nil
}

// Discard removes a single staged file. Missing files are not an error: a
// worker that failed before the download produced anything still discards.
func (d *Dir) Discard(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged file %s: %w", path, err)
	}
	return nil
}

// Remove deletes the staging root and everything under it.
func (d *Dir) Remove() error {
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("failed to remove staging directory %s: %w", d.root, err)
	}
	return nil
}

// IsEmpty reports whether any staged files remain under the root. Directories
// are ignored; only leftover file content counts as a leak.
func (d *Dir) IsEmpty() (bool, error) {
	empty := true

	err := filepath.Walk(d.root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			empty = false
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to walk staging directory: %w", err)
	}

	return empty, nil
}
