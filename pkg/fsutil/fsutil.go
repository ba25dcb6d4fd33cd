// Package fsutil holds small file helpers shared by the result writers.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirMode is used for directories created on write.
	DirMode = 0o755
	// FileMode is used for written output files.
	FileMode = 0o644
)

// WriteAtomic writes b to path by way of a temp file in the same directory,
// so readers see either the old or the new content, never a partial file.
func WriteAtomic(path string, b []byte) error {
	if path == "" {
		return errors.New("file path required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return fmt.Errorf("creating dir %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmp := f.Name()

	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	if _, err := f.Write(b); err != nil {
		cleanup()
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing %s: %w", tmp, err)
	}
	if err := f.Chmod(FileMode); err != nil {
		cleanup()
		return fmt.Errorf("setting mode on %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}
