// Package fs holds the file helpers shared by the settings store, the note
// host and the CLI export files.
package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data through a synced temp file in the
// same directory. An existing file keeps its mode; a new one gets perm.
func WriteFileAtomic(path string, data []byte, perm iofs.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	} else if !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		_ = os.Remove(name)
		return err
	}
	// Rename is atomic on same filesystem.
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	if dirf, err := os.Open(dir); err == nil {
		_ = dirf.Sync()
		_ = dirf.Close()
	}
	return nil
}
