// Package store persists small per-concern JSON blobs in the client's
// state directory. Each concern (keys, relays, mute list) owns one file.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store is the narrow persistence surface the state managers rely on.
// Load returns (nil, nil) when no blob has been saved under name yet;
// absence is an expected first-run condition, not an error.
type Store interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
}

// FileStore keeps one file per blob name inside a single directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created
// lazily on the first save, not here, so a read-only first run works.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory the store writes into.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the blob saved under name, or (nil, nil) if it does not exist.
func (s *FileStore) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Save writes the blob under name. The write goes to a temp file in the
// same directory followed by a rename, so a crash mid-write never leaves
// a torn blob behind the name.
func (s *FileStore) Save(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
