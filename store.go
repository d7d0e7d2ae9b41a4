package austrianelevation

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// A RowStore persists row files. Stored rows are never modified.
type RowStore interface {
	// HasRow returns whether the row file for key is stored.
	HasRow(ctx context.Context, key RowKey) (bool, error)
	// ReadRow returns the row file for key. If the row file is not stored it
	// returns an error matching fs.ErrNotExist.
	ReadRow(ctx context.Context, key RowKey) ([]byte, error)
	// WriteRow stores the row file for key.
	WriteRow(ctx context.Context, key RowKey, data []byte) error
}

// A DirStore stores row files in a directory tree, one subdirectory per tile
// database.
type DirStore struct {
	root string
}

// NewDirStore returns a new DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{
		root: root,
	}
}

// Path returns the path of the row file for key.
func (s *DirStore) Path(key RowKey) string {
	return filepath.Join(s.root, strconv.Itoa(key.Database), strconv.Itoa(key.Y)+".txt")
}

func (s *DirStore) HasRow(ctx context.Context, key RowKey) (bool, error) {
	switch _, err := os.Stat(s.Path(key)); {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

func (s *DirStore) ReadRow(ctx context.Context, key RowKey) ([]byte, error) {
	return os.ReadFile(s.Path(key))
}

// WriteRow writes data to a temporary file and renames it into place, so
// readers never observe a partially written row file.
func (s *DirStore) WriteRow(ctx context.Context, key RowKey, data []byte) error {
	path := s.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(f.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}

	ok = true
	return nil
}
