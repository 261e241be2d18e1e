package cache

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const fileExt = ".navmesh"

// FileStore keeps one file per key in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cache: empty cache dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache dir")
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

func (s *FileStore) Exists(key string) bool {
	st, err := os.Stat(s.path(key))
	return err == nil && st.Mode().IsRegular()
}

func (s *FileStore) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(ErrNotFound, key)
	}
	return data, errors.Wrapf(err, "read %s", key)
}

// Write replaces the entry through a rename so readers never see a partial
// file.
func (s *FileStore) Write(key string, data []byte) error {
	f, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmp := f.Name()
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, s.path(key))
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "write %s", key)
	}
	return nil
}
