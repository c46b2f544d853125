package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/torosent/rangefetch/internal/resource"
)

// LockFile is created in the store directory while a FileStore is open.
const LockFile = ".rangefetch.lock"

// FileStore keeps each resource as a file in a local directory.
//
// Files are published with a hard link. On filesystems without hard links
// (exFAT, some FUSE and SMB mounts) the store reserves the key with an
// exclusive create and renames the temp file over it instead; an empty file
// is then briefly visible under the key while it is written.
type FileStore struct {
	dir  string
	keys resource.Template
	lock *flock.Flock

	link   func(oldname, newname string) error
	noLink atomic.Bool
}

// NewFileStore creates dir if needed and takes an exclusive advisory lock on
// it. A second FileStore on the same directory fails with ErrLocked until
// the first is closed.
func NewFileStore(dir string, keys resource.Template) (*FileStore, error) {
	if err := ValidateKeyTemplate(keys); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", abs, err)
	}

	lock := flock.New(filepath.Join(abs, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock store directory %s: %w", abs, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, abs)
	}

	return &FileStore{dir: abs, keys: keys, lock: lock, link: os.Link}, nil
}

// Dir returns the absolute store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Key(id resource.ID) string {
	return s.keys.Expand(id)
}

func (s *FileStore) URI(id resource.ID) string {
	return "file://" + filepath.ToSlash(s.path(id))
}

func (s *FileStore) path(id resource.ID) string {
	return filepath.Join(s.dir, filepath.FromSlash(s.Key(id)))
}

func (s *FileStore) Exists(ctx context.Context, id resource.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", s.Key(id), err)
}

// Write stores data under the identifier's key. The bytes are written to a
// temp file in the target directory and then published under the key, which
// is never replaced once it exists. A failed write leaves nothing behind.
func (s *FileStore) Write(ctx context.Context, id resource.ID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := s.Key(id)
	if err := validateKey(key); err != nil {
		return err
	}
	path := s.path(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}

	if err := s.publish(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// publish moves tmpPath to path, failing with fs.ErrExist if path is taken.
func (s *FileStore) publish(tmpPath, path string) error {
	if !s.noLink.Load() {
		err := s.link(tmpPath, path)
		if err == nil || !linkUnsupported(err) {
			return err
		}
		s.noLink.Store(true)
	}

	placeholder, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := placeholder.Close(); err != nil {
		os.Remove(path)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func linkUnsupported(err error) bool {
	return errors.Is(err, syscall.EPERM) ||
		errors.Is(err, syscall.ENOTSUP) ||
		errors.Is(err, syscall.EOPNOTSUPP) ||
		errors.Is(err, syscall.ENOSYS) ||
		errors.Is(err, errors.ErrUnsupported)
}

// Close releases the directory lock.
func (s *FileStore) Close() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}
