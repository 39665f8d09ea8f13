package slot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	slotExt = ".slot"
	lockExt = ".lock"

	defaultLockRetry = 5 * time.Millisecond
)

// FileStore keeps one file per slot under Dir. Updates are serialized
// across processes with an advisory lock file and committed by renaming a
// fully written temp file over the slot file.
type FileStore struct {
	dir       string
	size      int
	lockRetry time.Duration
}

// NewFileStore opens (and creates) dir. Zero size selects the record size.
func NewFileStore(dir string, size int) (*FileStore, error) {
	size, err := validateSize(size)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("slot: file store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("slot: create dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, size: size, lockRetry: defaultLockRetry}, nil
}

// Dir returns the backing directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Allocate(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.withLock(context.Background(), id, func() error {
		if _, err := os.Stat(s.slotPath(id)); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return s.commit(id, make([]byte, s.size))
	})
}

func (s *FileStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	return s.withLock(ctx, id, func() error {
		data, err := s.readFile(id)
		if err != nil {
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
		return s.commit(id, data)
	})
}

func (s *FileStore) Read(id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	return s.readFile(id)
}

func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("slot: list %s: %w", s.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, slotExt) {
			continue
		}
		id := strings.TrimSuffix(name, slotExt)
		if isValidID(id) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) withLock(ctx context.Context, id string, fn func() error) error {
	lock := flock.New(s.lockPath(id))
	locked, err := lock.TryLockContext(ctx, s.lockRetry)
	if err != nil {
		return fmt.Errorf("slot: lock %s: %w", id, err)
	}
	if !locked {
		return fmt.Errorf("slot: lock %s: not acquired", id)
	}
	defer lock.Unlock()
	return fn()
}

func (s *FileStore) readFile(id string) ([]byte, error) {
	data, err := os.ReadFile(s.slotPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
		}
		return nil, fmt.Errorf("slot: read %s: %w", id, err)
	}
	return data, nil
}

func (s *FileStore) commit(id string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("slot: commit %s: %w", id, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("slot: commit %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("slot: commit %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("slot: commit %s: %w", id, err)
	}
	if err := os.Rename(tmpName, s.slotPath(id)); err != nil {
		cleanup()
		return fmt.Errorf("slot: commit %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) slotPath(id string) string {
	return filepath.Join(s.dir, id+slotExt)
}

func (s *FileStore) lockPath(id string) string {
	return filepath.Join(s.dir, id+lockExt)
}
