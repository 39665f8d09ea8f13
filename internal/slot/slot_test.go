package slot

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/testutil/testlog"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mem, err := NewMemoryStore(0)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	file, err := NewFileStore(filepath.Join(t.TempDir(), "slots"), 0)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	return map[string]Store{"memory": mem, "file": file}
}

func TestValidateID(t *testing.T) {
	valid := []string{"a", "counter", "counter.main", "acct-1", "a_b.c-d", "0"}
	for _, id := range valid {
		if err := ValidateID(id); err != nil {
			t.Fatalf("expected %q valid, got %v", id, err)
		}
	}
	invalid := []string{"", "Counter", ".a", "a.", "a..b", "a/b", " a", "a b", "../x"}
	for _, id := range invalid {
		if err := ValidateID(id); !errors.Is(err, ErrInvalidSlotID) {
			t.Fatalf("expected %q invalid, got %v", id, err)
		}
	}
}

func TestAllocateCreatesZeroedSlot(t *testing.T) {
	testlog.Start(t)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Allocate("alpha"); err != nil {
				t.Fatalf("allocate: %v", err)
			}
			data, err := s.Read("alpha")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.Equal(data, make([]byte, counter.RecordSize)) {
				t.Fatalf("expected zeroed slot, got %v", data)
			}
		})
	}
}

func TestAllocateExistingSlotKeepsData(t *testing.T) {
	testlog.Start(t)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Allocate("alpha"); err != nil {
				t.Fatalf("allocate: %v", err)
			}
			err := s.Update(context.Background(), "alpha", func(data []byte) error {
				data[0] = 7
				return nil
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if err := s.Allocate("alpha"); err != nil {
				t.Fatalf("re-allocate: %v", err)
			}
			data, _ := s.Read("alpha")
			if data[0] != 7 {
				t.Fatalf("re-allocate should not reset data: %v", data)
			}
		})
	}
}

func TestUpdateErrorDiscardsChanges(t *testing.T) {
	testlog.Start(t)
	errBoom := errors.New("boom")
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Allocate("alpha"); err != nil {
				t.Fatalf("allocate: %v", err)
			}
			err := s.Update(context.Background(), "alpha", func(data []byte) error {
				data[0], data[1] = 0xFF, 0xFF
				return errBoom
			})
			if !errors.Is(err, errBoom) {
				t.Fatalf("expected errBoom, got %v", err)
			}
			data, _ := s.Read("alpha")
			if !bytes.Equal(data, make([]byte, counter.RecordSize)) {
				t.Fatalf("failed update leaked into slot: %v", data)
			}
		})
	}
}

func TestUpdateMissingSlot(t *testing.T) {
	testlog.Start(t)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Update(context.Background(), "ghost", func([]byte) error { return nil })
			if !errors.Is(err, ErrSlotNotFound) {
				t.Fatalf("expected ErrSlotNotFound, got %v", err)
			}
			if _, err := s.Read("ghost"); !errors.Is(err, ErrSlotNotFound) {
				t.Fatalf("expected ErrSlotNotFound on read, got %v", err)
			}
			if err := s.Allocate("Bad ID"); !errors.Is(err, ErrInvalidSlotID) {
				t.Fatalf("expected ErrInvalidSlotID, got %v", err)
			}
		})
	}
}

func TestUpdateIsSerializedPerSlot(t *testing.T) {
	testlog.Start(t)
	const workers = 8
	const perWorker = 25
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Allocate("shared"); err != nil {
				t.Fatalf("allocate: %v", err)
			}
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						err := s.Update(context.Background(), "shared", func(data []byte) error {
							v := binary.LittleEndian.Uint32(data)
							binary.LittleEndian.PutUint32(data, v+1)
							return nil
						})
						if err != nil {
							errs <- err
							return
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("update: %v", err)
			}
			data, _ := s.Read("shared")
			if got := binary.LittleEndian.Uint32(data); got != workers*perWorker {
				t.Fatalf("expected %d, got %d", workers*perWorker, got)
			}
		})
	}
}

func TestListSorted(t *testing.T) {
	testlog.Start(t)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"gamma", "alpha", "beta"} {
				if err := s.Allocate(id); err != nil {
					t.Fatalf("allocate %s: %v", id, err)
				}
			}
			ids, err := s.List()
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(ids) != 3 || ids[0] != "alpha" || ids[1] != "beta" || ids[2] != "gamma" {
				t.Fatalf("unexpected ids: %v", ids)
			}
		})
	}
}

func TestUpdateCanceledContext(t *testing.T) {
	testlog.Start(t)
	mem, _ := NewMemoryStore(0)
	if err := mem.Allocate("alpha"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := mem.Update(ctx, "alpha", func([]byte) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	first, err := NewFileStore(dir, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Allocate("alpha"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	err = first.Update(context.Background(), "alpha", func(data []byte) error {
		copy(data, counter.EncodeRecord(counter.Record{Counter: 42}))
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	second, err := NewFileStore(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	data, err := second.Read("alpha")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rec, err := counter.DecodeRecord(data)
	if err != nil || rec.Counter != 42 {
		t.Fatalf("expected 42, got %+v err=%v", rec, err)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestStoreSizeValidation(t *testing.T) {
	if _, err := NewMemoryStore(2); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	s, err := NewMemoryStore(16)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if err := s.Allocate("wide"); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	data, _ := s.Read("wide")
	if len(data) != 16 {
		t.Fatalf("expected 16 byte slot, got %d", len(data))
	}
}
