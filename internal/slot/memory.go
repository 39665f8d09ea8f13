package slot

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type memSlot struct {
	mu   sync.Mutex
	data []byte
}

// MemoryStore keeps slots in process memory.
type MemoryStore struct {
	size int

	mu    sync.RWMutex
	slots map[string]*memSlot
}

// NewMemoryStore creates an empty store whose slots are size bytes. Zero
// selects the record size.
func NewMemoryStore(size int) (*MemoryStore, error) {
	size, err := validateSize(size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{size: size, slots: make(map[string]*memSlot)}, nil
}

func (s *MemoryStore) Allocate(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[id]; ok {
		return nil
	}
	s.slots[id] = &memSlot{data: make([]byte, s.size)}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) error {
	slot, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	scratch := make([]byte, len(slot.data))
	copy(scratch, slot.data)
	if err := fn(scratch); err != nil {
		return err
	}
	slot.data = scratch
	return nil
}

func (s *MemoryStore) Read(id string) ([]byte, error) {
	slot, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	out := make([]byte, len(slot.data))
	copy(out, slot.data)
	return out, nil
}

func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) lookup(id string) (*memSlot, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	slot, ok := s.slots[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	return slot, nil
}
