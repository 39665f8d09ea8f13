// Package slot provides the host-side storage regions that hold counter
// records.
//
// Ownership boundary:
// - slot allocation and identity
// - per-slot serialization of updates
// - commit-or-discard of a borrowed buffer
package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/counterctl/internal/counter"
)

var (
	ErrSlotNotFound  = errors.New("slot: not found")
	ErrInvalidSlotID = errors.New("slot: invalid id")
	ErrInvalidSize   = errors.New("slot: invalid size")
)

// UpdateFunc mutates a borrowed slot buffer in place. Returning an error
// discards every change made to data. data must not be retained.
type UpdateFunc func(data []byte) error

// Store is the host storage boundary.
type Store interface {
	// Allocate creates a zeroed slot. Allocating an existing slot is a no-op.
	Allocate(id string) error
	// Update serializes fn against other updates of the same slot and
	// commits data in a single write when fn returns nil.
	Update(ctx context.Context, id string, fn UpdateFunc) error
	// Read returns a copy of the slot bytes.
	Read(id string) ([]byte, error)
	// List returns slot ids in ascending order.
	List() ([]string, error)
}

// ValidateID checks the slot id format: lowercase letters, digits and
// single '.', '-' or '_' separators that neither lead nor trail.
func ValidateID(id string) error {
	if strings.TrimSpace(id) != id || !isValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSlotID, id)
	}
	return nil
}

func validateSize(size int) (int, error) {
	if size == 0 {
		return counter.RecordSize, nil
	}
	if size < counter.RecordSize {
		return 0, fmt.Errorf("%w: %d < %d", ErrInvalidSize, size, counter.RecordSize)
	}
	return size, nil
}

func isValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if i == 0 || i == len(id)-1 {
			if isSep {
				return false
			}
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
