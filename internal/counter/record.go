// Package counter owns the persisted counter record and its transition rules.
//
// Ownership boundary:
// - record decode/encode (4-byte little-endian u32)
// - operation transitions
// - validate-then-commit processing over a caller-owned storage buffer
package counter

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RecordSize is the persisted width of a Record in bytes.
const RecordSize = 4

var (
	ErrCorruptState       = errors.New("counter: corrupt state")
	ErrArithmeticOverflow = errors.New("counter: arithmetic overflow")
)

// Record is the single persisted counter entity.
type Record struct {
	Counter uint32
}

// DecodeRecord reads a Record from the first RecordSize bytes of buf.
func DecodeRecord(buf []byte) (Record, error) {
	if len(buf) < RecordSize {
		return Record{}, fmt.Errorf("%w: need %d bytes, got %d", ErrCorruptState, RecordSize, len(buf))
	}
	return Record{Counter: binary.LittleEndian.Uint32(buf[:RecordSize])}, nil
}

// EncodeRecord returns exactly RecordSize bytes.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf, r.Counter)
	return buf
}
