package host

import (
	"errors"

	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/instruction"
	"github.com/danmuck/counterctl/internal/slot"
)

// Stable wire codes for invocation failures.
const (
	CodeOK                    uint32 = 0
	CodeMalformedInstruction  uint32 = 1
	CodeUnknownInstructionTag uint32 = 2
	CodeCorruptState          uint32 = 3
	CodeArithmeticOverflow    uint32 = 4
	CodeSlotNotFound          uint32 = 5
	CodeInvalidSlotID         uint32 = 6
	CodeMalformedRequest      uint32 = 7
	CodeInternal              uint32 = 99
)

// ErrMalformedRequest marks a request envelope that could not be decoded,
// as opposed to a decoded request carrying a bad instruction.
var ErrMalformedRequest = errors.New("host: malformed request")

var kinds = []struct {
	err  error
	code uint32
	kind string
}{
	{instruction.ErrMalformedInstruction, CodeMalformedInstruction, "malformed_instruction"},
	{instruction.ErrUnknownInstructionTag, CodeUnknownInstructionTag, "unknown_instruction_tag"},
	{counter.ErrCorruptState, CodeCorruptState, "corrupt_state"},
	{counter.ErrArithmeticOverflow, CodeArithmeticOverflow, "arithmetic_overflow"},
	{slot.ErrSlotNotFound, CodeSlotNotFound, "slot_not_found"},
	{slot.ErrInvalidSlotID, CodeInvalidSlotID, "invalid_slot_id"},
	{ErrMalformedRequest, CodeMalformedRequest, "malformed_request"},
}

// Code maps err to its wire code.
func Code(err error) uint32 {
	if err == nil {
		return CodeOK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return CodeInternal
}

// Kind maps err to a short label used in logs and metrics.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// ErrorForCode returns the sentinel for a wire code, or nil when the code
// has none.
func ErrorForCode(code uint32) error {
	for _, k := range kinds {
		if k.code == code {
			return k.err
		}
	}
	return nil
}
