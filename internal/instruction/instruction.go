// Package instruction owns the counter instruction wire codec.
//
// Wire layout:
// - byte 0: operation tag
// - bytes 1..4: little-endian u32 argument (tags 0, 1, 2 only)
package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag identifies one operation variant on the wire.
type Tag uint8

const (
	TagIncrement Tag = 0
	TagDecrement Tag = 1
	TagSetTo     Tag = 2
	TagReset     Tag = 3
)

const (
	TagLen      = 1
	ArgLen      = 4
	MaxEncoded  = TagLen + ArgLen
	tagMaxKnown = TagReset
)

var (
	ErrMalformedInstruction  = errors.New("instruction: malformed instruction")
	ErrUnknownInstructionTag = errors.New("instruction: unknown instruction tag")
)

// UnknownTagError carries the rejected tag byte.
type UnknownTagError struct {
	Tag byte
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("instruction: unknown instruction tag %d", e.Tag)
}

func (e *UnknownTagError) Unwrap() error {
	return ErrUnknownInstructionTag
}

// Operation is a decoded instruction. Amount is zero for ResetToZero.
type Operation struct {
	Tag    Tag
	Amount uint32
}

func Increment(n uint32) Operation { return Operation{Tag: TagIncrement, Amount: n} }
func Decrement(n uint32) Operation { return Operation{Tag: TagDecrement, Amount: n} }
func SetTo(n uint32) Operation     { return Operation{Tag: TagSetTo, Amount: n} }
func ResetToZero() Operation       { return Operation{Tag: TagReset} }

// HasArgument reports whether the tag carries a u32 payload.
func (t Tag) HasArgument() bool {
	return t == TagIncrement || t == TagDecrement || t == TagSetTo
}

// Known reports whether t is one of the four defined tags.
func (t Tag) Known() bool {
	return t <= tagMaxKnown
}

func (t Tag) String() string {
	switch t {
	case TagIncrement:
		return "increment"
	case TagDecrement:
		return "decrement"
	case TagSetTo:
		return "set"
	case TagReset:
		return "reset"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

func (op Operation) String() string {
	if op.Tag.HasArgument() {
		return fmt.Sprintf("%s(%d)", op.Tag, op.Amount)
	}
	return op.Tag.String()
}

// Decode parses buf into an Operation. Trailing bytes after a reset tag
// are ignored.
func Decode(buf []byte) (Operation, error) {
	return decode(buf, false)
}

// DecodeStrict is Decode but rejects any payload on a reset tag.
func DecodeStrict(buf []byte) (Operation, error) {
	return decode(buf, true)
}

func decode(buf []byte, strict bool) (Operation, error) {
	if len(buf) < TagLen {
		return Operation{}, fmt.Errorf("%w: empty buffer", ErrMalformedInstruction)
	}
	tag := Tag(buf[0])
	payload := buf[TagLen:]

	switch tag {
	case TagIncrement, TagDecrement, TagSetTo:
		n, err := decodeArg(tag, payload)
		if err != nil {
			return Operation{}, err
		}
		return Operation{Tag: tag, Amount: n}, nil
	case TagReset:
		if strict && len(payload) != 0 {
			return Operation{}, fmt.Errorf("%w: reset takes no payload, got %d bytes", ErrMalformedInstruction, len(payload))
		}
		return ResetToZero(), nil
	default:
		return Operation{}, &UnknownTagError{Tag: buf[0]}
	}
}

func decodeArg(tag Tag, payload []byte) (uint32, error) {
	if len(payload) != ArgLen {
		return 0, fmt.Errorf(
			"%w: %s payload must be %d bytes, got %d",
			ErrMalformedInstruction,
			tag,
			ArgLen,
			len(payload),
		)
	}
	return binary.LittleEndian.Uint32(payload), nil
}

// Encode writes op in wire form. Unknown tags encode as the bare tag byte.
func Encode(op Operation) []byte {
	if !op.Tag.HasArgument() {
		return []byte{byte(op.Tag)}
	}
	buf := make([]byte, MaxEncoded)
	buf[0] = byte(op.Tag)
	binary.LittleEndian.PutUint32(buf[TagLen:], op.Amount)
	return buf
}
