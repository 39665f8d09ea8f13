package counter

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/danmuck/counterctl/internal/instruction"
)

func TestEngineProcessScenario(t *testing.T) {
	storage := make([]byte, RecordSize)
	e := NewEngine()

	steps := []struct {
		instr []byte
		want  uint32
	}{
		{instr: instruction.Encode(instruction.Increment(10)), want: 10},
		{instr: []byte{1, 0x03, 0x00, 0x00, 0x00}, want: 7},
		{instr: instruction.Encode(instruction.SetTo(33)), want: 33},
		{instr: []byte{3}, want: 0},
	}
	for i, step := range steps {
		tr, err := e.Process(step.instr, storage)
		if err != nil {
			t.Fatalf("step %d: process: %v", i, err)
		}
		if tr.Next.Counter != step.want {
			t.Fatalf("step %d: expected %d, got %d", i, step.want, tr.Next.Counter)
		}
		if !bytes.Equal(storage, EncodeRecord(Record{Counter: step.want})) {
			t.Fatalf("step %d: storage not updated: %v", i, storage)
		}
	}
}

func TestEngineProcessReportsTransition(t *testing.T) {
	storage := EncodeRecord(Record{Counter: 5})
	tr, err := NewEngine().Process(instruction.Encode(instruction.Decrement(20)), storage)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if tr.Previous.Counter != 5 || tr.Next.Counter != 0 {
		t.Fatalf("unexpected transition: %+v", tr)
	}
	if tr.Operation != instruction.Decrement(20) {
		t.Fatalf("unexpected operation: %s", tr.Operation)
	}
}

func TestEngineProcessErrorsLeaveStorageUntouched(t *testing.T) {
	tests := []struct {
		name    string
		engine  Engine
		instr   []byte
		storage []byte
		wantErr error
	}{
		{name: "empty instruction", engine: NewEngine(), instr: nil, storage: EncodeRecord(Record{Counter: 9}), wantErr: instruction.ErrMalformedInstruction},
		{name: "short payload", engine: NewEngine(), instr: []byte{0, 1}, storage: EncodeRecord(Record{Counter: 9}), wantErr: instruction.ErrMalformedInstruction},
		{name: "unknown tag", engine: NewEngine(), instr: []byte{99, 1, 0, 0, 0}, storage: EncodeRecord(Record{Counter: 9}), wantErr: instruction.ErrUnknownInstructionTag},
		{name: "short storage", engine: NewEngine(), instr: []byte{3}, storage: []byte{9, 0}, wantErr: ErrCorruptState},
		{name: "strict overflow", engine: Engine{Policy: PolicyStrict}, instr: instruction.Encode(instruction.Increment(1)), storage: EncodeRecord(Record{Counter: math.MaxUint32}), wantErr: ErrArithmeticOverflow},
		{name: "strict reset payload", engine: Engine{StrictDecode: true}, instr: []byte{3, 0}, storage: EncodeRecord(Record{Counter: 9}), wantErr: instruction.ErrMalformedInstruction},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			before := append([]byte(nil), tc.storage...)
			_, err := tc.engine.Process(tc.instr, tc.storage)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if !bytes.Equal(before, tc.storage) {
				t.Fatalf("storage mutated on error: before=%v after=%v", before, tc.storage)
			}
		})
	}
}

func TestEngineProcessPreservesSlack(t *testing.T) {
	storage := []byte{1, 0, 0, 0, 0xAA, 0xBB}
	if _, err := NewEngine().Process(instruction.Encode(instruction.Increment(1)), storage); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := []byte{2, 0, 0, 0, 0xAA, 0xBB}
	if !bytes.Equal(storage, want) {
		t.Fatalf("expected %v, got %v", want, storage)
	}
}

func TestEngineZeroValueWraps(t *testing.T) {
	storage := EncodeRecord(Record{Counter: math.MaxUint32})
	tr, err := Engine{}.Process(instruction.Encode(instruction.Increment(1)), storage)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if tr.Next.Counter != 0 {
		t.Fatalf("expected wrap to 0, got %d", tr.Next.Counter)
	}
}
