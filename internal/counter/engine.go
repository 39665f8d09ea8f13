package counter

import "github.com/danmuck/counterctl/internal/instruction"

// Transition describes one committed invocation.
type Transition struct {
	Operation instruction.Operation
	Previous  Record
	Next      Record
}

// Engine runs the decode -> validate -> mutate -> encode pipeline.
type Engine struct {
	Policy OverflowPolicy
	// StrictDecode rejects trailing bytes on reset instructions.
	StrictDecode bool
}

// NewEngine returns an engine using the wrap overflow policy.
func NewEngine() Engine {
	return Engine{Policy: PolicyWrap}
}

// Process decodes instr, applies it to the record held in storage and
// writes the encoded result back into storage with a single copy. On any
// error storage is left untouched. storage is not retained after return.
func (e Engine) Process(instr []byte, storage []byte) (Transition, error) {
	op, err := e.decode(instr)
	if err != nil {
		return Transition{}, err
	}
	prev, err := DecodeRecord(storage)
	if err != nil {
		return Transition{}, err
	}
	next, err := ApplyWithPolicy(prev, op, e.policy())
	if err != nil {
		return Transition{}, err
	}
	copy(storage[:RecordSize], EncodeRecord(next))
	return Transition{Operation: op, Previous: prev, Next: next}, nil
}

func (e Engine) decode(instr []byte) (instruction.Operation, error) {
	if e.StrictDecode {
		return instruction.DecodeStrict(instr)
	}
	return instruction.Decode(instr)
}

func (e Engine) policy() OverflowPolicy {
	if e.Policy == "" {
		return PolicyWrap
	}
	return e.Policy
}
