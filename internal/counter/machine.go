package counter

import (
	"fmt"
	"math"
	"strings"

	"github.com/danmuck/counterctl/internal/instruction"
)

// OverflowPolicy selects how Increment handles results above math.MaxUint32.
type OverflowPolicy string

const (
	// PolicyWrap wraps modulo 2^32.
	PolicyWrap OverflowPolicy = "wrap"
	// PolicyStrict rejects the increment with ErrArithmeticOverflow.
	PolicyStrict OverflowPolicy = "strict"
)

// ParseOverflowPolicy accepts "wrap" or "strict"; empty selects wrap.
func ParseOverflowPolicy(raw string) (OverflowPolicy, error) {
	switch OverflowPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyWrap:
		return PolicyWrap, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("counter: unknown overflow policy %q", raw)
	}
}

// Apply computes the next record. It is total: every decoded operation
// produces a record. Increment wraps; Decrement saturates at zero.
func Apply(prev Record, op instruction.Operation) Record {
	next, _ := ApplyWithPolicy(prev, op, PolicyWrap)
	return next
}

// ApplyWithPolicy is Apply with an explicit overflow policy. Only an
// Increment under PolicyStrict can fail. An Operation built outside Decode
// with an undefined tag is rejected and prev is returned unchanged.
func ApplyWithPolicy(prev Record, op instruction.Operation, policy OverflowPolicy) (Record, error) {
	switch op.Tag {
	case instruction.TagIncrement:
		if policy == PolicyStrict && op.Amount > math.MaxUint32-prev.Counter {
			return prev, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, prev.Counter, op.Amount)
		}
		return Record{Counter: prev.Counter + op.Amount}, nil
	case instruction.TagDecrement:
		if op.Amount > prev.Counter {
			return Record{Counter: 0}, nil
		}
		return Record{Counter: prev.Counter - op.Amount}, nil
	case instruction.TagSetTo:
		return Record{Counter: op.Amount}, nil
	case instruction.TagReset:
		return Record{Counter: 0}, nil
	default:
		return prev, &instruction.UnknownTagError{Tag: byte(op.Tag)}
	}
}
