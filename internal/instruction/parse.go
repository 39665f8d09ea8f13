package instruction

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseTag resolves an operation name used by the CLI and HTTP surfaces.
func ParseTag(name string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "increment", "inc":
		return TagIncrement, nil
	case "decrement", "dec":
		return TagDecrement, nil
	case "set", "update":
		return TagSetTo, nil
	case "reset":
		return TagReset, nil
	default:
		return 0, fmt.Errorf("%w: unknown operation name %q", ErrUnknownInstructionTag, name)
	}
}

// Parse builds an Operation from a name and a decimal amount. The amount is
// ignored for reset.
func Parse(name, amount string) (Operation, error) {
	tag, err := ParseTag(name)
	if err != nil {
		return Operation{}, err
	}
	if !tag.HasArgument() {
		return ResetToZero(), nil
	}
	raw := strings.TrimSpace(amount)
	if raw == "" {
		return Operation{}, fmt.Errorf("%w: %s requires an amount", ErrMalformedInstruction, tag)
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return Operation{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedInstruction, raw, err)
	}
	return Operation{Tag: tag, Amount: uint32(n)}, nil
}
