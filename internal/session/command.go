package session

import "fmt"

// Opcode identifies a control command.
type Opcode uint8

const (
	OpReset Opcode = iota
	OpSetBankA
	OpGetBankA
	OpSetBankB
	OpGetBankB
	OpSetGlobalInterrupt
	OpSetBankAInterruptEnable
	OpSetBankBInterruptEnable

	opcodeCount
)

var opcodeNames = [...]string{
	OpReset:                   "Reset",
	OpSetBankA:                "SetBankA",
	OpGetBankA:                "GetBankA",
	OpSetBankB:                "SetBankB",
	OpGetBankB:                "GetBankB",
	OpSetGlobalInterrupt:      "SetGlobalInterrupt",
	OpSetBankAInterruptEnable: "SetBankAInterruptEnable",
	OpSetBankBInterruptEnable: "SetBankBInterruptEnable",
}

func (op Opcode) String() string {
	if op.Valid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Valid reports whether op is a known command.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// Direction describes how a command moves its 32-bit value.
type Direction uint8

const (
	DirNone Direction = iota
	DirWrite
	DirRead
)

// Direction returns whether op takes a value, returns one, or neither.
func (op Opcode) Direction() Direction {
	switch op {
	case OpGetBankA, OpGetBankB:
		return DirRead
	case OpReset:
		return DirNone
	case OpSetBankA, OpSetBankB, OpSetGlobalInterrupt,
		OpSetBankAInterruptEnable, OpSetBankBInterruptEnable:
		return DirWrite
	default:
		return DirNone
	}
}

// Command is a single decoded control request. Value is ignored for
// commands that do not write.
type Command struct {
	Op    Opcode
	Value uint32
}

func (c Command) String() string {
	if c.Op.Direction() == DirWrite {
		return fmt.Sprintf("%s(%#x)", c.Op, c.Value)
	}
	return c.Op.String()
}
