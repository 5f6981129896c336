package pio

import (
	"errors"
	"fmt"
)

// Program holds a binary representation of a PIO program.
type Program struct {
	// Name names the PIO program
	Name string

	// Origin is the slot the program must be loaded at, or -1 if the code is
	// position independent.
	Origin int8

	// Wrap indicates where to wrap the PC value, and WrapTarget is the value
	// it is wrapped to. Both are relative to the start of the program.
	WrapTarget, Wrap uint8

	// Code holds the instructions in 16-bit words. Jump targets are relative
	// to the start of the program.
	Code []uint16
}

// NewProgram builds a position independent program that wraps from its last
// instruction to its first.
func NewProgram(name string, instrs ...Instruction) Program {
	code := Assemble(instrs...)
	wrap := uint8(0)
	if len(code) > 0 {
		wrap = uint8(len(code) - 1)
	}
	return Program{Name: name, Origin: -1, Wrap: wrap, Code: code}
}

// Validate checks that the program fits in instruction memory and that its
// wrap bounds and jump targets stay inside it.
func (p Program) Validate() error {
	n := len(p.Code)
	switch {
	case n == 0:
		return fmt.Errorf("pio: program %q is empty", p.Name)
	case n > InstructionMemorySize:
		return fmt.Errorf("pio: program %q: %d instructions: %w", p.Name, n, ErrOutOfProgramSpace)
	case p.Origin >= 0 && int(p.Origin)+n > InstructionMemorySize:
		return fmt.Errorf("pio: program %q at origin %d: %w", p.Name, p.Origin, ErrOutOfProgramSpace)
	case int(p.Wrap) >= n || p.WrapTarget > p.Wrap:
		return fmt.Errorf("pio: program %q: wrap %d..%d outside program", p.Name, p.WrapTarget, p.Wrap)
	}
	for i, w := range p.Code {
		if w&INSTR_BITS_Msk == INSTR_BITS_JMP && int(w&0x1f) >= n {
			return fmt.Errorf("pio: program %q: instruction %d jumps to %d outside program", p.Name, i, w&0x1f)
		}
	}
	return nil
}

// ErrNotPeriodic is returned by LoopCycles for programs whose flow depends on
// state the program does not control.
var ErrNotPeriodic = errors.New("pio: program flow is data dependent")

// LoopCycles returns the length in state machine cycles of the loop the
// program settles into when started at its first instruction. Only programs
// whose control flow is fixed have one: unconditional jumps and the wrap are
// followed, anything else that can change the program counter is rejected.
func (p Program) LoopCycles() (uint32, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	firstSeen := make(map[uint8]uint32, len(p.Code))
	var cycles uint32
	pc := uint8(0)
	for {
		if start, ok := firstSeen[pc]; ok {
			return cycles - start, nil
		}
		firstSeen[pc] = cycles

		instr := Decode(p.Code[pc])
		cycles += instr.Cycles()
		switch instr := instr.(type) {
		case Jmp:
			if instr.Cond != JmpAlways {
				return 0, fmt.Errorf("pio: program %q: instruction %d: %w", p.Name, pc, ErrNotPeriodic)
			}
			pc = instr.Addr
			continue
		case Wait, Push, Pull:
			return 0, fmt.Errorf("pio: program %q: instruction %d: %w", p.Name, pc, ErrNotPeriodic)
		case Out:
			if instr.Dest == OutPC || instr.Dest == OutExec {
				return 0, fmt.Errorf("pio: program %q: instruction %d: %w", p.Name, pc, ErrNotPeriodic)
			}
		case Mov:
			if instr.Dest == MovDestPC || instr.Dest == MovDestExec {
				return 0, fmt.Errorf("pio: program %q: instruction %d: %w", p.Name, pc, ErrNotPeriodic)
			}
		case Irq:
			if instr.Wait {
				return 0, fmt.Errorf("pio: program %q: instruction %d: %w", p.Name, pc, ErrNotPeriodic)
			}
		}
		if pc == p.Wrap {
			pc = p.WrapTarget
		} else {
			pc++
		}
	}
}
