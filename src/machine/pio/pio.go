// Package pio loads programs into an RP2040 PIO block and starts one of its
// state machines.
package pio

import (
	"errors"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine"
)

// InstructionMemorySize is the number of 16-bit program slots shared by the
// four state machines of a block.
const InstructionMemorySize = rp.PIO_INSTR_MEM_SIZE

// PIO errors.
var (
	ErrOutOfProgramSpace = errors.New("pio: out of program space")
	ErrNoSpaceAtOffset   = errors.New("pio: program space unavailable at offset")
)

// Block is one PIO block.
type Block struct {
	// Bitmask of used instruction space
	usedSpaceMask uint32
	// HW is the actual hardware device
	HW *rp.PIO_Type

	index uint8
}

// NewBlock returns PIO block index (0 or 1) behind hw.
func NewBlock(hw *rp.PIO_Type, index uint8) *Block {
	if index > 1 {
		panic("invalid PIO index")
	}
	return &Block{HW: hw, index: index}
}

// BlockIndex returns 0 or 1 depending on whether the underlying device is PIO0 or PIO1.
func (b *Block) BlockIndex() uint8 {
	return b.index
}

// Load writes one instruction word into slot. Nothing is checked and the
// slot is not marked as used.
func (b *Block) Load(slot uint8, word uint16) {
	// Instruction Memory registers are 32-bit, with only lower 16 used
	b.HW.INSTR_MEM[slot%InstructionMemorySize].Set(uint32(word))
}

// LoadProgram loads prog into instruction memory and returns the offset
// where it was loaded. A program with a fixed origin goes exactly there;
// otherwise the highest free range is used. Jump targets are patched by the
// offset.
func (b *Block) LoadProgram(prog Program) (offset uint8, _ error) {
	if err := prog.Validate(); err != nil {
		return 0, err
	}
	maybeOffset := b.findOffsetForProgram(prog)
	if maybeOffset < 0 {
		if prog.Origin >= 0 {
			return 0, ErrNoSpaceAtOffset
		}
		return 0, ErrOutOfProgramSpace
	}
	offset = uint8(maybeOffset)

	for i, instr := range prog.Code {
		// Patch jump instructions with relative offset
		if INSTR_BITS_JMP == instr&INSTR_BITS_Msk {
			instr = instr&^0x1f | (instr+uint16(offset))&0x1f
		}
		b.Load(offset+uint8(i), instr)
	}

	// Mark the instruction space as in-use
	b.usedSpaceMask |= programMask(len(prog.Code)) << offset
	return offset, nil
}

// UsedSpace returns the bitmask of slots taken by loaded programs.
func (b *Block) UsedSpace() uint32 {
	return b.usedSpaceMask
}

func programMask(n int) uint32 {
	return uint32(uint64(1)<<n - 1)
}

func (b *Block) findOffsetForProgram(prog Program) int8 {
	programLen := uint32(len(prog.Code))
	mask := programMask(len(prog.Code))

	// Program has fixed offset (not relocatable)
	if prog.Origin >= 0 {
		if uint32(prog.Origin) > InstructionMemorySize-programLen {
			return -1
		}
		if b.usedSpaceMask&(mask<<prog.Origin) != 0 {
			return -1
		}
		return prog.Origin
	}

	// work down from the top always
	for i := int8(InstructionMemorySize - programLen); i >= 0; i-- {
		if b.usedSpaceMask&(mask<<uint32(i)) == 0 {
			return i
		}
	}
	return -1
}

// PinMode returns the pin mode that hands a pin to this block.
func (b *Block) PinMode() machine.PinMode {
	if b.index == 1 {
		return machine.PinPIO1
	}
	return machine.PinPIO0
}

// BindPin hands pin to this block: the PIO function is selected and the
// output enable is forced on.
func (b *Block) BindPin(gpio *machine.GPIO, pin machine.Pin) error {
	return gpio.Configure(pin, b.PinMode())
}

// StateMachine returns a state machine by index.
func (b *Block) StateMachine(index uint8) StateMachine {
	if index >= rp.PIO_NUM_SM {
		panic("invalid state machine index")
	}
	return StateMachine{
		pio:   b,
		index: index,
	}
}
