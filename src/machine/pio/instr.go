package pio

import (
	"fmt"
	"strings"
)

// Instruction is one encodable PIO instruction. The set of implementations is
// closed: Jmp, Wait, In, Out, Push, Pull, Mov, Irq and Set.
type Instruction interface {
	// Encode returns the 16-bit machine word.
	Encode() uint16
	// String returns the instruction in assembler syntax.
	String() string
	// Cycles returns the cycles the instruction takes when it does not stall.
	Cycles() uint32

	isInstruction()
}

// Opcodes, bits 15:13 of every instruction.
const (
	INSTR_BITS_JMP  = 0x0000
	INSTR_BITS_WAIT = 0x2000
	INSTR_BITS_IN   = 0x4000
	INSTR_BITS_OUT  = 0x6000
	INSTR_BITS_PUSH = 0x8000
	INSTR_BITS_PULL = 0x8080
	INSTR_BITS_MOV  = 0xa000
	INSTR_BITS_IRQ  = 0xc000
	INSTR_BITS_SET  = 0xe000

	// Bit mask for instruction code
	INSTR_BITS_Msk = 0xe000
)

const (
	delayPos = 8
	// MaxDelay is the largest delay without side-set bits.
	MaxDelay = 31
)

func encode(opcode uint16, delay uint8, args uint16) uint16 {
	return opcode | uint16(delay&MaxDelay)<<delayPos | args&0xff
}

func delaySuffix(delay uint8) string {
	if delay == 0 {
		return ""
	}
	return fmt.Sprintf(" [%d]", delay)
}

func name(table []string, v uint8) string {
	if int(v) < len(table) && table[v] != "" {
		return table[v]
	}
	return fmt.Sprintf("?%d", v)
}

// JmpCond is the condition of a JMP.
type JmpCond uint8

const (
	JmpAlways JmpCond = iota
	JmpXZero
	JmpXNZeroPostDec
	JmpYZero
	JmpYNZeroPostDec
	JmpXNotEqualY
	JmpPinInput
	JmpOSRNotEmpty
)

var jmpConds = []string{"", "!x", "x--", "!y", "y--", "x!=y", "pin", "!osre"}

// Jmp sets the program counter to Addr if Cond is true.
type Jmp struct {
	Cond  JmpCond
	Addr  uint8
	Delay uint8
}

func (i Jmp) Encode() uint16 {
	return encode(INSTR_BITS_JMP, i.Delay, uint16(i.Cond&7)<<5|uint16(i.Addr&0x1f))
}

func (i Jmp) String() string {
	if i.Cond == JmpAlways {
		return fmt.Sprintf("jmp %d%s", i.Addr, delaySuffix(i.Delay))
	}
	return fmt.Sprintf("jmp %s, %d%s", name(jmpConds, uint8(i.Cond)), i.Addr, delaySuffix(i.Delay))
}

// WaitSource is what a WAIT stalls on.
type WaitSource uint8

const (
	WaitGPIO WaitSource = iota
	WaitPin
	WaitIRQ
)

var waitSources = []string{"gpio", "pin", "irq"}

// Wait stalls until Source Index reads Polarity.
type Wait struct {
	Polarity bool
	Source   WaitSource
	Index    uint8
	Delay    uint8
}

func (i Wait) Encode() uint16 {
	return encode(INSTR_BITS_WAIT, i.Delay, uint16(boolToBit(i.Polarity))<<7|uint16(i.Source&3)<<5|uint16(i.Index&0x1f))
}

func (i Wait) String() string {
	idx := fmt.Sprint(i.Index)
	if i.Source == WaitIRQ && i.Index&0x10 != 0 {
		idx = fmt.Sprintf("%d rel", i.Index&7)
	}
	return fmt.Sprintf("wait %d %s %s%s", boolToBit(i.Polarity), name(waitSources, uint8(i.Source)), idx, delaySuffix(i.Delay))
}

// InSource is the source of an IN.
type InSource uint8

const (
	InPins InSource = 0
	InX    InSource = 1
	InY    InSource = 2
	InNull InSource = 3
	InISR  InSource = 6
	InOSR  InSource = 7
)

var inSources = []string{"pins", "x", "y", "null", "", "", "isr", "osr"}

// In shifts BitCount bits from Source into the ISR. A count of 32 encodes as 0.
type In struct {
	Source   InSource
	BitCount uint8
	Delay    uint8
}

func (i In) Encode() uint16 {
	return encode(INSTR_BITS_IN, i.Delay, uint16(i.Source&7)<<5|uint16(i.BitCount&0x1f))
}

func (i In) String() string {
	return fmt.Sprintf("in %s, %d%s", name(inSources, uint8(i.Source)), bitCount(i.BitCount), delaySuffix(i.Delay))
}

// OutDest is the destination of an OUT.
type OutDest uint8

const (
	OutPins    OutDest = 0
	OutX       OutDest = 1
	OutY       OutDest = 2
	OutNull    OutDest = 3
	OutPinDirs OutDest = 4
	OutPC      OutDest = 5
	OutISR     OutDest = 6
	OutExec    OutDest = 7
)

var outDests = []string{"pins", "x", "y", "null", "pindirs", "pc", "isr", "exec"}

// Out shifts BitCount bits out of the OSR into Dest. A count of 32 encodes as 0.
type Out struct {
	Dest     OutDest
	BitCount uint8
	Delay    uint8
}

func (i Out) Encode() uint16 {
	return encode(INSTR_BITS_OUT, i.Delay, uint16(i.Dest&7)<<5|uint16(i.BitCount&0x1f))
}

func (i Out) String() string {
	return fmt.Sprintf("out %s, %d%s", name(outDests, uint8(i.Dest)), bitCount(i.BitCount), delaySuffix(i.Delay))
}

func bitCount(n uint8) uint8 {
	if n&0x1f == 0 {
		return 32
	}
	return n & 0x1f
}

// Push moves the ISR into the RX FIFO.
type Push struct {
	IfFull bool
	Block  bool
	Delay  uint8
}

func (i Push) Encode() uint16 {
	return encode(INSTR_BITS_PUSH, i.Delay, uint16(boolToBit(i.IfFull))<<6|uint16(boolToBit(i.Block))<<5)
}

func (i Push) String() string {
	return "push" + fifoFlags(i.IfFull, "iffull", i.Block) + delaySuffix(i.Delay)
}

// Pull loads the OSR from the TX FIFO.
type Pull struct {
	IfEmpty bool
	Block   bool
	Delay   uint8
}

func (i Pull) Encode() uint16 {
	return encode(INSTR_BITS_PULL, i.Delay, uint16(boolToBit(i.IfEmpty))<<6|uint16(boolToBit(i.Block))<<5)
}

func (i Pull) String() string {
	return "pull" + fifoFlags(i.IfEmpty, "ifempty", i.Block) + delaySuffix(i.Delay)
}

func fifoFlags(cond bool, condName string, block bool) string {
	var b strings.Builder
	if cond {
		b.WriteString(" " + condName)
	}
	if block {
		b.WriteString(" block")
	} else {
		b.WriteString(" noblock")
	}
	return b.String()
}

// MovDest is the destination of a MOV.
type MovDest uint8

const (
	MovDestPins MovDest = 0
	MovDestX    MovDest = 1
	MovDestY    MovDest = 2
	MovDestExec MovDest = 4
	MovDestPC   MovDest = 5
	MovDestISR  MovDest = 6
	MovDestOSR  MovDest = 7
)

var movDests = []string{"pins", "x", "y", "", "exec", "pc", "isr", "osr"}

// MovOp is applied to the source of a MOV.
type MovOp uint8

const (
	MovNone MovOp = iota
	MovInvert
	MovBitReverse
)

var movOps = []string{"", "!", "::"}

// MovSource is the source of a MOV.
type MovSource uint8

const (
	MovSrcPins   MovSource = 0
	MovSrcX      MovSource = 1
	MovSrcY      MovSource = 2
	MovSrcNull   MovSource = 3
	MovSrcStatus MovSource = 5
	MovSrcISR    MovSource = 6
	MovSrcOSR    MovSource = 7
)

var movSources = []string{"pins", "x", "y", "null", "", "status", "isr", "osr"}

// Mov copies Source, transformed by Op, to Dest.
type Mov struct {
	Dest   MovDest
	Op     MovOp
	Source MovSource
	Delay  uint8
}

// Nop returns the canonical no-op, mov y, y.
func Nop() Mov {
	return Mov{Dest: MovDestY, Source: MovSrcY}
}

func (i Mov) Encode() uint16 {
	return encode(INSTR_BITS_MOV, i.Delay, uint16(i.Dest&7)<<5|uint16(i.Op&3)<<3|uint16(i.Source&7))
}

func (i Mov) String() string {
	if i.Dest == MovDestY && i.Op == MovNone && i.Source == MovSrcY {
		return "nop" + delaySuffix(i.Delay)
	}
	op := ""
	if int(i.Op) < len(movOps) {
		op = movOps[i.Op]
	}
	return fmt.Sprintf("mov %s, %s%s%s", name(movDests, uint8(i.Dest)), op, name(movSources, uint8(i.Source)), delaySuffix(i.Delay))
}

// Irq sets or clears a PIO interrupt flag.
type Irq struct {
	Clear bool
	Wait  bool
	Index uint8
	Delay uint8
}

func (i Irq) Encode() uint16 {
	return encode(INSTR_BITS_IRQ, i.Delay, uint16(boolToBit(i.Clear))<<6|uint16(boolToBit(i.Wait))<<5|uint16(i.Index&0x1f))
}

func (i Irq) String() string {
	mode := ""
	switch {
	case i.Clear:
		mode = "clear "
	case i.Wait:
		mode = "wait "
	}
	idx := fmt.Sprint(i.Index)
	if i.Index&0x10 != 0 {
		idx = fmt.Sprintf("%d rel", i.Index&7)
	}
	return "irq " + mode + idx + delaySuffix(i.Delay)
}

// SetDest is the destination of a SET.
type SetDest uint8

const (
	SetPins    SetDest = 0
	SetX       SetDest = 1
	SetY       SetDest = 2
	SetPinDirs SetDest = 4
)

var setDests = []string{"pins", "x", "y", "", "pindirs"}

// Set writes the 5-bit immediate Data to Dest.
type Set struct {
	Dest  SetDest
	Data  uint8
	Delay uint8
}

func (i Set) Encode() uint16 {
	return encode(INSTR_BITS_SET, i.Delay, uint16(i.Dest&7)<<5|uint16(i.Data&0x1f))
}

func (i Set) String() string {
	return fmt.Sprintf("set %s, %d%s", name(setDests, uint8(i.Dest)), i.Data, delaySuffix(i.Delay))
}

func (i Jmp) Cycles() uint32  { return 1 + uint32(i.Delay) }
func (i Wait) Cycles() uint32 { return 1 + uint32(i.Delay) }
func (i In) Cycles() uint32   { return 1 + uint32(i.Delay) }
func (i Out) Cycles() uint32  { return 1 + uint32(i.Delay) }
func (i Push) Cycles() uint32 { return 1 + uint32(i.Delay) }
func (i Pull) Cycles() uint32 { return 1 + uint32(i.Delay) }
func (i Mov) Cycles() uint32  { return 1 + uint32(i.Delay) }
func (i Irq) Cycles() uint32  { return 1 + uint32(i.Delay) }
func (i Set) Cycles() uint32  { return 1 + uint32(i.Delay) }

func (Jmp) isInstruction()  {}
func (Wait) isInstruction() {}
func (In) isInstruction()   {}
func (Out) isInstruction()  {}
func (Push) isInstruction() {}
func (Pull) isInstruction() {}
func (Mov) isInstruction()  {}
func (Irq) isInstruction()  {}
func (Set) isInstruction()  {}

// Decode returns the instruction encoded by word. Every word decodes; fields
// holding reserved values are kept and print as ?n.
func Decode(word uint16) Instruction {
	delay := uint8(word>>delayPos) & MaxDelay
	args := uint8(word)
	switch word & INSTR_BITS_Msk {
	case INSTR_BITS_JMP:
		return Jmp{Cond: JmpCond(args >> 5), Addr: args & 0x1f, Delay: delay}
	case INSTR_BITS_WAIT:
		return Wait{Polarity: args&0x80 != 0, Source: WaitSource(args>>5) & 3, Index: args & 0x1f, Delay: delay}
	case INSTR_BITS_IN:
		return In{Source: InSource(args >> 5), BitCount: args & 0x1f, Delay: delay}
	case INSTR_BITS_OUT:
		return Out{Dest: OutDest(args >> 5), BitCount: args & 0x1f, Delay: delay}
	case INSTR_BITS_PUSH:
		if args&0x80 != 0 {
			return Pull{IfEmpty: args&0x40 != 0, Block: args&0x20 != 0, Delay: delay}
		}
		return Push{IfFull: args&0x40 != 0, Block: args&0x20 != 0, Delay: delay}
	case INSTR_BITS_MOV:
		return Mov{Dest: MovDest(args >> 5), Op: MovOp(args>>3) & 3, Source: MovSource(args & 7), Delay: delay}
	case INSTR_BITS_IRQ:
		return Irq{Clear: args&0x40 != 0, Wait: args&0x20 != 0, Index: args & 0x1f, Delay: delay}
	default:
		return Set{Dest: SetDest(args >> 5), Data: args & 0x1f, Delay: delay}
	}
}

// EncodeJmp returns an unconditional jump to addr.
func EncodeJmp(addr uint8) uint16 {
	return Jmp{Addr: addr}.Encode()
}

// Assemble encodes instrs in order.
func Assemble(instrs ...Instruction) []uint16 {
	code := make([]uint16, len(instrs))
	for i, instr := range instrs {
		code[i] = instr.Encode()
	}
	return code
}

// Disassemble returns one line of assembler per word.
func Disassemble(code []uint16) []string {
	lines := make([]string, len(code))
	for i, w := range code {
		lines[i] = Decode(w).String()
	}
	return lines
}

func boolToBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
