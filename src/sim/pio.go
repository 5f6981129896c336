package sim

import (
	"fmt"
	"math/bits"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine/pio"
)

// EventKind is a PIO control operation.
type EventKind uint8

const (
	EventLoad EventKind = iota
	EventConfig
	EventRestart
	EventClkDivRestart
	EventExec
	EventEnable
	EventDisable
)

func (k EventKind) String() string {
	switch k {
	case EventLoad:
		return "load"
	case EventConfig:
		return "config"
	case EventRestart:
		return "restart"
	case EventClkDivRestart:
		return "clkdiv-restart"
	case EventExec:
		return "exec"
	case EventEnable:
		return "enable"
	case EventDisable:
		return "disable"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Event is one control write to the PIO block. SM is the state machine or
// instruction slot concerned.
type Event struct {
	Tick  uint64
	Kind  EventKind
	SM    int
	Value uint32
}

type smState struct {
	pc     uint8
	x, y   uint32
	delay  uint8
	nextAt uint64

	irqWait   uint8
	waitDelay uint8
}

type pioState struct {
	now     uint64
	sm      [rp.PIO_NUM_SM]smState
	irq     uint8
	pinsOut uint32
	pinDirs uint32
}

const (
	pioFSTATReset    = 0x0f000f00
	pioCFGINFO       = 0x00200404
	smCLKDIVReset    = 0x00010000
	smEXECCTRLReset  = 0x0001f000
	smSHIFTCTRLReset = 0x000c0000
	smPINCTRLReset   = 0x14000000

	smCLKDIV    = 0x00
	smEXECCTRL  = 0x04
	smSHIFTCTRL = 0x08
	smADDR      = 0x0c
	smINSTR     = 0x10
	smPINCTRL   = 0x14
)

func smReg(sm int, reg uintptr) uintptr {
	return rp.PIO0_BASE + rp.PIO_SM0_CLKDIV_Offset + uintptr(sm)*rp.PIO_SM_Stride + reg
}

func instrMem(slot uint8) uintptr {
	return rp.PIO0_BASE + rp.PIO_INSTR_MEM0_Offset + uintptr(slot%rp.PIO_INSTR_MEM_SIZE)*4
}

func (c *Chip) resetPIO() {
	c.regs[rp.PIO0_BASE+rp.PIO_FSTAT_Offset] = pioFSTATReset
	c.regs[rp.PIO0_BASE+rp.PIO_DBG_CFGINFO_Offset] = pioCFGINFO
	for sm := 0; sm < rp.PIO_NUM_SM; sm++ {
		c.regs[smReg(sm, smCLKDIV)] = smCLKDIVReset
		c.regs[smReg(sm, smEXECCTRL)] = smEXECCTRLReset
		c.regs[smReg(sm, smSHIFTCTRL)] = smSHIFTCTRLReset
		c.regs[smReg(sm, smPINCTRL)] = smPINCTRLReset
	}
	now := c.pio.now
	c.pio = pioState{now: now}
	c.updatePads()
}

func (c *Chip) event(kind EventKind, sm int, v uint32) {
	c.events = append(c.events, Event{Tick: c.tick, Kind: kind, SM: sm, Value: v})
}

// Events returns the PIO control writes so far.
func (c *Chip) Events() []Event {
	return append([]Event(nil), c.events...)
}

// InstructionMemory returns the PIO0 instruction memory.
func (c *Chip) InstructionMemory() [rp.PIO_INSTR_MEM_SIZE]uint16 {
	var mem [rp.PIO_INSTR_MEM_SIZE]uint16
	for i := range mem {
		mem[i] = uint16(c.regs[instrMem(uint8(i))])
	}
	return mem
}

// PC returns the program counter of state machine sm.
func (c *Chip) PC(sm int) uint8 {
	return c.pio.sm[sm].pc
}

// Now returns the PIO time base in 1/256 system clock cycles.
func (c *Chip) Now() uint64 {
	return c.pio.now
}

func (c *Chip) loadPIO(off uintptr) uint32 {
	switch off {
	case rp.PIO_IRQ_Offset:
		return uint32(c.pio.irq)
	case rp.PIO_DBG_PADOUT_Offset:
		return c.pio.pinsOut
	case rp.PIO_DBG_PADOE_Offset:
		return c.pio.pinDirs
	}
	if sm, reg, ok := smOffset(off); ok {
		switch reg {
		case smADDR:
			return uint32(c.pio.sm[sm].pc)
		case smINSTR:
			return c.regs[instrMem(c.pio.sm[sm].pc)]
		}
	}
	return c.regs[rp.PIO0_BASE+off]
}

func smOffset(off uintptr) (sm int, reg uintptr, ok bool) {
	if off < rp.PIO_SM0_CLKDIV_Offset || off >= rp.PIO_SM0_CLKDIV_Offset+rp.PIO_NUM_SM*rp.PIO_SM_Stride {
		return 0, 0, false
	}
	off -= rp.PIO_SM0_CLKDIV_Offset
	return int(off / rp.PIO_SM_Stride), off % rp.PIO_SM_Stride, true
}

func (c *Chip) storePIO(off uintptr, old, v uint32) {
	switch {
	case off == rp.PIO_CTRL_Offset:
		c.storePIOCtrl(old, v)
		return
	case off == rp.PIO_IRQ_Offset:
		c.pio.irq &^= uint8(v)
		return
	case off == rp.PIO_IRQ_Offset+4:
		c.pio.irq |= uint8(v)
		return
	case off >= rp.PIO_INSTR_MEM0_Offset && off < rp.PIO_INSTR_MEM0_Offset+rp.PIO_INSTR_MEM_SIZE*4:
		slot := int(off-rp.PIO_INSTR_MEM0_Offset) / 4
		c.event(EventLoad, slot, v&0xffff)
		c.regs[rp.PIO0_BASE+off] = v & 0xffff
		return
	}
	if sm, reg, ok := smOffset(off); ok {
		switch reg {
		case smINSTR:
			c.event(EventExec, sm, v&0xffff)
			c.execute(sm, uint16(v))
			return
		case smADDR:
			return
		default:
			c.event(EventConfig, sm, v)
		}
	}
	c.regs[rp.PIO0_BASE+off] = v
}

func (c *Chip) storePIOCtrl(old, v uint32) {
	enable := v & rp.PIO_CTRL_SM_ENABLE_Msk
	restart := (v & rp.PIO_CTRL_SM_RESTART_Msk) >> rp.PIO_CTRL_SM_RESTART_Pos
	divRestart := (v & rp.PIO_CTRL_CLKDIV_RESTART_Msk) >> rp.PIO_CTRL_CLKDIV_RESTART_Pos
	wasEnabled := old & rp.PIO_CTRL_SM_ENABLE_Msk

	// The restart bits are strobes and always read back as zero.
	c.regs[rp.PIO0_BASE+rp.PIO_CTRL_Offset] = enable

	for sm := 0; sm < rp.PIO_NUM_SM; sm++ {
		bit := uint32(1) << sm
		s := &c.pio.sm[sm]
		if restart&bit != 0 {
			c.event(EventRestart, sm, 0)
			s.delay, s.irqWait = 0, 0
		}
		if divRestart&bit != 0 {
			c.event(EventClkDivRestart, sm, 0)
			s.nextAt = c.pio.now
		}
		switch {
		case enable&bit != 0 && wasEnabled&bit == 0:
			c.event(EventEnable, sm, 0)
			s.nextAt = c.pio.now
		case enable&bit == 0 && wasEnabled&bit != 0:
			c.event(EventDisable, sm, 0)
		}
	}
}

func (c *Chip) enabled(sm int) bool {
	return c.regs[rp.PIO0_BASE+rp.PIO_CTRL_Offset]&(1<<sm) != 0
}

func (c *Chip) divisor(sm int) uint64 {
	div := c.regs[smReg(sm, smCLKDIV)]
	return uint64(pio.DivisorFixed(uint16(div>>rp.PIO_SM0_CLKDIV_INT_Pos), uint8(div>>rp.PIO_SM0_CLKDIV_FRAC_Pos)))
}

// Run advances the PIO time base by cycles system clock cycles, executing
// every enabled state machine on its divided clock. A halted chip does not
// run.
func (c *Chip) Run(cycles uint64) {
	if c.halted {
		return
	}
	end := c.pio.now + cycles<<8
	for {
		next := -1
		for sm := range c.pio.sm {
			if !c.enabled(sm) || c.pio.sm[sm].nextAt >= end {
				continue
			}
			if next < 0 || c.pio.sm[sm].nextAt < c.pio.sm[next].nextAt {
				next = sm
			}
		}
		if next < 0 {
			break
		}
		s := &c.pio.sm[next]
		c.pio.now = s.nextAt
		c.step(next)
		s.nextAt += c.divisor(next)
	}
	c.pio.now = end
}

func (c *Chip) step(sm int) {
	s := &c.pio.sm[sm]
	if s.delay > 0 {
		s.delay--
		return
	}
	if s.irqWait != 0 {
		if c.pio.irq&s.irqWait != 0 {
			return
		}
		s.irqWait = 0
		c.advance(sm, 0, false, s.waitDelay)
		return
	}
	c.execute(sm, uint16(c.regs[instrMem(s.pc)]))
}

// advance moves the program counter past an executed instruction.
func (c *Chip) advance(sm int, target uint8, jumped bool, delay uint8) {
	s := &c.pio.sm[sm]
	execctrl := c.regs[smReg(sm, smEXECCTRL)]
	top := uint8((execctrl & rp.PIO_SM0_EXECCTRL_WRAP_TOP_Msk) >> rp.PIO_SM0_EXECCTRL_WRAP_TOP_Pos)
	bottom := uint8((execctrl & rp.PIO_SM0_EXECCTRL_WRAP_BOTTOM_Msk) >> rp.PIO_SM0_EXECCTRL_WRAP_BOTTOM_Pos)
	switch {
	case jumped:
		s.pc = target & 0x1f
	case s.pc == top:
		s.pc = bottom
	default:
		s.pc = (s.pc + 1) % rp.PIO_INSTR_MEM_SIZE
	}
	s.delay = delay
}

// execute runs one instruction, either fetched or written to SMn_INSTR. A
// stalled instruction leaves the program counter where it is.
func (c *Chip) execute(sm int, word uint16) {
	s := &c.pio.sm[sm]
	pinctrl := c.regs[smReg(sm, smPINCTRL)]
	execctrl := c.regs[smReg(sm, smEXECCTRL)]

	switch in := pio.Decode(word).(type) {
	case pio.Jmp:
		taken := false
		switch in.Cond {
		case pio.JmpAlways:
			taken = true
		case pio.JmpXZero:
			taken = s.x == 0
		case pio.JmpXNZeroPostDec:
			taken = s.x != 0
			s.x--
		case pio.JmpYZero:
			taken = s.y == 0
		case pio.JmpYNZeroPostDec:
			taken = s.y != 0
			s.y--
		case pio.JmpXNotEqualY:
			taken = s.x != s.y
		case pio.JmpPinInput:
			pin := int((execctrl & rp.PIO_SM0_EXECCTRL_JMP_PIN_Msk) >> rp.PIO_SM0_EXECCTRL_JMP_PIN_Pos)
			taken = c.input(pin)
		case pio.JmpOSRNotEmpty:
			// The OSR is not modelled and always reads empty.
		}
		c.advance(sm, in.Addr, taken, in.Delay)

	case pio.Wait:
		var level bool
		switch in.Source {
		case pio.WaitGPIO:
			level = c.input(int(in.Index))
		case pio.WaitPin:
			base := (pinctrl & rp.PIO_SM0_PINCTRL_IN_BASE_Msk) >> rp.PIO_SM0_PINCTRL_IN_BASE_Pos
			level = c.input(int((base + uint32(in.Index)) % 32))
		case pio.WaitIRQ:
			level = c.pio.irq&irqBit(sm, in.Index) != 0
		default:
			c.unsupported(sm, word)
			return
		}
		if level != in.Polarity {
			return
		}
		if in.Source == pio.WaitIRQ && in.Polarity {
			c.pio.irq &^= irqBit(sm, in.Index)
		}
		c.advance(sm, 0, false, in.Delay)

	case pio.Set:
		base := (pinctrl & rp.PIO_SM0_PINCTRL_SET_BASE_Msk) >> rp.PIO_SM0_PINCTRL_SET_BASE_Pos
		count := (pinctrl & rp.PIO_SM0_PINCTRL_SET_COUNT_Msk) >> rp.PIO_SM0_PINCTRL_SET_COUNT_Pos
		switch in.Dest {
		case pio.SetPins:
			c.pio.pinsOut = writePins(c.pio.pinsOut, base, count, uint32(in.Data))
		case pio.SetPinDirs:
			c.pio.pinDirs = writePins(c.pio.pinDirs, base, count, uint32(in.Data))
		case pio.SetX:
			s.x = uint32(in.Data)
		case pio.SetY:
			s.y = uint32(in.Data)
		default:
			c.unsupported(sm, word)
			return
		}
		c.updatePads()
		c.advance(sm, 0, false, in.Delay)

	case pio.Mov:
		var v uint32
		switch in.Source {
		case pio.MovSrcPins:
			base := (pinctrl & rp.PIO_SM0_PINCTRL_IN_BASE_Msk) >> rp.PIO_SM0_PINCTRL_IN_BASE_Pos
			for i := uint32(0); i < 32; i++ {
				if c.input(int((base + i) % 32)) {
					v |= 1 << i
				}
			}
		case pio.MovSrcX:
			v = s.x
		case pio.MovSrcY:
			v = s.y
		case pio.MovSrcNull:
		default:
			c.unsupported(sm, word)
			return
		}
		switch in.Op {
		case pio.MovInvert:
			v = ^v
		case pio.MovBitReverse:
			v = bits.Reverse32(v)
		}
		switch in.Dest {
		case pio.MovDestPins:
			base := (pinctrl & rp.PIO_SM0_PINCTRL_OUT_BASE_Msk) >> rp.PIO_SM0_PINCTRL_OUT_BASE_Pos
			count := (pinctrl & rp.PIO_SM0_PINCTRL_OUT_COUNT_Msk) >> rp.PIO_SM0_PINCTRL_OUT_COUNT_Pos
			c.pio.pinsOut = writePins(c.pio.pinsOut, base, count, v)
			c.updatePads()
		case pio.MovDestX:
			s.x = v
		case pio.MovDestY:
			s.y = v
		case pio.MovDestPC:
			c.advance(sm, uint8(v), true, in.Delay)
			return
		default:
			c.unsupported(sm, word)
			return
		}
		c.advance(sm, 0, false, in.Delay)

	case pio.Irq:
		bit := irqBit(sm, in.Index)
		if in.Clear {
			c.pio.irq &^= bit
			c.advance(sm, 0, false, in.Delay)
			return
		}
		c.pio.irq |= bit
		if in.Wait {
			s.irqWait, s.waitDelay = bit, in.Delay
			return
		}
		c.advance(sm, 0, false, in.Delay)

	default:
		c.unsupported(sm, word)
	}
}

func (c *Chip) unsupported(sm int, word uint16) {
	c.fault(false, "PIO0 SM%d: unsupported instruction %#04x (%v), state machine stopped", sm, word, pio.Decode(word))
	c.regs[rp.PIO0_BASE+rp.PIO_CTRL_Offset] &^= 1 << sm
}

// irqBit resolves an IRQ index, applying the relative mode of bit 4.
func irqBit(sm int, index uint8) uint8 {
	n := index & 7
	if index&0x10 != 0 {
		n = n&4 | (n+uint8(sm))&3
	}
	return 1 << n
}

// writePins replaces count bits of reg starting at base, wrapping at 32.
func writePins(reg, base, count, value uint32) uint32 {
	for i := uint32(0); i < count; i++ {
		pin := (base + i) % 32
		reg = reg&^(1<<pin) | (value>>i&1)<<pin
	}
	return reg
}

func (c *Chip) input(pin int) bool {
	if pin >= rp.NUM_BANK0_GPIOS {
		return false
	}
	return c.pads[pin] == High
}
