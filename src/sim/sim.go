// Package sim is a register-level model of the parts of an RP2040 touched
// during clock bring-up and PIO start.
//
// A Chip implements mmio.Bus. Every bus access advances the chip by one tick;
// status bits (reset done, oscillator stable, mux selected, PLL lock) come
// true a configurable number of ticks after the write that requested them.
// Sequencing mistakes that would stop real silicon are recorded as fatal
// faults and halt the chip: from then on every read returns zero, so any
// status poll spins until its budget runs out.
//
// The PIO block runs on its own time base, advanced by Run, in units of
// 1/256 system clock cycles so that fractional dividers are exact.
package sim

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/mmio"
)

// Options tune the model. Latencies count bus accesses.
type Options struct {
	XOSCFreq uint32

	ResetLatency  uint32
	XOSCLatency   uint32
	SelectLatency uint32
	LockLatency   uint32

	// WarmBoot starts the chip as previous firmware left it: clk_ref on the
	// crystal, clk_sys on a locked PLL_SYS and the start-up resets released.
	WarmBoot bool
}

// DefaultOptions returns a 12 MHz crystal and short latencies.
func DefaultOptions() Options {
	return Options{
		XOSCFreq:      12 * machine.MHz,
		ResetLatency:  3,
		XOSCLatency:   20,
		SelectLatency: 2,
		LockLatency:   10,
	}
}

// Access is one bus access.
type Access struct {
	Tick  uint64
	Addr  uintptr
	Write bool
	Value uint32
}

// Fault is a sequencing error detected by the model.
type Fault struct {
	Tick  uint64
	Fatal bool
	Msg   string
}

func (f Fault) String() string {
	kind := "warning"
	if f.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("tick %d: %s: %s", f.Tick, kind, f.Msg)
}

const blockMask = 0xfff

// Chip is the simulated microcontroller.
type Chip struct {
	opts Options

	tick    uint64
	halted  bool
	claimed bool
	regs   map[uintptr]uint32
	trace  []Access
	faults []Fault

	resetDoneAt [25]uint64
	clk         [2]glitchlessMux
	xosc        xoscState
	pll         [2]pllState
	pio         pioState
	pads        [rp.NUM_BANK0_GPIOS]Level
	edges       []Edge
	events      []Event
}

// New returns a chip fresh out of power-on reset, or in the warm state when
// opts.WarmBoot is set. Zero latencies and frequencies take their defaults.
func New(opts Options) *Chip {
	def := DefaultOptions()
	if opts.XOSCFreq == 0 {
		opts.XOSCFreq = def.XOSCFreq
	}
	if opts.ResetLatency == 0 {
		opts.ResetLatency = def.ResetLatency
	}
	if opts.XOSCLatency == 0 {
		opts.XOSCLatency = def.XOSCLatency
	}
	if opts.SelectLatency == 0 {
		opts.SelectLatency = def.SelectLatency
	}
	if opts.LockLatency == 0 {
		opts.LockLatency = def.LockLatency
	}

	c := &Chip{opts: opts, regs: make(map[uintptr]uint32)}
	for pin := range c.pads {
		c.pads[pin] = HiZ
	}
	c.resetClocks()
	c.regs[rp.XOSC_BASE+xoscSTARTUP] = 0xc4
	c.regs[rp.WATCHDOG_BASE+watchdogTICK] = rp.WATCHDOG_TICK_ENABLE
	for _, base := range resettable {
		c.resetBlock(base)
	}
	c.regs[rp.RESETS_BASE+resetsRESET] = rp.RESETS_RESET_Msk &^ (rp.RESETS_RESET_IO_QSPI | rp.RESETS_RESET_PADS_QSPI)

	if opts.WarmBoot {
		c.warmBoot()
	}
	return c
}

// Load implements mmio.Bus.
func (c *Chip) Load(addr uintptr) uint32 {
	c.tick++
	v := c.load(addr &^ mmio.AliasMask)
	c.trace = append(c.trace, Access{Tick: c.tick, Addr: addr, Value: v})
	return v
}

// Store implements mmio.Bus.
func (c *Chip) Store(addr uintptr, value uint32) {
	c.tick++
	c.trace = append(c.trace, Access{Tick: c.tick, Addr: addr, Write: true, Value: value})
	if c.halted {
		return
	}

	rw := addr &^ mmio.AliasMask
	block, off := rw&^blockMask, rw&blockMask
	if c.heldInReset(block) {
		c.fault(false, "write to %s at %#x while held in reset", blockName(block), off)
		return
	}

	old := c.regs[rw]
	var v uint32
	switch addr & mmio.AliasMask {
	case mmio.AliasXOR:
		v = old ^ value
	case mmio.AliasSet:
		v = old | value
	case mmio.AliasClr:
		v = old &^ value
	default:
		v = value
	}

	switch block {
	case rp.RESETS_BASE:
		c.storeResets(off, old, v)
	case rp.CLOCKS_BASE:
		c.storeClocks(off, old, v)
	case rp.XOSC_BASE:
		c.storeXOSC(off, v, value)
	case rp.PLL_SYS_BASE:
		c.storePLL(0, off, old, v)
	case rp.PLL_USB_BASE:
		c.storePLL(1, off, old, v)
	case rp.IO_BANK0_BASE:
		c.storeIOBank0(off, v)
	case rp.PIO0_BASE:
		c.storePIO(off, old, v)
	default:
		c.regs[rw] = v
	}
}

func (c *Chip) load(rw uintptr) uint32 {
	if c.halted {
		return 0
	}
	block, off := rw&^blockMask, rw&blockMask
	if c.heldInReset(block) {
		c.fault(false, "read of %s at %#x while held in reset", blockName(block), off)
		return 0
	}
	switch block {
	case rp.RESETS_BASE:
		return c.loadResets(off)
	case rp.CLOCKS_BASE:
		return c.loadClocks(off)
	case rp.XOSC_BASE:
		return c.loadXOSC(off)
	case rp.PLL_SYS_BASE:
		return c.loadPLL(0, off)
	case rp.PLL_USB_BASE:
		return c.loadPLL(1, off)
	case rp.WATCHDOG_BASE:
		if off == watchdogTICK && c.regs[rw]&rp.WATCHDOG_TICK_ENABLE != 0 {
			return c.regs[rw] | rp.WATCHDOG_TICK_RUNNING
		}
	case rp.IO_BANK0_BASE:
		return c.loadIOBank0(off)
	case rp.PIO0_BASE:
		return c.loadPIO(off)
	}
	return c.regs[rw]
}

func (c *Chip) fault(fatal bool, format string, args ...any) {
	c.faults = append(c.faults, Fault{Tick: c.tick, Fatal: fatal, Msg: fmt.Sprintf(format, args...)})
	if fatal {
		c.halted = true
	}
}

func blockName(base uintptr) string {
	switch base {
	case rp.RESETS_BASE:
		return "RESETS"
	case rp.CLOCKS_BASE:
		return "CLOCKS"
	case rp.XOSC_BASE:
		return "XOSC"
	case rp.PLL_SYS_BASE:
		return "PLL_SYS"
	case rp.PLL_USB_BASE:
		return "PLL_USB"
	case rp.WATCHDOG_BASE:
		return "WATCHDOG"
	case rp.IO_BANK0_BASE:
		return "IO_BANK0"
	case rp.PIO0_BASE:
		return "PIO0"
	}
	return fmt.Sprintf("block %#08x", base)
}

// Claim implements rp.Claimer: it succeeds once per chip.
func (c *Chip) Claim() bool {
	if c.claimed {
		return false
	}
	c.claimed = true
	return true
}

// Tick returns the number of bus accesses so far.
func (c *Chip) Tick() uint64 { return c.tick }

// Halted reports whether a fatal fault stopped the chip.
func (c *Chip) Halted() bool { return c.halted }

// Faults returns every fault recorded so far.
func (c *Chip) Faults() []Fault { return slices.Clone(c.faults) }

// Trace returns every bus access so far.
func (c *Chip) Trace() []Access { return slices.Clone(c.trace) }

// Snapshot returns the stored value of every register written or reset so
// far. Status bits computed on read are not included.
func (c *Chip) Snapshot() map[uintptr]uint32 {
	return maps.Clone(c.regs)
}

// Addrs returns the addresses in a snapshot in ascending order.
func Addrs(snap map[uintptr]uint32) []uintptr {
	addrs := maps.Keys(snap)
	slices.Sort(addrs)
	return addrs
}
