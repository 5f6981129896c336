package sim

import (
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
)

// Level is the state of a pad.
type Level uint8

const (
	Low Level = iota
	High
	HiZ
)

func (l Level) String() string {
	switch l {
	case Low:
		return "low"
	case High:
		return "high"
	case HiZ:
		return "hi-z"
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// Edge is a change of pad level. At counts 1/256 system clock cycles on the
// PIO time base.
type Edge struct {
	Pin   int
	At    uint64
	Level Level
}

// Cycles returns the time of the edge in system clock cycles.
func (e Edge) Cycles() float64 {
	return float64(e.At) / 256
}

func gpioStatus(pin int) uintptr { return uintptr(pin) * 8 }
func gpioCtrl(pin int) uintptr   { return uintptr(pin)*8 + 4 }

func (c *Chip) loadIOBank0(off uintptr) uint32 {
	if off%8 == 4 || off >= rp.NUM_BANK0_GPIOS*8 {
		return c.regs[rp.IO_BANK0_BASE+off]
	}
	var v uint32
	switch c.pad(int(off / 8)) {
	case High:
		v = rp.IO_BANK0_GPIO_STATUS_OUTTOPAD | rp.IO_BANK0_GPIO_STATUS_OETOPAD
	case Low:
		v = rp.IO_BANK0_GPIO_STATUS_OETOPAD
	}
	return v
}

func (c *Chip) storeIOBank0(off uintptr, v uint32) {
	if off%8 != 4 || off >= rp.NUM_BANK0_GPIOS*8 {
		return
	}
	c.regs[rp.IO_BANK0_BASE+off] = v
	c.updatePads()
}

// pad computes the level of a pin from its function select, the peripheral
// driving it and the overrides.
func (c *Chip) pad(pin int) Level {
	if c.heldInReset(rp.IO_BANK0_BASE) {
		return HiZ
	}
	ctrl := c.regs[rp.IO_BANK0_BASE+gpioCtrl(pin)]
	var out, oe bool
	if ctrl&rp.IO_BANK0_GPIO_CTRL_FUNCSEL_Msk == rp.IO_BANK0_GPIO_CTRL_FUNCSEL_PIO0 {
		out = c.pio.pinsOut&(1<<pin) != 0
		oe = c.pio.pinDirs&(1<<pin) != 0
	}
	switch (ctrl & rp.IO_BANK0_GPIO_CTRL_OUTOVER_Msk) >> rp.IO_BANK0_GPIO_CTRL_OUTOVER_Pos {
	case rp.IO_BANK0_GPIO_CTRL_OUTOVER_INVERT:
		out = !out
	case rp.IO_BANK0_GPIO_CTRL_OUTOVER_LOW:
		out = false
	case rp.IO_BANK0_GPIO_CTRL_OUTOVER_HIGH:
		out = true
	}
	switch (ctrl & rp.IO_BANK0_GPIO_CTRL_OEOVER_Msk) >> rp.IO_BANK0_GPIO_CTRL_OEOVER_Pos {
	case rp.IO_BANK0_GPIO_CTRL_OEOVER_INVERT:
		oe = !oe
	case rp.IO_BANK0_GPIO_CTRL_OEOVER_DISABLE:
		oe = false
	case rp.IO_BANK0_GPIO_CTRL_OEOVER_ENABLE:
		oe = true
	}
	switch {
	case !oe:
		return HiZ
	case out:
		return High
	default:
		return Low
	}
}

// updatePads records an edge for every pad whose level changed.
func (c *Chip) updatePads() {
	for pin := range c.pads {
		l := c.pad(pin)
		if l != c.pads[pin] {
			c.pads[pin] = l
			c.edges = append(c.edges, Edge{Pin: pin, At: c.pio.now, Level: l})
		}
	}
}

// Pad returns the current level of pin.
func (c *Chip) Pad(pin int) Level {
	return c.pads[pin]
}

// Edges returns the recorded level changes of pin.
func (c *Chip) Edges(pin int) []Edge {
	var edges []Edge
	for _, e := range c.edges {
		if e.Pin == pin {
			edges = append(edges, e)
		}
	}
	return edges
}
