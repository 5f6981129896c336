package machine

import (
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
)

// Pin is a bank 0 GPIO number.
type Pin uint8

// NoPin explicitly indicates "not a pin".
const NoPin = Pin(0xff)

// LED is the on-board LED of the Raspberry Pi Pico.
const LED Pin = 25

type pinFunc uint8

// PinMode sets the direction and pull mode of the pin. Only the modes that
// hand a pin to a peripheral are used here.
type PinMode uint8

const (
	PinNull PinMode = iota
	PinSIO
	PinPIO0
	PinPIO1
)

// GPIO is the user bank of pins.
type GPIO struct {
	hw *rp.IO_BANK0_Type
}

// NewGPIO returns the pin bank behind hw.
func NewGPIO(hw *rp.IO_BANK0_Type) *GPIO {
	return &GPIO{hw: hw}
}

// Configure hands pin p to the function selected by mode.
//
// For the PIO modes the output enable is forced on, since the state machine
// drives the pin without setting a direction, and the output level is taken
// from the peripheral unchanged.
func (g *GPIO) Configure(p Pin, mode PinMode) error {
	if int(p) >= len(g.hw.GPIO) {
		return fmt.Errorf("machine: pin %d out of range", p)
	}
	ctrl := g.hw.GPIO[p].CTRL
	switch mode {
	case PinNull:
		ctrl.Set(uint32(fnNULL))
	case PinSIO:
		ctrl.Set(uint32(fnSIO))
	case PinPIO0, PinPIO1:
		fn := fnPIO0
		if mode == PinPIO1 {
			fn = fnPIO1
		}
		ctrl.Set(uint32(fn)<<rp.IO_BANK0_GPIO_CTRL_FUNCSEL_Pos |
			rp.IO_BANK0_GPIO_CTRL_OEOVER_ENABLE<<rp.IO_BANK0_GPIO_CTRL_OEOVER_Pos |
			rp.IO_BANK0_GPIO_CTRL_OUTOVER_NORMAL<<rp.IO_BANK0_GPIO_CTRL_OUTOVER_Pos)
	default:
		return fmt.Errorf("machine: pin %d: unsupported mode %d", p, mode)
	}
	return nil
}

// Function returns the FUNCSEL value currently applied to p. Pins past the
// bank, NoPin included, report the null function.
func (g *GPIO) Function(p Pin) uint32 {
	if int(p) >= len(g.hw.GPIO) {
		return uint32(fnNULL)
	}
	return g.hw.GPIO[p].CTRL.Get() & rp.IO_BANK0_GPIO_CTRL_FUNCSEL_Msk
}
