// Package preset holds the clock and blink configurations the firmware can be
// built with.
package preset

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/machine/pio"
	"github.com/kahara/pioblink/src/mmio"
)

var ErrUnknownPreset = errors.New("preset: unknown preset")

// Preset is one complete start-up configuration: the clock tree, the pin to
// drive and the program that drives it.
type Preset struct {
	Name     string
	XOSCFreq uint32
	PLLSys   machine.PLLConfig
	PLLUSB   machine.PLLConfig

	Pin     machine.Pin
	ClkInt  uint16
	ClkFrac uint8
	Program pio.Program
}

var usb48 = machine.PLLConfig{RefDiv: 1, VCOFreq: 480 * machine.MHz, PostDiv1: 5, PostDiv2: 2}

var builtin = map[string]Preset{
	"blink-888": {
		Name:     "blink-888",
		XOSCFreq: 12 * machine.MHz,
		PLLSys:   machine.PLLConfig{RefDiv: 1, VCOFreq: 888 * machine.MHz, PostDiv1: 3, PostDiv2: 1},
		PLLUSB:   usb48,
		Pin:      machine.LED,
		ClkInt:   65535,
		Program: pio.NewProgram("blink",
			pio.Set{Dest: pio.SetPins, Data: 1, Delay: pio.MaxDelay},
			pio.Set{Dest: pio.SetPins, Data: 0, Delay: pio.MaxDelay},
		),
	},
	"blink-1500": {
		Name:     "blink-1500",
		XOSCFreq: 12 * machine.MHz,
		PLLSys:   machine.PLLConfig{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 6, PostDiv2: 2},
		PLLUSB:   usb48,
		Pin:      machine.LED,
		ClkInt:   65535,
		Program: pio.NewProgram("blink4",
			pio.Set{Dest: pio.SetPins, Data: 1},
			pio.Nop(),
			pio.Set{Dest: pio.SetPins, Data: 0},
			pio.Nop(),
		),
	},
}

// Default is the preset the firmware starts when none is chosen.
const Default = "blink-1500"

// Names returns the built-in preset names in order.
func Names() []string {
	names := maps.Keys(builtin)
	slices.Sort(names)
	return names
}

// Lookup returns the built-in preset called name.
func Lookup(name string) (Preset, error) {
	p, ok := builtin[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w %q", ErrUnknownPreset, name)
	}
	// Code is shared with the table.
	p.Program.Code = slices.Clone(p.Program.Code)
	return p, nil
}

// Validate checks everything InitClocks and the loader rely on but do not
// check themselves.
func (p Preset) Validate() error {
	if p.XOSCFreq < 1*machine.MHz || p.XOSCFreq > 15*machine.MHz {
		return fmt.Errorf("preset %s: crystal %d Hz outside 1-15 MHz", p.Name, p.XOSCFreq)
	}
	if err := p.PLLSys.Validate(p.XOSCFreq); err != nil {
		return fmt.Errorf("preset %s: pll_sys: %w", p.Name, err)
	}
	if err := p.PLLUSB.Validate(p.XOSCFreq); err != nil {
		return fmt.Errorf("preset %s: pll_usb: %w", p.Name, err)
	}
	if int(p.Pin) >= 30 {
		return fmt.Errorf("preset %s: pin %d out of range", p.Name, p.Pin)
	}
	if err := p.Program.Validate(); err != nil {
		return fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return nil
}

// MachineConfig returns the clock configuration of p.
func (p Preset) MachineConfig(poll mmio.Poller, log *diag.Logger) machine.Config {
	return machine.Config{
		XOSCFreq: p.XOSCFreq,
		PLLSys:   p.PLLSys,
		PLLUSB:   p.PLLUSB,
		Poll:     poll,
		Log:      log,
	}
}

// SysFreq returns the clk_sys frequency p runs at.
func (p Preset) SysFreq() uint32 {
	return p.PLLSys.OutputFreq(p.XOSCFreq)
}

// Timing is the expected output of a preset.
type Timing struct {
	LoopCycles uint32        // state machine cycles per program loop
	SysCycles  float64       // system clock cycles per program loop
	Period     time.Duration // wall time per program loop
}

// Timing computes the blink period of p. It fails for programs whose loop
// length depends on run time state.
func (p Preset) Timing() (Timing, error) {
	loop, err := p.Program.LoopCycles()
	if err != nil {
		return Timing{}, fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return Timing{
		LoopCycles: loop,
		SysCycles:  float64(pio.LoopSysCycles(loop, p.ClkInt, p.ClkFrac)) / 256,
		Period:     pio.LoopPeriod(loop, p.ClkInt, p.ClkFrac, p.SysFreq()),
	}, nil
}
