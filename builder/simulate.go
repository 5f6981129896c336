// Package builder turns a preset into host-side artifacts: a simulated run,
// an Intel HEX image of the loaded instruction memory, an HTML report and an
// ar bundle of all of them.
package builder

import (
	"errors"
	"fmt"

	"github.com/kahara/pioblink/src/boot"
	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/mmio"
	"github.com/kahara/pioblink/src/preset"
	"github.com/kahara/pioblink/src/sim"
)

// pollLimit bounds every status wait of a simulated bring-up. The model
// settles within a few dozen accesses.
const pollLimit = 1 << 16

// periods is how many blink periods Simulate runs when no cycle count is
// given.
const periods = 5

// defaultCycles is run for programs without a fixed period.
const defaultCycles = 1 << 24

// Simulation is the outcome of booting a preset on the simulator.
type Simulation struct {
	Preset preset.Preset
	Clocks machine.ClockState
	Offset uint8
	Memory [rp.PIO_INSTR_MEM_SIZE]uint16
	Cycles uint64

	// Timing is nil for programs whose period depends on run time state.
	Timing *preset.Timing
	// Waveform is nil when the pin did not complete two periods.
	Waveform *sim.Waveform
	Faults   []sim.Fault
}

// Simulate boots ps on a fresh simulated chip and runs the state machine for
// cycles system clock cycles, or for a few blink periods when cycles is 0.
func Simulate(ps preset.Preset, cycles uint64, log *diag.Logger) (*Simulation, error) {
	s := &Simulation{Preset: ps}
	if tm, err := ps.Timing(); err == nil {
		s.Timing = &tm
	}
	if cycles == 0 {
		cycles = defaultCycles
		if s.Timing != nil {
			cycles = uint64(s.Timing.SysCycles*periods) + 1
		}
	}
	s.Cycles = cycles

	chip := sim.New(sim.Options{XOSCFreq: ps.XOSCFreq})
	res, err := boot.Run(rp.Steal(chip), ps, mmio.Poller{Limit: pollLimit}, log)
	s.Faults = chip.Faults()
	if err != nil {
		return s, fmt.Errorf("simulate %s: %w", ps.Name, err)
	}
	s.Clocks = res.Clocks
	s.Offset = res.Offset
	s.Memory = chip.InstructionMemory()

	chip.Run(cycles)
	w, err := chip.Waveform(int(ps.Pin))
	switch {
	case err == nil:
		s.Waveform = &w
	case !errors.Is(err, sim.ErrNoWaveform):
		return s, err
	}
	s.Faults = chip.Faults()
	return s, nil
}

// Code returns the loaded program words as they sit in instruction memory,
// with jump targets already patched.
func (s *Simulation) Code() []uint16 {
	return s.Memory[s.Offset : int(s.Offset)+len(s.Preset.Program.Code)]
}
