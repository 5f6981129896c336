// Package boot runs the whole start-up of the blink firmware: clock bring-up
// followed by loading and starting the PIO program of a preset.
package boot

import (
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/machine/pio"
	"github.com/kahara/pioblink/src/mmio"
	"github.com/kahara/pioblink/src/preset"
)

// StateMachine is the state machine of PIO0 the program runs on.
const StateMachine = 0

// Result describes what Run left running.
type Result struct {
	Clocks machine.ClockState
	Offset uint8
	SM     pio.StateMachine
}

// Run validates ps, brings up its clock tree and starts its program on PIO0.
// After Run returns without error the state machine owns the pin and nothing
// else needs to touch a register.
func Run(p *rp.Peripherals, ps preset.Preset, poll mmio.Poller, log *diag.Logger) (Result, error) {
	var res Result
	if err := ps.Validate(); err != nil {
		return res, err
	}
	log.Logf("preset %s", ps.Name)

	st, err := machine.InitClocks(p, ps.MachineConfig(poll, log))
	if err != nil {
		return res, err
	}
	res.Clocks = st

	block := pio.NewBlock(p.PIO0, 0)
	off, err := block.LoadProgram(ps.Program)
	if err != nil {
		return res, fmt.Errorf("boot: %w", err)
	}
	res.Offset = off
	log.Logf("program %s loaded at %d, %d words", ps.Program.Name, off, len(ps.Program.Code))

	if err := block.BindPin(machine.NewGPIO(p.IO_BANK0), ps.Pin); err != nil {
		return res, fmt.Errorf("boot: %w", err)
	}

	sm := block.StateMachine(StateMachine)
	sm.Configure(ps.Pin, 1, ps.ClkInt, ps.ClkFrac)
	sm.SetWrap(off+ps.Program.WrapTarget, off+ps.Program.Wrap)
	sm.Start(off)
	res.SM = sm
	log.Logf("sm%d started on pin %d, clkdiv %d.%03d", StateMachine, ps.Pin, ps.ClkInt, uint32(ps.ClkFrac)*1000/256)
	return res, nil
}
