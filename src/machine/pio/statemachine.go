package pio

import (
	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine"
)

// StateMachine represents one of the four state machines in a PIO
type StateMachine struct {
	// The pio containing this state machine
	pio *Block

	// index of this state machine
	index uint8
}

// StateMachineIndex returns the index of the state machine within the PIO.
func (sm StateMachine) StateMachineIndex() uint8 { return sm.index }

// HW returns the configuration hardware registers for this state machine.
func (sm StateMachine) HW() *rp.PIO_SM_Type { return &sm.pio.HW.SM[sm.index] }

// PIO returns the PIO that this state machine is part of.
func (sm StateMachine) PIO() *Block { return sm.pio }

// Configure routes SET to count pins from basePin and sets the clock divider
//
//	Frequency = clock freq / (CLKDIV_INT + CLKDIV_FRAC / 256)
//
// An integer part of 0 divides by 65536. Other PINCTRL fields are kept.
func (sm StateMachine) Configure(basePin machine.Pin, count uint8, clkInt uint16, clkFrac uint8) {
	hw := sm.HW()
	hw.PINCTRL.ReplaceBits(uint32(basePin), rp.PIO_SM0_PINCTRL_SET_BASE_Msk>>rp.PIO_SM0_PINCTRL_SET_BASE_Pos,
		rp.PIO_SM0_PINCTRL_SET_BASE_Pos)
	hw.PINCTRL.ReplaceBits(uint32(count), rp.PIO_SM0_PINCTRL_SET_COUNT_Msk>>rp.PIO_SM0_PINCTRL_SET_COUNT_Pos,
		rp.PIO_SM0_PINCTRL_SET_COUNT_Pos)
	sm.SetClkDiv(clkInt, clkFrac)
}

// SetClkDiv sets the clock divider for the state machine from a whole and fractional part.
func (sm StateMachine) SetClkDiv(whole uint16, frac uint8) {
	sm.HW().CLKDIV.Set(uint32(whole)<<rp.PIO_SM0_CLKDIV_INT_Pos | uint32(frac)<<rp.PIO_SM0_CLKDIV_FRAC_Pos)
}

// SetWrap sets the absolute slots the program counter wraps from (top) and
// to (bottom).
func (sm StateMachine) SetWrap(bottom, top uint8) {
	hw := sm.HW()
	hw.EXECCTRL.Set(hw.EXECCTRL.Get()&^uint32(rp.PIO_SM0_EXECCTRL_WRAP_TOP_Msk|rp.PIO_SM0_EXECCTRL_WRAP_BOTTOM_Msk) |
		uint32(bottom&0x1f)<<rp.PIO_SM0_EXECCTRL_WRAP_BOTTOM_Pos |
		uint32(top&0x1f)<<rp.PIO_SM0_EXECCTRL_WRAP_TOP_Pos)
}

// Restart clears internal StateMachine state which may otherwise be difficult to access, e.g. shift counters.
func (sm StateMachine) Restart() {
	sm.pio.HW.CTRL.AtomicSet(1 << (rp.PIO_CTRL_SM_RESTART_Pos + sm.index))
}

// ClkDivRestart forces clock dividers to restart their count and clear fractional accumulators (phase is zeroed).
func (sm StateMachine) ClkDivRestart() {
	sm.pio.HW.CTRL.AtomicSet(1 << (rp.PIO_CTRL_CLKDIV_RESTART_Pos + sm.index))
}

// Exec will immediately execute an instruction on the state machine
func (sm StateMachine) Exec(instr uint16) {
	sm.HW().INSTR.Set(uint32(instr))
}

// SetEnabled controls whether the state machine is running.
func (sm StateMachine) SetEnabled(enabled bool) {
	bit := uint32(1) << (rp.PIO_CTRL_SM_ENABLE_Pos + sm.index)
	if enabled {
		sm.pio.HW.CTRL.AtomicSet(bit)
	} else {
		sm.pio.HW.CTRL.AtomicClear(bit)
	}
}

// IsEnabled returns true if the state machine is running.
func (sm StateMachine) IsEnabled() bool {
	return sm.pio.HW.CTRL.HasBits(1 << (rp.PIO_CTRL_SM_ENABLE_Pos + sm.index))
}

// Start restarts the state machine and its clock divider, forces a jump to
// entry and enables it, in that order. Once enabled the state machine owns
// its pins and runs without further register access.
func (sm StateMachine) Start(entry uint8) {
	sm.Restart()
	sm.ClkDivRestart()
	sm.Exec(EncodeJmp(entry))
	sm.SetEnabled(true)
}
