package machine

import (
	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/mmio"
)

// XOSC is the crystal oscillator.
type XOSC struct {
	hw   *rp.XOSC_Type
	poll mmio.Poller
}

// NewXOSC returns the crystal oscillator behind hw.
func NewXOSC(hw *rp.XOSC_Type, poll mmio.Poller) *XOSC {
	return &XOSC{hw: hw, poll: poll}
}

// StartupDelay returns the STARTUP.DELAY count for a crystal of freq Hz. The
// field counts in units of 256 oscillator cycles; the result covers about 1ms.
func StartupDelay(freq uint32) uint32 {
	return ((freq / 1000) + 128) / 256
}

// Init starts the oscillator for a 1-15 MHz crystal of freq Hz and waits
// until it reports stable. Nothing may use the XOSC output before Init returns.
func (x *XOSC) Init(freq uint32) error {
	x.hw.CTRL.Set(rp.XOSC_CTRL_FREQ_RANGE_1_15MHZ)
	x.hw.STARTUP.Set(StartupDelay(freq) & rp.XOSC_STARTUP_DELAY_Msk)
	x.hw.CTRL.Set(rp.XOSC_CTRL_FREQ_RANGE_1_15MHZ |
		rp.XOSC_CTRL_ENABLE_ENABLE<<rp.XOSC_CTRL_ENABLE_Pos)
	return x.poll.UntilSet(x.hw.STATUS, rp.XOSC_STATUS_STABLE)
}

// Stable reports whether the oscillator output is usable.
func (x *XOSC) Stable() bool {
	return x.hw.STATUS.HasBits(rp.XOSC_STATUS_STABLE)
}
