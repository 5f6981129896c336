package machine

import "github.com/kahara/pioblink/src/device/rp"

// Watchdog only runs the tick generator here; the watchdog timer itself is
// never armed.
type Watchdog struct {
	hw *rp.WATCHDOG_Type
}

// NewWatchdog returns the watchdog behind hw.
func NewWatchdog(hw *rp.WATCHDOG_Type) *Watchdog {
	return &Watchdog{hw: hw}
}

// StartTick starts the watchdog tick.
// cycles needs to be a divider that when applied to clk_ref,
// produces a 1MHz clock. So if the xosc frequency is 12MHz,
// this will need to be 12.
func (wd *Watchdog) StartTick(cycles uint32) {
	wd.hw.TICK.Set(cycles&rp.WATCHDOG_TICK_CYCLES_Msk | rp.WATCHDOG_TICK_ENABLE)
}
