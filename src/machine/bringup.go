package machine

import (
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/mmio"
)

// Config describes the clock tree to bring up.
type Config struct {
	XOSCFreq uint32
	PLLSys   PLLConfig
	PLLUSB   PLLConfig

	// Poll bounds every status wait in host builds.
	Poll mmio.Poller
	Log  *diag.Logger
}

// ClockState is what InitClocks left running.
type ClockState struct {
	Ref    uint32
	Sys    uint32
	USB    uint32
	PLLSys uint32
	PLLUSB uint32
}

// InitClocks takes the chip from power-on reset to clk_ref on the crystal,
// clk_sys on PLL_SYS and clk_usb on PLL_USB. It runs once, before anything else touches the clocks.
//
// The sequence never resets the QSPI blocks the program runs from, never
// resets or reprograms a PLL that clocks the core, and never selects a source
// before it reports ready. A status that never comes true hangs; host builds
// with a bounded Poller return the *mmio.HangTimeout wrapped with the stage.
func InitClocks(p *rp.Peripherals, cfg Config) (ClockState, error) {
	var st ClockState
	log := cfg.Log

	resets := NewResets(p.RESETS, cfg.Poll)
	clocks := NewClocks(p.CLOCKS, cfg.Poll)
	xosc := NewXOSC(p.XOSC, cfg.Poll)
	pllSys := NewPLL(p.PLL_SYS, cfg.Poll)
	pllUSB := NewPLL(p.PLL_USB, cfg.Poll)
	watchdog := NewWatchdog(p.WATCHDOG)

	// Reset everything potentially in use, then bring back what is needed.
	resets.Reset(AllBlocks &^ InitDontReset)
	if err := resets.UnresetWait(AllBlocks &^ InitUnreset); err != nil {
		return st, fmt.Errorf("machine: unreset: %w", err)
	}
	log.Logf("resets released %#08x", AllBlocks&^InitUnreset)

	// Start the watchdog tick
	watchdog.StartTick(cfg.XOSCFreq / MHz)

	// Disable resus that may be enabled from previous software
	clocks.DisableResus()

	// Enable the xosc
	if err := xosc.Init(cfg.XOSCFreq); err != nil {
		return st, fmt.Errorf("machine: xosc: %w", err)
	}
	log.Logf("xosc stable at %d Hz", cfg.XOSCFreq)

	// Before we touch PLLs, switch sys and ref cleanly away from their aux sources.
	if err := clocks.ReleaseAux(); err != nil {
		return st, fmt.Errorf("machine: clock switch: %w", err)
	}
	log.Logf("clk_sys and clk_ref off aux sources")

	resets.Reset(rp.RESETS_RESET_PLL_SYS | rp.RESETS_RESET_PLL_USB)
	if err := resets.UnresetWait(rp.RESETS_RESET_PLL_SYS | rp.RESETS_RESET_PLL_USB); err != nil {
		return st, fmt.Errorf("machine: pll unreset: %w", err)
	}

	if err := pllSys.Configure(cfg.XOSCFreq, cfg.PLLSys); err != nil {
		return st, fmt.Errorf("machine: pll_sys: %w", err)
	}
	st.PLLSys = cfg.PLLSys.OutputFreq(cfg.XOSCFreq)
	log.Logf("pll_sys locked, fbdiv %d, %d Hz", cfg.PLLSys.FeedbackDiv(cfg.XOSCFreq), st.PLLSys)

	if err := pllUSB.Configure(cfg.XOSCFreq, cfg.PLLUSB); err != nil {
		return st, fmt.Errorf("machine: pll_usb: %w", err)
	}
	st.PLLUSB = cfg.PLLUSB.OutputFreq(cfg.XOSCFreq)
	log.Logf("pll_usb locked, fbdiv %d, %d Hz", cfg.PLLUSB.FeedbackDiv(cfg.XOSCFreq), st.PLLUSB)

	if err := clocks.RoutePLLs(cfg.XOSCFreq, st.PLLSys, st.PLLUSB); err != nil {
		return st, fmt.Errorf("machine: clock switch: %w", err)
	}
	st.Ref = clocks.Freq(ClkRef)
	st.Sys = clocks.Freq(ClkSys)
	st.USB = clocks.Freq(ClkUSB)
	log.Logf("clk_sys %d Hz", st.Sys)
	log.Logf("clk_usb %d Hz", st.USB)
	return st, nil
}
