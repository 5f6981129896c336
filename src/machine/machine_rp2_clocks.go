package machine

import (
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/mmio"
)

// Clocks drives the clock generators.
type Clocks struct {
	hw   *rp.CLOCKS_Type
	poll mmio.Poller

	configuredFreq [NumClocks]uint32
}

// NewClocks returns the clock generators behind hw. Every clock is assumed to
// run at the ring oscillator frequency until configured.
func NewClocks(hw *rp.CLOCKS_Type, poll mmio.Poller) *Clocks {
	clks := &Clocks{hw: hw, poll: poll}
	clks.configuredFreq[ClkRef] = ROSCFreq
	clks.configuredFreq[ClkSys] = ROSCFreq
	return clks
}

type clock struct {
	*rp.CLK_Type
	cix  clockIndex
	clks *Clocks
}

// clock returns the clock identified by cix.
func (clks *Clocks) clock(cix clockIndex) clock {
	return clock{
		&clks.hw.CLK[cix],
		cix,
		clks,
	}
}

// Freq returns the last frequency configured for cix.
func (clks *Clocks) Freq(cix clockIndex) uint32 {
	return clks.configuredFreq[cix]
}

// hasGlitchlessMux returns true if clock contains a glitchless multiplexer.
//
// Clock muxing consists of two components:
//
// A glitchless mux, which can be switched freely, but whose inputs must be
// free-running.
//
// An auxiliary (glitchy) mux, whose output glitches when switched, but has
// no constraints on its inputs.
//
// Not all clocks have both types of mux.
func (clk *clock) hasGlitchlessMux() bool {
	return clk.cix == ClkSys || clk.cix == ClkRef
}

// selectSource switches the glitchless mux to src and waits until SELECTED
// reports it. SELECTED is one-hot, so source n reads back as 1<<n.
func (clk *clock) selectSource(src uint32) error {
	clk.CTRL.ReplaceBits(src, rp.CLOCKS_CLK_REF_CTRL_SRC_Msk, rp.CLOCKS_CLK_REF_CTRL_SRC_Pos)
	return clk.clks.poll.UntilEqual(clk.SELECTED, 1<<src)
}

// configure configures the clock by selecting the main clock source src
// and the auxiliary clock source auxsrc
// and finally setting the clock frequency to freq
// given the input clock source frequency srcFreq.
func (clk *clock) configure(src, auxsrc, srcFreq, freq uint32) error {
	if freq > srcFreq {
		return fmt.Errorf("machine: clock %d: frequency %d above source frequency %d", clk.cix, freq, srcFreq)
	}

	div := CalcClockDiv(srcFreq, freq)

	// If increasing divisor, set divisor before source. Otherwise set source
	// before divisor. This avoids a momentary overspeed when e.g. switching
	// to a faster source and increasing divisor to compensate.
	if div > clk.DIV.Get() {
		clk.DIV.Set(div)
	}

	// If switching a glitchless slice (ref or sys) to an aux source, switch
	// away from aux *first* to avoid passing glitches when changing aux mux.
	// Assume (!!!) glitchless source 0 is no faster than the aux source.
	if clk.hasGlitchlessMux() && src == rp.CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX {
		if err := clk.selectSource(0); err != nil {
			return err
		}
	} else if !clk.hasGlitchlessMux() {
		// If no glitchless mux, cleanly stop the clock to avoid glitches
		// propagating when changing aux mux.
		clk.CTRL.ClearBits(rp.CLOCKS_CLK_GPOUT0_CTRL_ENABLE_Msk)
		clk.clks.settle(clk.cix)
	}

	// Set aux mux first, and then glitchless mux if this clock has one.
	clk.CTRL.ReplaceBits(auxsrc, rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Msk>>rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Pos,
		rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Pos)
	if clk.hasGlitchlessMux() {
		if err := clk.selectSource(src); err != nil {
			return err
		}
	} else {
		// All clocks without a glitchless mux have ENABLE in the same
		// position.
		clk.CTRL.SetBits(rp.CLOCKS_CLK_GPOUT0_CTRL_ENABLE)
	}

	// Now that the source is configured, we can trust that the user-supplied
	// divisor is a safe value.
	clk.DIV.Set(div)

	clk.clks.configuredFreq[clk.cix] = freq
	return nil
}

// settle waits for a cleared ENABLE to propagate: three cycles of clock cix
// while it still ran at its configured frequency. XOSC_COUNT and the timer
// may not be running yet, so the wait counts clk_sys cycles, with every bus
// read taking at least one.
func (clks *Clocks) settle(cix clockIndex) {
	if clks.configuredFreq[cix] == 0 {
		return
	}
	delayCyc := clks.configuredFreq[ClkSys]/clks.configuredFreq[cix] + 1
	for delayCyc != 0 {
		delayCyc--
		for i := 0; i < 3; i++ {
			clks.hw.CLK[cix].CTRL.Get()
		}
	}
}

// DisableResus disarms the clk_sys resuscitation logic that may be enabled
// from previous software.
func (clks *Clocks) DisableResus() {
	clks.hw.CLK_SYS_RESUS_CTRL.Set(0)
}

// ReleaseAux switches clk_sys to clk_ref and then clk_ref to the ring
// oscillator, so neither is fed from an aux source while the PLLs are
// reprogrammed.
func (clks *Clocks) ReleaseAux() error {
	sys := clks.clock(ClkSys)
	if err := sys.selectSource(rp.CLOCKS_CLK_SYS_CTRL_SRC_CLK_REF); err != nil {
		return fmt.Errorf("clk_sys to clk_ref: %w", err)
	}
	clks.configuredFreq[ClkSys] = clks.configuredFreq[ClkRef]

	ref := clks.clock(ClkRef)
	if err := ref.selectSource(rp.CLOCKS_CLK_REF_CTRL_SRC_ROSC_CLKSRC_PH); err != nil {
		return fmt.Errorf("clk_ref to rosc: %w", err)
	}
	clks.configuredFreq[ClkRef] = ROSCFreq
	clks.configuredFreq[ClkSys] = ROSCFreq
	return nil
}

// RoutePLLs puts clk_ref on the crystal, clk_sys on PLL_SYS and clk_usb on
// PLL_USB, all undivided. Every source must already be running.
func (clks *Clocks) RoutePLLs(xoscFreq, sysFreq, usbFreq uint32) error {
	// ClkRef = xosc / 1
	clkref := clks.clock(ClkRef)
	if err := clkref.configure(rp.CLOCKS_CLK_REF_CTRL_SRC_XOSC_CLKSRC,
		0, // No aux mux
		xoscFreq,
		xoscFreq); err != nil {
		return fmt.Errorf("clk_ref to xosc: %w", err)
	}

	// ClkSys = pllSys / 1
	clksys := clks.clock(ClkSys)
	if err := clksys.configure(rp.CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX,
		rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_CLKSRC_PLL_SYS,
		sysFreq,
		sysFreq); err != nil {
		return fmt.Errorf("clk_sys to pll_sys: %w", err)
	}

	// ClkUSB = pllUSB / 1
	clkusb := clks.clock(ClkUSB)
	if err := clkusb.configure(0, // No GLMUX
		rp.CLOCKS_CLK_USB_CTRL_AUXSRC_CLKSRC_PLL_USB,
		usbFreq,
		usbFreq); err != nil {
		return fmt.Errorf("clk_usb to pll_usb: %w", err)
	}
	return nil
}
