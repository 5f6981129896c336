package sim

import (
	"math/bits"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine"
)

const (
	resetsRESET      = 0x0
	resetsRESET_DONE = 0x8
)

// resettable are the modelled blocks behind a RESETS bit.
var resettable = map[uint32]uintptr{
	rp.RESETS_RESET_IO_BANK0: rp.IO_BANK0_BASE,
	rp.RESETS_RESET_PIO0:     rp.PIO0_BASE,
	rp.RESETS_RESET_PLL_SYS:  rp.PLL_SYS_BASE,
	rp.RESETS_RESET_PLL_USB:  rp.PLL_USB_BASE,
}

func resetBit(base uintptr) uint32 {
	for bit, b := range resettable {
		if b == base {
			return bit
		}
	}
	return 0
}

func (c *Chip) heldInReset(block uintptr) bool {
	bit := resetBit(block)
	return bit != 0 && c.regs[rp.RESETS_BASE+resetsRESET]&bit != 0
}

func (c *Chip) loadResets(off uintptr) uint32 {
	if off != resetsRESET_DONE {
		return c.regs[rp.RESETS_BASE+off]
	}
	reset := c.regs[rp.RESETS_BASE+resetsRESET]
	var done uint32
	for i := range c.resetDoneAt {
		bit := uint32(1) << i
		if reset&bit == 0 && c.tick >= c.resetDoneAt[i] {
			done |= bit
		}
	}
	return done
}

func (c *Chip) storeResets(off uintptr, old, v uint32) {
	if off == resetsRESET_DONE {
		return
	}
	if off != resetsRESET {
		c.regs[rp.RESETS_BASE+off] = v
		return
	}
	v &= rp.RESETS_RESET_Msk
	asserted, released := v&^old, old&^v

	if qspi := asserted & (rp.RESETS_RESET_IO_QSPI | rp.RESETS_RESET_PADS_QSPI); qspi != 0 {
		c.fault(true, "reset %#x cuts off the flash the core executes from", qspi)
		return
	}
	for i, bit := range []uint32{rp.RESETS_RESET_PLL_SYS, rp.RESETS_RESET_PLL_USB} {
		if asserted&bit != 0 && c.pllInUse(i) {
			c.fault(true, "reset of %s while it clocks the core", pllName(i))
			return
		}
	}

	c.regs[rp.RESETS_BASE+resetsRESET] = v
	for bit, base := range resettable {
		if asserted&bit != 0 {
			c.resetBlock(base)
		}
	}
	for released != 0 {
		i := bits.TrailingZeros32(released)
		c.resetDoneAt[i] = c.tick + uint64(c.opts.ResetLatency)
		released &^= 1 << i
	}
	c.updatePads()
}

// resetBlock returns every register of a block to its reset value.
func (c *Chip) resetBlock(base uintptr) {
	for addr := range c.regs {
		if addr&^blockMask == base {
			delete(c.regs, addr)
		}
	}
	switch base {
	case rp.IO_BANK0_BASE:
		for pin := 0; pin < rp.NUM_BANK0_GPIOS; pin++ {
			c.regs[base+gpioCtrl(pin)] = rp.IO_BANK0_GPIO_CTRL_FUNCSEL_NULL
		}
	case rp.PIO0_BASE:
		c.resetPIO()
	case rp.PLL_SYS_BASE:
		c.resetPLL(0)
	case rp.PLL_USB_BASE:
		c.resetPLL(1)
	}
}

func (c *Chip) warmBoot() {
	c.regs[rp.RESETS_BASE+resetsRESET] = machine.InitUnreset

	c.xosc.enabled = true
	c.regs[rp.XOSC_BASE+xoscCTRL] = rp.XOSC_CTRL_FREQ_RANGE_1_15MHZ | rp.XOSC_CTRL_ENABLE_ENABLE<<rp.XOSC_CTRL_ENABLE_Pos

	xosc := c.opts.XOSCFreq
	for i, cfg := range []machine.PLLConfig{
		{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 6, PostDiv2: 2},
		{RefDiv: 1, VCOFreq: 480 * machine.MHz, PostDiv1: 5, PostDiv2: 2},
	} {
		base := pllBase(i)
		c.regs[base+pllCS] = cfg.RefDiv
		c.regs[base+pllFBDIV] = cfg.FeedbackDiv(xosc)
		c.regs[base+pllPWR] = rp.PLL_PWR_DSMPD
		c.regs[base+pllPRIM] = cfg.PostDiv1<<rp.PLL_PRIM_POSTDIV1_Pos | cfg.PostDiv2<<rp.PLL_PRIM_POSTDIV2_Pos
	}

	c.regs[clkCtrl(rp.CLK_REF)] = rp.CLOCKS_CLK_REF_CTRL_SRC_XOSC_CLKSRC
	c.clk[muxRef].selected = 1 << rp.CLOCKS_CLK_REF_CTRL_SRC_XOSC_CLKSRC
	c.regs[clkCtrl(rp.CLK_SYS)] = rp.CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX
	c.clk[muxSys].selected = 1 << rp.CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX
	c.regs[clkCtrl(rp.CLK_USB)] = rp.CLOCKS_CLK_USB_CTRL_AUXSRC_CLKSRC_PLL_USB<<rp.CLOCKS_CLK_USB_CTRL_AUXSRC_Pos |
		rp.CLOCKS_CLK_GPOUT0_CTRL_ENABLE
}
