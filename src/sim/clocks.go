package sim

import (
	"fmt"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine"
)

const (
	xoscCTRL    = 0x00
	xoscSTATUS  = 0x04
	xoscSTARTUP = 0x0c

	pllCS    = 0x0
	pllPWR   = 0x4
	pllFBDIV = 0x8
	pllPRIM  = 0xc

	watchdogTICK = 0x2c

	clkStride      = 0xc
	clkDivOff      = 0x4
	clkSelectedOff = 0x8
)

// Glitchless muxes.
const (
	muxRef = iota
	muxSys
)

type glitchlessMux struct {
	selected uint32 // one-hot
	pending  uint32 // one-hot, zero when no switch is in flight
	switchAt uint64
}

type xoscState struct {
	enabled  bool
	stableAt uint64
	badWrite bool
}

type pllState struct {
	lockAt uint64
}

func clkCtrl(cix int) uintptr {
	return rp.CLOCKS_BASE + uintptr(cix)*clkStride
}

func clkDiv(cix int) uintptr {
	return clkCtrl(cix) + clkDivOff
}

func pllBase(i int) uintptr {
	if i == 0 {
		return rp.PLL_SYS_BASE
	}
	return rp.PLL_USB_BASE
}

func pllName(i int) string {
	if i == 0 {
		return "PLL_SYS"
	}
	return "PLL_USB"
}

func (c *Chip) resetClocks() {
	for cix := 0; cix < rp.NUM_CLOCKS; cix++ {
		c.regs[clkCtrl(cix)] = 0
		c.regs[clkDiv(cix)] = 1 << rp.CLOCKS_CLK_DIV_INT_Pos
	}
	c.clk[muxRef].selected = 1
	c.clk[muxSys].selected = 1
}

// settle completes a mux switch whose latency has expired.
func (c *Chip) settle(mux int) uint32 {
	m := &c.clk[mux]
	if m.pending != 0 && c.tick >= m.switchAt {
		m.selected, m.pending = m.pending, 0
	}
	return m.selected
}

func (c *Chip) loadClocks(off uintptr) uint32 {
	switch off {
	case uintptr(rp.CLK_REF)*clkStride + clkSelectedOff:
		return c.settle(muxRef)
	case uintptr(rp.CLK_SYS)*clkStride + clkSelectedOff:
		return c.settle(muxSys)
	}
	if off < rp.NUM_CLOCKS*clkStride && off%clkStride == clkSelectedOff {
		// Clocks without a glitchless mux always read 1.
		return 1
	}
	return c.regs[rp.CLOCKS_BASE+off]
}

func (c *Chip) storeClocks(off uintptr, old, v uint32) {
	switch off {
	case uintptr(rp.CLK_REF) * clkStride:
		c.switchMux(muxRef, old, v)
	case uintptr(rp.CLK_SYS) * clkStride:
		c.switchMux(muxSys, old, v)
	case uintptr(rp.CLK_USB) * clkStride:
		c.switchUSB(old, v)
	}
	if !c.halted {
		c.regs[rp.CLOCKS_BASE+off] = v
	}
}

func (c *Chip) switchMux(mux int, old, v uint32) {
	srcMask, auxMask, auxPos := uint32(rp.CLOCKS_CLK_REF_CTRL_SRC_Msk), uint32(rp.CLOCKS_CLK_REF_CTRL_AUXSRC_Msk), rp.CLOCKS_CLK_REF_CTRL_AUXSRC_Pos
	name := "clk_ref"
	if mux == muxSys {
		srcMask, auxMask, auxPos = rp.CLOCKS_CLK_SYS_CTRL_SRC_Msk, rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Msk, rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Pos
		name = "clk_sys"
	}

	current := c.settle(mux)
	if c.clk[mux].pending != 0 {
		current = c.clk[mux].pending
	}
	src := v & srcMask
	aux := (v & auxMask) >> auxPos

	if (old^v)&auxMask != 0 && current == 1<<auxSrcCode(mux) {
		c.fault(false, "%s aux mux changed while %s runs from it", name, name)
	}
	if 1<<src == current {
		return
	}
	if err := c.sourceReady(mux, src, aux); err != nil {
		c.fault(true, "%s switched to %v", name, err)
		return
	}
	c.clk[mux].pending = 1 << src
	c.clk[mux].switchAt = c.tick + uint64(c.opts.SelectLatency)
}

// switchUSB checks a write to CLK_USB_CTRL. The aux mux of a clock without a
// glitchless mux may only change while the clock is stopped.
func (c *Chip) switchUSB(old, v uint32) {
	const enable = rp.CLOCKS_CLK_GPOUT0_CTRL_ENABLE
	if old&enable != 0 && v&enable != 0 && (old^v)&rp.CLOCKS_CLK_USB_CTRL_AUXSRC_Msk != 0 {
		c.fault(false, "clk_usb aux mux changed while clk_usb is enabled")
	}
	if old&enable == 0 && v&enable != 0 {
		if s := usbSource(v); c.sourceFreq(s) == 0 {
			c.fault(false, "clk_usb enabled on %v, which is not running", s)
		}
	}
}

func usbSource(ctrl uint32) source {
	switch (ctrl & rp.CLOCKS_CLK_USB_CTRL_AUXSRC_Msk) >> rp.CLOCKS_CLK_USB_CTRL_AUXSRC_Pos {
	case rp.CLOCKS_CLK_USB_CTRL_AUXSRC_CLKSRC_PLL_USB:
		return srcPLLUSB
	case rp.CLOCKS_CLK_USB_CTRL_AUXSRC_CLKSRC_PLL_SYS:
		return srcPLLSys
	case rp.CLOCKS_CLK_USB_CTRL_AUXSRC_ROSC_CLKSRC_PH:
		return srcROSC
	case rp.CLOCKS_CLK_USB_CTRL_AUXSRC_XOSC_CLKSRC:
		return srcXOSC
	}
	return srcNone
}

func auxSrcCode(mux int) uint32 {
	if mux == muxSys {
		return rp.CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX
	}
	return rp.CLOCKS_CLK_REF_CTRL_SRC_CLKSRC_CLK_REF_AUX
}

// source identifies a clock source for readiness and frequency.
type source int

const (
	srcNone source = iota
	srcROSC
	srcXOSC
	srcPLLSys
	srcPLLUSB
	srcRef
)

func (s source) String() string {
	return [...]string{"none", "rosc", "xosc", "pll_sys", "pll_usb", "clk_ref"}[s]
}

func (c *Chip) decodeSource(mux int, src, aux uint32) source {
	if mux == muxRef {
		switch src {
		case rp.CLOCKS_CLK_REF_CTRL_SRC_ROSC_CLKSRC_PH:
			return srcROSC
		case rp.CLOCKS_CLK_REF_CTRL_SRC_XOSC_CLKSRC:
			return srcXOSC
		case rp.CLOCKS_CLK_REF_CTRL_SRC_CLKSRC_CLK_REF_AUX:
			if aux == rp.CLOCKS_CLK_REF_CTRL_AUXSRC_CLKSRC_PLL_USB {
				return srcPLLUSB
			}
		}
		return srcNone
	}
	if src == rp.CLOCKS_CLK_SYS_CTRL_SRC_CLK_REF {
		return srcRef
	}
	switch aux {
	case rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_CLKSRC_PLL_SYS:
		return srcPLLSys
	case rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_CLKSRC_PLL_USB:
		return srcPLLUSB
	case rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_ROSC_CLKSRC:
		return srcROSC
	case rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_XOSC_CLKSRC:
		return srcXOSC
	}
	return srcNone
}

func (c *Chip) sourceReady(mux int, src, aux uint32) error {
	s := c.decodeSource(mux, src, aux)
	switch s {
	case srcROSC, srcRef:
		return nil
	case srcXOSC:
		if !c.xoscStable() {
			return fmt.Errorf("%v before it is stable", s)
		}
		return nil
	case srcPLLSys, srcPLLUSB:
		i := int(s - srcPLLSys)
		if c.pllOutput(i) == 0 {
			return fmt.Errorf("%v before it is locked with post dividers running", s)
		}
		return nil
	}
	return fmt.Errorf("reserved source %d/%d", src, aux)
}

// muxSource returns what a glitchless clock runs from. A switch still in
// flight counts as already made when pending is true.
func (c *Chip) muxSource(mux int, pending bool) source {
	sel := c.settle(mux)
	if pending && c.clk[mux].pending != 0 {
		sel = c.clk[mux].pending
	}
	ctrl := c.regs[clkCtrl(rp.CLK_REF+mux)]
	var auxMask, auxPos uint32 = rp.CLOCKS_CLK_REF_CTRL_AUXSRC_Msk, rp.CLOCKS_CLK_REF_CTRL_AUXSRC_Pos
	if mux == muxSys {
		auxMask, auxPos = rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Msk, rp.CLOCKS_CLK_SYS_CTRL_AUXSRC_Pos
	}
	src := uint32(0)
	for sel > 1 {
		sel >>= 1
		src++
	}
	return c.decodeSource(mux, src, (ctrl&auxMask)>>auxPos)
}

// feeds reports whether s drives clk_sys, directly or through clk_ref.
func (c *Chip) feeds(s source) bool {
	for _, pending := range []bool{false, true} {
		sys := c.muxSource(muxSys, pending)
		if sys == srcRef {
			sys = c.muxSource(muxRef, pending)
		}
		if sys == s || c.muxSource(muxRef, pending) == s {
			return true
		}
	}
	return false
}

func (c *Chip) pllInUse(i int) bool {
	return c.feeds(srcPLLSys + source(i))
}

func (c *Chip) sourceFreq(s source) uint32 {
	switch s {
	case srcROSC:
		return machine.ROSCFreq
	case srcXOSC:
		if c.xoscStable() {
			return c.opts.XOSCFreq
		}
	case srcPLLSys:
		return c.pllOutput(0)
	case srcPLLUSB:
		return c.pllOutput(1)
	case srcRef:
		return c.RefFreq()
	}
	return 0
}

func (c *Chip) divided(freq uint32, cix int) uint32 {
	div := c.regs[clkDiv(cix)]
	if div == 0 {
		return 0
	}
	return uint32(uint64(freq) << rp.CLOCKS_CLK_DIV_INT_Pos / uint64(div))
}

// RefFreq returns the clk_ref frequency in Hz.
func (c *Chip) RefFreq() uint32 {
	return c.divided(c.sourceFreq(c.muxSource(muxRef, false)), rp.CLK_REF)
}

// SysFreq returns the clk_sys frequency in Hz.
func (c *Chip) SysFreq() uint32 {
	return c.divided(c.sourceFreq(c.muxSource(muxSys, false)), rp.CLK_SYS)
}

// USBFreq returns the clk_usb frequency in Hz, or zero while it is stopped.
func (c *Chip) USBFreq() uint32 {
	ctrl := c.regs[clkCtrl(rp.CLK_USB)]
	if ctrl&rp.CLOCKS_CLK_GPOUT0_CTRL_ENABLE == 0 {
		return 0
	}
	return c.divided(c.sourceFreq(usbSource(ctrl)), rp.CLK_USB)
}

// PLLFreq returns the output of PLL_SYS (0) or PLL_USB (1) in Hz, or zero
// when it is not locked with its post dividers running.
func (c *Chip) PLLFreq(i int) uint32 {
	return c.pllOutput(i)
}

// ClockSources returns what clk_ref and clk_sys currently run from.
func (c *Chip) ClockSources() (ref, sys string) {
	return c.muxSource(muxRef, false).String(), c.muxSource(muxSys, false).String()
}

// SelectedReads returns the value of every read of the SELECTED register of
// clock cix (rp.CLK_REF or rp.CLK_SYS), in order.
func (c *Chip) SelectedReads(cix int) []uint32 {
	addr := clkCtrl(cix) + clkSelectedOff
	var vals []uint32
	for _, a := range c.trace {
		if !a.Write && a.Addr == addr {
			vals = append(vals, a.Value)
		}
	}
	return vals
}

func (c *Chip) xoscStable() bool {
	return c.xosc.enabled && c.tick >= c.xosc.stableAt
}

func (c *Chip) loadXOSC(off uintptr) uint32 {
	if off != xoscSTATUS {
		return c.regs[rp.XOSC_BASE+off]
	}
	var v uint32
	if c.xosc.enabled {
		v |= rp.XOSC_STATUS_ENABLED
	}
	if c.xoscStable() {
		v |= rp.XOSC_STATUS_STABLE
	}
	if c.xosc.badWrite {
		v |= rp.XOSC_STATUS_BADWRITE
	}
	return v
}

func (c *Chip) storeXOSC(off uintptr, v, written uint32) {
	switch off {
	case xoscSTATUS:
		if written&rp.XOSC_STATUS_BADWRITE != 0 {
			c.xosc.badWrite = false
		}
		return
	case xoscCTRL:
		rng := v & rp.XOSC_CTRL_FREQ_RANGE_Msk
		if rng < rp.XOSC_CTRL_FREQ_RANGE_1_15MHZ || rng > rp.XOSC_CTRL_FREQ_RANGE_1_15MHZ+3 {
			c.xosc.badWrite = true
		}
		switch (v & rp.XOSC_CTRL_ENABLE_Msk) >> rp.XOSC_CTRL_ENABLE_Pos {
		case rp.XOSC_CTRL_ENABLE_ENABLE:
			if !c.xosc.enabled {
				c.xosc.enabled = true
				c.xosc.stableAt = c.tick + uint64(c.opts.XOSCLatency)
			}
		case rp.XOSC_CTRL_ENABLE_DISABLE:
			if c.feeds(srcXOSC) {
				c.fault(true, "xosc disabled while it clocks the core")
				return
			}
			c.xosc.enabled = false
		case 0:
		default:
			c.xosc.badWrite = true
		}
	}
	c.regs[rp.XOSC_BASE+off] = v
}

func (c *Chip) resetPLL(i int) {
	base := pllBase(i)
	c.regs[base+pllCS] = 1
	c.regs[base+pllPWR] = rp.PLL_PWR_VCOPD | rp.PLL_PWR_POSTDIVPD | rp.PLL_PWR_DSMPD | rp.PLL_PWR_PD
	c.regs[base+pllFBDIV] = 0
	c.regs[base+pllPRIM] = 7<<rp.PLL_PRIM_POSTDIV1_Pos | 7<<rp.PLL_PRIM_POSTDIV2_Pos
	c.pll[i] = pllState{}
}

func (c *Chip) pllVCO(i int) uint32 {
	base := pllBase(i)
	refdiv := c.regs[base+pllCS] & rp.PLL_CS_REFDIV_Msk
	fbdiv := c.regs[base+pllFBDIV] & rp.PLL_FBDIV_INT_Msk
	if refdiv == 0 || fbdiv < 16 || fbdiv > 320 {
		return 0
	}
	vco := uint64(c.opts.XOSCFreq) / uint64(refdiv) * uint64(fbdiv)
	if vco < 400*machine.MHz || vco > 1600*machine.MHz {
		return 0
	}
	return uint32(vco)
}

func (c *Chip) pllLocked(i int) bool {
	pwr := c.regs[pllBase(i)+pllPWR]
	return pwr&(rp.PLL_PWR_PD|rp.PLL_PWR_VCOPD) == 0 &&
		c.xoscStable() &&
		c.pllVCO(i) != 0 &&
		c.tick >= c.pll[i].lockAt
}

func (c *Chip) pllOutput(i int) uint32 {
	base := pllBase(i)
	if !c.pllLocked(i) || c.regs[base+pllPWR]&rp.PLL_PWR_POSTDIVPD != 0 {
		return 0
	}
	prim := c.regs[base+pllPRIM]
	pd1 := (prim & rp.PLL_PRIM_POSTDIV1_Msk) >> rp.PLL_PRIM_POSTDIV1_Pos
	pd2 := (prim & rp.PLL_PRIM_POSTDIV2_Msk) >> rp.PLL_PRIM_POSTDIV2_Pos
	if pd1 == 0 || pd2 == 0 {
		return 0
	}
	return c.pllVCO(i) / (pd1 * pd2)
}

func (c *Chip) loadPLL(i int, off uintptr) uint32 {
	v := c.regs[pllBase(i)+off]
	if off == pllCS && c.pllLocked(i) {
		v |= rp.PLL_CS_LOCK
	}
	return v
}

func (c *Chip) storePLL(i int, off uintptr, old, v uint32) {
	if c.pllInUse(i) {
		c.fault(true, "%s reprogrammed while it clocks the core", pllName(i))
		return
	}
	base := pllBase(i)
	switch off {
	case pllCS:
		v &^= rp.PLL_CS_LOCK
		if v != old {
			c.relock(i)
		}
	case pllFBDIV:
		if v != old {
			c.relock(i)
		}
	case pllPWR:
		if (old^v)&(rp.PLL_PWR_PD|rp.PLL_PWR_VCOPD) != 0 {
			c.relock(i)
		}
	}
	c.regs[base+off] = v
}

func (c *Chip) relock(i int) {
	c.pll[i].lockAt = c.tick + uint64(c.opts.LockLatency)
}
