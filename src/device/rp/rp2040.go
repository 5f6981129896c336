// Hand written file based on the RP2040 datasheet, chapter 2 (resets, clocks,
// xosc, pll, watchdog), chapter 2.19 (IO_BANK0) and chapter 3 (PIO).
//
// Only the registers used during clock bring-up and PIO start are described.

package rp

import (
	"errors"

	"github.com/kahara/pioblink/src/mmio"
)

// Peripheral base addresses
const (
	CLOCKS_BASE   uintptr = 0x40008000
	RESETS_BASE   uintptr = 0x4000c000
	IO_BANK0_BASE uintptr = 0x40014000
	XOSC_BASE     uintptr = 0x40024000
	PLL_SYS_BASE  uintptr = 0x40028000
	PLL_USB_BASE  uintptr = 0x4002c000
	WATCHDOG_BASE uintptr = 0x40058000
	PIO0_BASE     uintptr = 0x50200000
)

// RESETS: subsystem resets
type RESETS_Type struct {
	RESET      mmio.Register32 // 0x0
	WDSEL      mmio.Register32 // 0x4
	RESET_DONE mmio.Register32 // 0x8
}

// Bitfields for RESETS: RESET, WDSEL and RESET_DONE share one layout.
const (
	RESETS_RESET_ADC        = 0x1
	RESETS_RESET_BUSCTRL    = 0x2
	RESETS_RESET_DMA        = 0x4
	RESETS_RESET_I2C0       = 0x8
	RESETS_RESET_I2C1       = 0x10
	RESETS_RESET_IO_BANK0   = 0x20
	RESETS_RESET_IO_QSPI    = 0x40
	RESETS_RESET_JTAG       = 0x80
	RESETS_RESET_PADS_BANK0 = 0x100
	RESETS_RESET_PADS_QSPI  = 0x200
	RESETS_RESET_PIO0       = 0x400
	RESETS_RESET_PIO1       = 0x800
	RESETS_RESET_PLL_SYS    = 0x1000
	RESETS_RESET_PLL_USB    = 0x2000
	RESETS_RESET_PWM        = 0x4000
	RESETS_RESET_RTC        = 0x8000
	RESETS_RESET_SPI0       = 0x10000
	RESETS_RESET_SPI1       = 0x20000
	RESETS_RESET_SYSCFG     = 0x40000
	RESETS_RESET_SYSINFO    = 0x80000
	RESETS_RESET_TBMAN      = 0x100000
	RESETS_RESET_TIMER      = 0x200000
	RESETS_RESET_UART0      = 0x400000
	RESETS_RESET_UART1      = 0x800000
	RESETS_RESET_USBCTRL    = 0x1000000

	RESETS_RESET_Msk = 0x01ffffff
)

// Clock generator indexes within CLOCKS.
const (
	CLK_GPOUT0 = iota
	CLK_GPOUT1
	CLK_GPOUT2
	CLK_GPOUT3
	CLK_REF
	CLK_SYS
	CLK_PERI
	CLK_USB
	CLK_ADC
	CLK_RTC
	NUM_CLOCKS
)

// CLK_Type is one clock generator: control, divisor and selected source.
type CLK_Type struct {
	CTRL     mmio.Register32
	DIV      mmio.Register32
	SELECTED mmio.Register32
}

// CLOCKS: clock generators
type CLOCKS_Type struct {
	CLK                  [NUM_CLOCKS]CLK_Type // 0x00, 0x0c apart
	CLK_SYS_RESUS_CTRL   mmio.Register32      // 0x78
	CLK_SYS_RESUS_STATUS mmio.Register32      // 0x7c
}

// Bitfields for CLOCKS
const (
	// CLK_REF_CTRL
	CLOCKS_CLK_REF_CTRL_SRC_Pos                = 0x0
	CLOCKS_CLK_REF_CTRL_SRC_Msk                = 0x3
	CLOCKS_CLK_REF_CTRL_SRC_ROSC_CLKSRC_PH     = 0x0
	CLOCKS_CLK_REF_CTRL_SRC_CLKSRC_CLK_REF_AUX = 0x1
	CLOCKS_CLK_REF_CTRL_SRC_XOSC_CLKSRC        = 0x2
	CLOCKS_CLK_REF_CTRL_AUXSRC_Pos             = 0x5
	CLOCKS_CLK_REF_CTRL_AUXSRC_Msk             = 0x60
	CLOCKS_CLK_REF_CTRL_AUXSRC_CLKSRC_PLL_USB  = 0x0

	// CLK_SYS_CTRL
	CLOCKS_CLK_SYS_CTRL_SRC_Pos                = 0x0
	CLOCKS_CLK_SYS_CTRL_SRC_Msk                = 0x1
	CLOCKS_CLK_SYS_CTRL_SRC_CLK_REF            = 0x0
	CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX = 0x1
	CLOCKS_CLK_SYS_CTRL_AUXSRC_Pos             = 0x5
	CLOCKS_CLK_SYS_CTRL_AUXSRC_Msk             = 0xe0
	CLOCKS_CLK_SYS_CTRL_AUXSRC_CLKSRC_PLL_SYS  = 0x0
	CLOCKS_CLK_SYS_CTRL_AUXSRC_CLKSRC_PLL_USB  = 0x1
	CLOCKS_CLK_SYS_CTRL_AUXSRC_ROSC_CLKSRC     = 0x2
	CLOCKS_CLK_SYS_CTRL_AUXSRC_XOSC_CLKSRC     = 0x3

	// CLK_USB_CTRL
	CLOCKS_CLK_USB_CTRL_AUXSRC_Pos            = 0x5
	CLOCKS_CLK_USB_CTRL_AUXSRC_Msk            = 0xe0
	CLOCKS_CLK_USB_CTRL_AUXSRC_CLKSRC_PLL_USB = 0x0
	CLOCKS_CLK_USB_CTRL_AUXSRC_CLKSRC_PLL_SYS = 0x1
	CLOCKS_CLK_USB_CTRL_AUXSRC_ROSC_CLKSRC_PH = 0x2
	CLOCKS_CLK_USB_CTRL_AUXSRC_XOSC_CLKSRC    = 0x3

	// All clocks other than ref and sys have the ENABLE bit in this position.
	CLOCKS_CLK_GPOUT0_CTRL_ENABLE_Pos = 0xb
	CLOCKS_CLK_GPOUT0_CTRL_ENABLE_Msk = 0x800
	CLOCKS_CLK_GPOUT0_CTRL_ENABLE     = 0x800

	// CLK_x_DIV is a 24.8 fixed point divisor.
	CLOCKS_CLK_DIV_INT_Pos  = 0x8
	CLOCKS_CLK_DIV_FRAC_Msk = 0xff
)

// XOSC: crystal oscillator
type XOSC_Type struct {
	CTRL    mmio.Register32 // 0x00
	STATUS  mmio.Register32 // 0x04
	DORMANT mmio.Register32 // 0x08
	STARTUP mmio.Register32 // 0x0c
	COUNT   mmio.Register32 // 0x1c
}

// Bitfields for XOSC
const (
	XOSC_CTRL_FREQ_RANGE_Pos     = 0x0
	XOSC_CTRL_FREQ_RANGE_Msk     = 0xfff
	XOSC_CTRL_FREQ_RANGE_1_15MHZ = 0xaa0
	XOSC_CTRL_ENABLE_Pos         = 0xc
	XOSC_CTRL_ENABLE_Msk         = 0xfff000
	XOSC_CTRL_ENABLE_DISABLE     = 0xd1e
	XOSC_CTRL_ENABLE_ENABLE      = 0xfab

	XOSC_STATUS_FREQ_RANGE_Msk = 0x3
	XOSC_STATUS_ENABLED        = 0x1000
	XOSC_STATUS_BADWRITE       = 0x1000000
	XOSC_STATUS_STABLE         = 0x80000000

	XOSC_STARTUP_DELAY_Pos = 0x0
	XOSC_STARTUP_DELAY_Msk = 0x3fff
	XOSC_STARTUP_X4        = 0x100000
)

// PLL_Type describes both PLL_SYS and PLL_USB.
type PLL_Type struct {
	CS        mmio.Register32 // 0x0
	PWR       mmio.Register32 // 0x4
	FBDIV_INT mmio.Register32 // 0x8
	PRIM      mmio.Register32 // 0xc
}

// Bitfields for PLL_SYS and PLL_USB
const (
	PLL_CS_LOCK       = 0x80000000
	PLL_CS_BYPASS     = 0x100
	PLL_CS_REFDIV_Pos = 0x0
	PLL_CS_REFDIV_Msk = 0x3f

	PLL_PWR_VCOPD     = 0x20
	PLL_PWR_POSTDIVPD = 0x8
	PLL_PWR_DSMPD     = 0x4
	PLL_PWR_PD        = 0x1

	PLL_FBDIV_INT_Msk = 0xfff

	PLL_PRIM_POSTDIV1_Pos = 0x10
	PLL_PRIM_POSTDIV1_Msk = 0x70000
	PLL_PRIM_POSTDIV2_Pos = 0xc
	PLL_PRIM_POSTDIV2_Msk = 0x7000
)

// WATCHDOG
type WATCHDOG_Type struct {
	CTRL    mmio.Register32    // 0x00
	LOAD    mmio.Register32    // 0x04
	REASON  mmio.Register32    // 0x08
	SCRATCH [8]mmio.Register32 // 0x0c
	TICK    mmio.Register32    // 0x2c
}

// Bitfields for WATCHDOG
const (
	WATCHDOG_TICK_CYCLES_Msk = 0x1ff
	WATCHDOG_TICK_ENABLE     = 0x200
	WATCHDOG_TICK_RUNNING    = 0x400
)

// NUM_BANK0_GPIOS is the number of user GPIOs in IO_BANK0.
const NUM_BANK0_GPIOS = 30

// GPIO_Type is the status/control pair of one bank 0 GPIO.
type GPIO_Type struct {
	STATUS mmio.Register32
	CTRL   mmio.Register32
}

// IO_BANK0: user GPIO function select and overrides
type IO_BANK0_Type struct {
	GPIO [NUM_BANK0_GPIOS]GPIO_Type
}

// Bitfields for IO_BANK0 GPIOn_CTRL
const (
	IO_BANK0_GPIO_CTRL_FUNCSEL_Pos  = 0x0
	IO_BANK0_GPIO_CTRL_FUNCSEL_Msk  = 0x1f
	IO_BANK0_GPIO_CTRL_FUNCSEL_SIO  = 0x5
	IO_BANK0_GPIO_CTRL_FUNCSEL_PIO0 = 0x6
	IO_BANK0_GPIO_CTRL_FUNCSEL_PIO1 = 0x7
	IO_BANK0_GPIO_CTRL_FUNCSEL_NULL = 0x1f

	IO_BANK0_GPIO_CTRL_OUTOVER_Pos    = 0x8
	IO_BANK0_GPIO_CTRL_OUTOVER_Msk    = 0x300
	IO_BANK0_GPIO_CTRL_OUTOVER_NORMAL = 0x0
	IO_BANK0_GPIO_CTRL_OUTOVER_INVERT = 0x1
	IO_BANK0_GPIO_CTRL_OUTOVER_LOW    = 0x2
	IO_BANK0_GPIO_CTRL_OUTOVER_HIGH   = 0x3

	IO_BANK0_GPIO_CTRL_OEOVER_Pos     = 0xc
	IO_BANK0_GPIO_CTRL_OEOVER_Msk     = 0x3000
	IO_BANK0_GPIO_CTRL_OEOVER_NORMAL  = 0x0
	IO_BANK0_GPIO_CTRL_OEOVER_INVERT  = 0x1
	IO_BANK0_GPIO_CTRL_OEOVER_DISABLE = 0x2
	IO_BANK0_GPIO_CTRL_OEOVER_ENABLE  = 0x3

	IO_BANK0_GPIO_STATUS_OUTTOPAD = 0x200
	IO_BANK0_GPIO_STATUS_OETOPAD  = 0x2000
)

// PIO_SM_Type holds the per state machine registers of a PIO block.
type PIO_SM_Type struct {
	CLKDIV    mmio.Register32
	EXECCTRL  mmio.Register32
	SHIFTCTRL mmio.Register32
	ADDR      mmio.Register32
	INSTR     mmio.Register32
	PINCTRL   mmio.Register32
}

// PIO_INSTR_MEM_SIZE is the number of instruction memory slots.
const PIO_INSTR_MEM_SIZE = 32

// PIO_NUM_SM is the number of state machines per PIO block.
const PIO_NUM_SM = 4

// PIO: programmable IO block
type PIO_Type struct {
	CTRL              mmio.Register32                     // 0x000
	FSTAT             mmio.Register32                     // 0x004
	FDEBUG            mmio.Register32                     // 0x008
	FLEVEL            mmio.Register32                     // 0x00c
	TXF               [PIO_NUM_SM]mmio.Register32         // 0x010
	RXF               [PIO_NUM_SM]mmio.Register32         // 0x020
	IRQ               mmio.Register32                     // 0x030
	IRQ_FORCE         mmio.Register32                     // 0x034
	INPUT_SYNC_BYPASS mmio.Register32                     // 0x038
	DBG_PADOUT        mmio.Register32                     // 0x03c
	DBG_PADOE         mmio.Register32                     // 0x040
	DBG_CFGINFO       mmio.Register32                     // 0x044
	INSTR_MEM         [PIO_INSTR_MEM_SIZE]mmio.Register32 // 0x048
	SM                [PIO_NUM_SM]PIO_SM_Type             // 0x0c8, 0x18 apart
}

// Register offsets within a PIO block.
const (
	PIO_CTRL_Offset        = 0x000
	PIO_FSTAT_Offset       = 0x004
	PIO_IRQ_Offset         = 0x030
	PIO_DBG_PADOUT_Offset  = 0x03c
	PIO_DBG_PADOE_Offset   = 0x040
	PIO_DBG_CFGINFO_Offset = 0x044
	PIO_INSTR_MEM0_Offset  = 0x048
	PIO_SM0_CLKDIV_Offset  = 0x0c8
	PIO_SM_Stride          = 0x18
)

// Bitfields for PIO
const (
	PIO_CTRL_SM_ENABLE_Pos      = 0x0
	PIO_CTRL_SM_ENABLE_Msk      = 0xf
	PIO_CTRL_SM_RESTART_Pos     = 0x4
	PIO_CTRL_SM_RESTART_Msk     = 0xf0
	PIO_CTRL_CLKDIV_RESTART_Pos = 0x8
	PIO_CTRL_CLKDIV_RESTART_Msk = 0xf00

	PIO_SM0_CLKDIV_INT_Pos  = 0x10
	PIO_SM0_CLKDIV_INT_Msk  = 0xffff0000
	PIO_SM0_CLKDIV_FRAC_Pos = 0x8
	PIO_SM0_CLKDIV_FRAC_Msk = 0xff00

	PIO_SM0_EXECCTRL_EXEC_STALLED    = 0x80000000
	PIO_SM0_EXECCTRL_SIDE_EN_Pos     = 0x1e
	PIO_SM0_EXECCTRL_SIDE_PINDIR_Pos = 0x1d
	PIO_SM0_EXECCTRL_JMP_PIN_Pos     = 0x18
	PIO_SM0_EXECCTRL_JMP_PIN_Msk     = 0x1f000000
	PIO_SM0_EXECCTRL_WRAP_TOP_Pos    = 0xc
	PIO_SM0_EXECCTRL_WRAP_TOP_Msk    = 0x1f000
	PIO_SM0_EXECCTRL_WRAP_BOTTOM_Pos = 0x7
	PIO_SM0_EXECCTRL_WRAP_BOTTOM_Msk = 0xf80

	PIO_SM0_PINCTRL_SIDESET_COUNT_Pos = 0x1d
	PIO_SM0_PINCTRL_SIDESET_COUNT_Msk = 0xe0000000
	PIO_SM0_PINCTRL_SET_COUNT_Pos     = 0x1a
	PIO_SM0_PINCTRL_SET_COUNT_Msk     = 0x1c000000
	PIO_SM0_PINCTRL_OUT_COUNT_Pos     = 0x14
	PIO_SM0_PINCTRL_OUT_COUNT_Msk     = 0x3f00000
	PIO_SM0_PINCTRL_IN_BASE_Pos       = 0xf
	PIO_SM0_PINCTRL_IN_BASE_Msk       = 0xf8000
	PIO_SM0_PINCTRL_SIDESET_BASE_Pos  = 0xa
	PIO_SM0_PINCTRL_SIDESET_BASE_Msk  = 0x7c00
	PIO_SM0_PINCTRL_SET_BASE_Pos      = 0x5
	PIO_SM0_PINCTRL_SET_BASE_Msk      = 0x3e0
	PIO_SM0_PINCTRL_OUT_BASE_Pos      = 0x0
	PIO_SM0_PINCTRL_OUT_BASE_Msk      = 0x1f
)

// Peripherals holds one handle per register block used at start-up.
type Peripherals struct {
	RESETS   *RESETS_Type
	CLOCKS   *CLOCKS_Type
	XOSC     *XOSC_Type
	PLL_SYS  *PLL_Type
	PLL_USB  *PLL_Type
	WATCHDOG *WATCHDOG_Type
	IO_BANK0 *IO_BANK0_Type
	PIO0     *PIO_Type
}

// ErrAlreadyTaken is returned by Take when the peripherals of a bus have
// already been handed out.
var ErrAlreadyTaken = errors.New("rp: peripherals already taken")

// Claimer is a bus that records whether its peripherals were handed out.
type Claimer interface {
	mmio.Bus

	// Claim marks the bus as taken and reports whether it was free.
	Claim() bool
}

// Take hands out the register blocks behind bus. It succeeds once per bus, so
// only one owner ever drives a given block. The claim lives on the bus, so
// it goes away with it.
func Take(bus Claimer) (*Peripherals, error) {
	if !bus.Claim() {
		return nil, ErrAlreadyTaken
	}
	return Steal(bus), nil
}

// Steal returns the register blocks behind bus without claiming them.
func Steal(bus mmio.Bus) *Peripherals {
	return &Peripherals{
		RESETS:   newRESETS(bus, RESETS_BASE),
		CLOCKS:   newCLOCKS(bus, CLOCKS_BASE),
		XOSC:     newXOSC(bus, XOSC_BASE),
		PLL_SYS:  newPLL(bus, PLL_SYS_BASE),
		PLL_USB:  newPLL(bus, PLL_USB_BASE),
		WATCHDOG: newWATCHDOG(bus, WATCHDOG_BASE),
		IO_BANK0: newIO_BANK0(bus, IO_BANK0_BASE),
		PIO0:     newPIO(bus, PIO0_BASE),
	}
}

func newRESETS(bus mmio.Bus, base uintptr) *RESETS_Type {
	return &RESETS_Type{
		RESET:      mmio.NewRegister32(bus, base+0x0),
		WDSEL:      mmio.NewRegister32(bus, base+0x4),
		RESET_DONE: mmio.NewRegister32(bus, base+0x8),
	}
}

func newCLOCKS(bus mmio.Bus, base uintptr) *CLOCKS_Type {
	c := &CLOCKS_Type{
		CLK_SYS_RESUS_CTRL:   mmio.NewRegister32(bus, base+0x78),
		CLK_SYS_RESUS_STATUS: mmio.NewRegister32(bus, base+0x7c),
	}
	for i := range c.CLK {
		off := base + uintptr(i)*0xc
		c.CLK[i] = CLK_Type{
			CTRL:     mmio.NewRegister32(bus, off+0x0),
			DIV:      mmio.NewRegister32(bus, off+0x4),
			SELECTED: mmio.NewRegister32(bus, off+0x8),
		}
	}
	return c
}

func newXOSC(bus mmio.Bus, base uintptr) *XOSC_Type {
	return &XOSC_Type{
		CTRL:    mmio.NewRegister32(bus, base+0x00),
		STATUS:  mmio.NewRegister32(bus, base+0x04),
		DORMANT: mmio.NewRegister32(bus, base+0x08),
		STARTUP: mmio.NewRegister32(bus, base+0x0c),
		COUNT:   mmio.NewRegister32(bus, base+0x1c),
	}
}

func newPLL(bus mmio.Bus, base uintptr) *PLL_Type {
	return &PLL_Type{
		CS:        mmio.NewRegister32(bus, base+0x0),
		PWR:       mmio.NewRegister32(bus, base+0x4),
		FBDIV_INT: mmio.NewRegister32(bus, base+0x8),
		PRIM:      mmio.NewRegister32(bus, base+0xc),
	}
}

func newWATCHDOG(bus mmio.Bus, base uintptr) *WATCHDOG_Type {
	w := &WATCHDOG_Type{
		CTRL:   mmio.NewRegister32(bus, base+0x00),
		LOAD:   mmio.NewRegister32(bus, base+0x04),
		REASON: mmio.NewRegister32(bus, base+0x08),
		TICK:   mmio.NewRegister32(bus, base+0x2c),
	}
	for i := range w.SCRATCH {
		w.SCRATCH[i] = mmio.NewRegister32(bus, base+0x0c+uintptr(i)*4)
	}
	return w
}

func newIO_BANK0(bus mmio.Bus, base uintptr) *IO_BANK0_Type {
	io := &IO_BANK0_Type{}
	for i := range io.GPIO {
		io.GPIO[i] = GPIO_Type{
			STATUS: mmio.NewRegister32(bus, base+uintptr(i)*8),
			CTRL:   mmio.NewRegister32(bus, base+uintptr(i)*8+4),
		}
	}
	return io
}

func newPIO(bus mmio.Bus, base uintptr) *PIO_Type {
	p := &PIO_Type{
		CTRL:              mmio.NewRegister32(bus, base+PIO_CTRL_Offset),
		FSTAT:             mmio.NewRegister32(bus, base+PIO_FSTAT_Offset),
		FDEBUG:            mmio.NewRegister32(bus, base+0x008),
		FLEVEL:            mmio.NewRegister32(bus, base+0x00c),
		IRQ:               mmio.NewRegister32(bus, base+PIO_IRQ_Offset),
		IRQ_FORCE:         mmio.NewRegister32(bus, base+0x034),
		INPUT_SYNC_BYPASS: mmio.NewRegister32(bus, base+0x038),
		DBG_PADOUT:        mmio.NewRegister32(bus, base+PIO_DBG_PADOUT_Offset),
		DBG_PADOE:         mmio.NewRegister32(bus, base+PIO_DBG_PADOE_Offset),
		DBG_CFGINFO:       mmio.NewRegister32(bus, base+PIO_DBG_CFGINFO_Offset),
	}
	for i := range p.TXF {
		p.TXF[i] = mmio.NewRegister32(bus, base+0x010+uintptr(i)*4)
		p.RXF[i] = mmio.NewRegister32(bus, base+0x020+uintptr(i)*4)
	}
	for i := range p.INSTR_MEM {
		p.INSTR_MEM[i] = mmio.NewRegister32(bus, base+PIO_INSTR_MEM0_Offset+uintptr(i)*4)
	}
	for i := range p.SM {
		off := base + PIO_SM0_CLKDIV_Offset + uintptr(i)*PIO_SM_Stride
		p.SM[i] = PIO_SM_Type{
			CLKDIV:    mmio.NewRegister32(bus, off+0x00),
			EXECCTRL:  mmio.NewRegister32(bus, off+0x04),
			SHIFTCTRL: mmio.NewRegister32(bus, off+0x08),
			ADDR:      mmio.NewRegister32(bus, off+0x0c),
			INSTR:     mmio.NewRegister32(bus, off+0x10),
			PINCTRL:   mmio.NewRegister32(bus, off+0x14),
		}
	}
	return p
}
