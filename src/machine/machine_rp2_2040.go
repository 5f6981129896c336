package machine

import "github.com/kahara/pioblink/src/device/rp"

const (
	// AllBlocks is every resettable block on the chip.
	AllBlocks = rp.RESETS_RESET_Msk

	// InitDontReset are kept out of the initial global reset: the QSPI path
	// the program executes from, and the PLLs, one of which may be clocking
	// the core.
	InitDontReset = rp.RESETS_RESET_IO_QSPI |
		rp.RESETS_RESET_PADS_QSPI |
		rp.RESETS_RESET_PLL_SYS |
		rp.RESETS_RESET_PLL_USB

	// InitUnreset are left in reset after the global reset because nothing
	// here uses them.
	InitUnreset = rp.RESETS_RESET_ADC |
		rp.RESETS_RESET_RTC |
		rp.RESETS_RESET_SPI0 |
		rp.RESETS_RESET_SPI1 |
		rp.RESETS_RESET_UART0 |
		rp.RESETS_RESET_UART1 |
		rp.RESETS_RESET_USBCTRL
)

// clockIndex identifies a hardware clock
type clockIndex uint8

const (
	ClkGPOUT0 clockIndex = rp.CLK_GPOUT0 // GPIO Muxing 0
	ClkGPOUT1 clockIndex = rp.CLK_GPOUT1 // GPIO Muxing 1
	ClkGPOUT2 clockIndex = rp.CLK_GPOUT2 // GPIO Muxing 2
	ClkGPOUT3 clockIndex = rp.CLK_GPOUT3 // GPIO Muxing 3
	ClkRef    clockIndex = rp.CLK_REF    // Watchdog and timers reference clock
	ClkSys    clockIndex = rp.CLK_SYS    // Processors, bus fabric, memory, memory mapped registers, PIO
	ClkPeri   clockIndex = rp.CLK_PERI   // Peripheral clock for UART and SPI
	ClkUSB    clockIndex = rp.CLK_USB    // USB clock
	ClkADC    clockIndex = rp.CLK_ADC    // ADC clock
	ClkRTC    clockIndex = rp.CLK_RTC    // Real time clock
	NumClocks            = rp.NUM_CLOCKS
)

// CalcClockDiv returns the CLK_x_DIV value dividing srcFreq down to freq.
func CalcClockDiv(srcFreq, freq uint32) uint32 {
	// Div register is 24.8 int.frac divider so multiply by 2^8 (left shift by 8)
	return uint32((uint64(srcFreq) << 8) / uint64(freq))
}

// ROSCFreq is the nominal ring oscillator frequency. It varies by part and
// temperature and is only used for reporting.
const ROSCFreq = 6500 * KHz

// GPIO function selectors
const (
	fnSIO pinFunc = rp.IO_BANK0_GPIO_CTRL_FUNCSEL_SIO
	// Connect one of the programmable IO blocks (PIO) to GPIO. The PIO
	// function must be selected for PIO to drive a GPIO, but the input is
	// always connected, so the PIOs can always see the state of all pins.
	fnPIO0, fnPIO1 pinFunc = rp.IO_BANK0_GPIO_CTRL_FUNCSEL_PIO0, rp.IO_BANK0_GPIO_CTRL_FUNCSEL_PIO1
	fnNULL         pinFunc = rp.IO_BANK0_GPIO_CTRL_FUNCSEL_NULL
)
