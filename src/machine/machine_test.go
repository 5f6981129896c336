package machine_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/mmio"
	"github.com/kahara/pioblink/src/sim"
)

var poll = mmio.Poller{Limit: 1000}

func picoConfig() machine.Config {
	return machine.Config{
		XOSCFreq: 12 * machine.MHz,
		PLLSys:   machine.PLLConfig{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 6, PostDiv2: 2},
		PLLUSB:   machine.PLLConfig{RefDiv: 1, VCOFreq: 480 * machine.MHz, PostDiv1: 5, PostDiv2: 2},
		Poll:     poll,
	}
}

func fatal(c *sim.Chip) []sim.Fault {
	var out []sim.Fault
	for _, f := range c.Faults() {
		if f.Fatal {
			out = append(out, f)
		}
	}
	return out
}

func TestPLLConfig(t *testing.T) {
	const xosc = 12 * machine.MHz
	tests := []struct {
		name  string
		cfg   machine.PLLConfig
		fbdiv uint32
		out   uint32
		valid bool
	}{
		{"sys 125MHz", machine.PLLConfig{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 6, PostDiv2: 2}, 125, 125 * machine.MHz, true},
		{"usb 48MHz", machine.PLLConfig{RefDiv: 1, VCOFreq: 480 * machine.MHz, PostDiv1: 5, PostDiv2: 2}, 40, 48 * machine.MHz, true},
		{"sys 888MHz vco", machine.PLLConfig{RefDiv: 1, VCOFreq: 888 * machine.MHz, PostDiv1: 6, PostDiv2: 2}, 74, 74 * machine.MHz, true},
		{"vco too low", machine.PLLConfig{RefDiv: 1, VCOFreq: 300 * machine.MHz, PostDiv1: 6, PostDiv2: 2}, 25, 25 * machine.MHz, false},
		{"vco too high", machine.PLLConfig{RefDiv: 1, VCOFreq: 1700 * machine.MHz, PostDiv1: 6, PostDiv2: 2}, 141, 141 * machine.MHz, false},
		{"refdiv too large", machine.PLLConfig{RefDiv: 3, VCOFreq: 1500 * machine.MHz, PostDiv1: 6, PostDiv2: 2}, 375, 125 * machine.MHz, false},
		{"postdiv zero", machine.PLLConfig{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 0, PostDiv2: 2}, 125, 0, false},
		{"postdiv eight", machine.PLLConfig{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 8, PostDiv2: 1}, 125, 1500 * machine.MHz / 8, false},
		{"not a multiple", machine.PLLConfig{RefDiv: 1, VCOFreq: 1501 * machine.MHz, PostDiv1: 6, PostDiv2: 2}, 125, 125 * machine.MHz, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.FeedbackDiv(xosc); got != tc.fbdiv {
				t.Errorf("fbdiv %d, want %d", got, tc.fbdiv)
			}
			if got := tc.cfg.OutputFreq(xosc); got != tc.out {
				t.Errorf("output %d Hz, want %d", got, tc.out)
			}
			err := tc.cfg.Validate(xosc)
			if valid := err == nil; valid != tc.valid {
				t.Errorf("Validate() = %v, want valid %v", err, tc.valid)
			}
		})
	}
}

func TestCalcClockDiv(t *testing.T) {
	tests := []struct {
		src, freq, div uint32
	}{
		{12 * machine.MHz, 12 * machine.MHz, 0x100},
		{125 * machine.MHz, 125 * machine.MHz, 0x100},
		{48 * machine.MHz, 12 * machine.MHz, 0x400},
		{12 * machine.MHz, 8 * machine.MHz, 0x180},
	}
	for _, tc := range tests {
		if got := machine.CalcClockDiv(tc.src, tc.freq); got != tc.div {
			t.Errorf("CalcClockDiv(%d, %d) = %#x, want %#x", tc.src, tc.freq, got, tc.div)
		}
	}
}

func TestStartupDelay(t *testing.T) {
	if got := machine.StartupDelay(12 * machine.MHz); got != 47 {
		t.Errorf("StartupDelay(12MHz) = %d, want 47", got)
	}
}

func TestResetTouchesOnlyMask(t *testing.T) {
	tests := []struct {
		name string
		held uint32 // released beforehand; everything else stays in reset
		mask uint32
	}{
		{"single bit", rp.RESETS_RESET_PIO0 | rp.RESETS_RESET_IO_BANK0, rp.RESETS_RESET_PIO0},
		{"several bits", rp.RESETS_RESET_PIO0 | rp.RESETS_RESET_IO_BANK0 | rp.RESETS_RESET_PADS_BANK0,
			rp.RESETS_RESET_PIO0 | rp.RESETS_RESET_PADS_BANK0},
		{"overlaps reset bits", rp.RESETS_RESET_PIO0, rp.RESETS_RESET_PIO0 | rp.RESETS_RESET_UART0 | rp.RESETS_RESET_SPI1},
		{"start-up global reset", machine.AllBlocks &^ machine.InitUnreset, machine.AllBlocks &^ machine.InitDontReset},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := sim.New(sim.Options{})
			p := rp.Steal(c)
			resets := machine.NewResets(p.RESETS, poll)

			if err := resets.UnresetWait(tc.held); err != nil {
				t.Fatal(err)
			}
			before := resets.State()
			resets.Reset(tc.mask)
			after := resets.State()
			if after&tc.mask != tc.mask {
				t.Errorf("bits %#x of the mask not in reset", tc.mask&^after)
			}
			if diff := (after ^ before) &^ tc.mask; diff != 0 {
				t.Errorf("reset changed bits %#x outside the mask", diff)
			}
			if fatal(c) != nil {
				t.Errorf("fatal faults: %v", fatal(c))
			}

			resets.Unreset(tc.mask)
			if diff := (resets.State() ^ before) &^ tc.mask; diff != 0 {
				t.Errorf("unreset changed bits %#x outside the mask", diff)
			}
			if got := resets.State() & tc.mask; got != 0 {
				t.Errorf("bits %#x still in reset after unreset", got)
			}
		})
	}
}

func TestXOSCInit(t *testing.T) {
	c := sim.New(sim.Options{XOSCLatency: 50})
	p := rp.Steal(c)
	xosc := machine.NewXOSC(p.XOSC, poll)

	if xosc.Stable() {
		t.Fatal("stable before init")
	}
	if err := xosc.Init(12 * machine.MHz); err != nil {
		t.Fatal(err)
	}
	if !xosc.Stable() {
		t.Error("not stable after init")
	}
	if got := p.XOSC.STARTUP.Get(); got != 47 {
		t.Errorf("STARTUP %d", got)
	}
	if p.XOSC.STATUS.HasBits(rp.XOSC_STATUS_BADWRITE) {
		t.Error("bad write reported")
	}
}

func TestXOSCInitTimeout(t *testing.T) {
	c := sim.New(sim.Options{XOSCLatency: 500})
	p := rp.Steal(c)
	err := machine.NewXOSC(p.XOSC, mmio.Poller{Limit: 10}).Init(12 * machine.MHz)
	var hang *mmio.HangTimeout
	if !errors.As(err, &hang) {
		t.Fatalf("got %v, want a hang timeout", err)
	}
	if hang.Mask != rp.XOSC_STATUS_STABLE {
		t.Errorf("timed out on mask %#x", hang.Mask)
	}
}

func TestPLLConfigure(t *testing.T) {
	c := sim.New(sim.Options{})
	p := rp.Steal(c)
	if err := machine.NewXOSC(p.XOSC, poll).Init(12 * machine.MHz); err != nil {
		t.Fatal(err)
	}
	if err := machine.NewResets(p.RESETS, poll).UnresetWait(rp.RESETS_RESET_PLL_SYS); err != nil {
		t.Fatal(err)
	}

	pll := machine.NewPLL(p.PLL_SYS, poll)
	cfg := machine.PLLConfig{RefDiv: 1, VCOFreq: 1500 * machine.MHz, PostDiv1: 6, PostDiv2: 2}
	if err := pll.Configure(12*machine.MHz, cfg); err != nil {
		t.Fatal(err)
	}
	if !pll.Locked() {
		t.Error("not locked")
	}
	if got := p.PLL_SYS.FBDIV_INT.Get(); got != 125 {
		t.Errorf("FBDIV_INT %d, want 125", got)
	}
	if got := p.PLL_SYS.PRIM.Get(); got != 6<<rp.PLL_PRIM_POSTDIV1_Pos|2<<rp.PLL_PRIM_POSTDIV2_Pos {
		t.Errorf("PRIM %#x", got)
	}
	if got := p.PLL_SYS.PWR.Get(); got&(rp.PLL_PWR_PD|rp.PLL_PWR_VCOPD|rp.PLL_PWR_POSTDIVPD) != 0 {
		t.Errorf("PWR %#x still powers something down", got)
	}
	if got := c.PLLFreq(0); got != 125*machine.MHz {
		t.Errorf("pll output %d Hz", got)
	}
}

func TestInitClocks(t *testing.T) {
	for _, warm := range []bool{false, true} {
		name := "cold"
		if warm {
			name = "warm"
		}
		t.Run(name, func(t *testing.T) {
			c := sim.New(sim.Options{WarmBoot: warm})
			var log strings.Builder
			cfg := picoConfig()
			cfg.Log = diag.New(diag.WriterSink{W: &log})

			st, err := machine.InitClocks(rp.Steal(c), cfg)
			if err != nil {
				t.Fatal(err)
			}
			if f := fatal(c); len(f) != 0 {
				t.Fatalf("fatal faults: %v", f)
			}
			if len(c.Faults()) != 0 {
				t.Errorf("faults: %v", c.Faults())
			}
			if st.Sys != 125*machine.MHz || st.Ref != 12*machine.MHz {
				t.Errorf("state %+v", st)
			}
			if st.PLLSys != 125*machine.MHz || st.PLLUSB != 48*machine.MHz {
				t.Errorf("pll state %+v", st)
			}
			if got := c.SysFreq(); got != 125*machine.MHz {
				t.Errorf("simulated clk_sys %d Hz", got)
			}
			if got := c.RefFreq(); got != 12*machine.MHz {
				t.Errorf("simulated clk_ref %d Hz", got)
			}
			if st.USB != 48*machine.MHz {
				t.Errorf("clk_usb state %d Hz", st.USB)
			}
			if got := c.USBFreq(); got != 48*machine.MHz {
				t.Errorf("simulated clk_usb %d Hz", got)
			}
			ref, sys := c.ClockSources()
			if ref != "xosc" || sys != "pll_sys" {
				t.Errorf("sources %s, %s", ref, sys)
			}
			if !strings.Contains(log.String(), "pll_sys locked, fbdiv 125") {
				t.Errorf("log:\n%s", log.String())
			}
		})
	}
}

func TestRoutePLLsStopsUSBClock(t *testing.T) {
	c := sim.New(sim.Options{WarmBoot: true})
	clocks := machine.NewClocks(rp.Steal(c).CLOCKS, poll)
	ctrl := rp.CLOCKS_BASE + uintptr(rp.CLK_USB)*0xc

	ctrlReads := func() int {
		n := 0
		for _, a := range c.Trace() {
			if !a.Write && a.Addr == ctrl {
				n++
			}
		}
		return n
	}

	var reads []int
	for i := 0; i < 2; i++ {
		if err := clocks.RoutePLLs(12*machine.MHz, 125*machine.MHz, 48*machine.MHz); err != nil {
			t.Fatal(err)
		}
		reads = append(reads, ctrlReads())
	}
	if len(c.Faults()) != 0 {
		t.Errorf("faults: %v", c.Faults())
	}
	if got := clocks.Freq(machine.ClkUSB); got != 48*machine.MHz {
		t.Errorf("clk_usb configured at %d Hz", got)
	}
	if got := c.USBFreq(); got != 48*machine.MHz {
		t.Errorf("simulated clk_usb %d Hz", got)
	}
	// Once clk_usb has a known frequency, stopping it waits for ENABLE to
	// propagate before the aux mux is touched.
	if first, second := reads[0], reads[1]-reads[0]; second <= first {
		t.Errorf("CLK_USB_CTRL read %d times, then %d", first, second)
	}
}

func TestInitClocksSelectedSequence(t *testing.T) {
	c := sim.New(sim.Options{SelectLatency: 3})
	if _, err := machine.InitClocks(rp.Steal(c), picoConfig()); err != nil {
		t.Fatal(err)
	}

	// clk_sys: on clk_ref from reset, then through source 0 onto aux.
	reads := c.SelectedReads(rp.CLK_SYS)
	if len(reads) == 0 || reads[len(reads)-1] != 1<<rp.CLOCKS_CLK_SYS_CTRL_SRC_CLKSRC_CLK_SYS_AUX {
		t.Fatalf("clk_sys reads %v", reads)
	}
	last := reads[0]
	changes := 0
	for _, v := range reads[1:] {
		if v != last {
			changes++
			last = v
		}
	}
	if changes != 1 {
		t.Errorf("clk_sys SELECTED changed %d times: %v", changes, reads)
	}

	reads = c.SelectedReads(rp.CLK_REF)
	if len(reads) == 0 || reads[len(reads)-1] != 1<<rp.CLOCKS_CLK_REF_CTRL_SRC_XOSC_CLKSRC {
		t.Fatalf("clk_ref reads %v", reads)
	}
	var waited int
	for _, v := range reads {
		if v == 1 {
			waited++
		}
	}
	if waited == 0 {
		t.Errorf("clk_ref switch never observed in flight: %v", reads)
	}
}

func TestInitClocksNoLock(t *testing.T) {
	c := sim.New(sim.Options{})
	cfg := picoConfig()
	cfg.PLLSys.VCOFreq = 300 * machine.MHz
	cfg.Poll = mmio.Poller{Limit: 100}

	_, err := machine.InitClocks(rp.Steal(c), cfg)
	var hang *mmio.HangTimeout
	if !errors.As(err, &hang) {
		t.Fatalf("got %v, want a hang timeout", err)
	}
	if hang.Mask != rp.PLL_CS_LOCK {
		t.Errorf("timed out on mask %#x", hang.Mask)
	}
	if !strings.Contains(err.Error(), "pll_sys") {
		t.Errorf("error %q does not name the stage", err)
	}
	if c.Halted() {
		t.Error("a PLL that never locks must not halt the chip")
	}
	if ref, sys := c.ClockSources(); sys == "pll_sys" {
		t.Errorf("clk_sys moved to an unlocked PLL (ref %s)", ref)
	}
}

func TestGPIOConfigure(t *testing.T) {
	c := sim.New(sim.Options{})
	p := rp.Steal(c)
	if err := machine.NewResets(p.RESETS, poll).UnresetWait(rp.RESETS_RESET_IO_BANK0); err != nil {
		t.Fatal(err)
	}
	gpio := machine.NewGPIO(p.IO_BANK0)

	if err := gpio.Configure(machine.LED, machine.PinPIO0); err != nil {
		t.Fatal(err)
	}
	if got := gpio.Function(machine.LED); got != rp.IO_BANK0_GPIO_CTRL_FUNCSEL_PIO0 {
		t.Errorf("funcsel %d", got)
	}
	if got := c.Pad(int(machine.LED)); got != sim.Low {
		t.Errorf("LED pad %v, want driven low", got)
	}
	if err := gpio.Configure(machine.Pin(rp.NUM_BANK0_GPIOS), machine.PinPIO0); err == nil {
		t.Error("configured a pin past the bank")
	}
	for _, pin := range []machine.Pin{machine.Pin(rp.NUM_BANK0_GPIOS), machine.NoPin} {
		if got := gpio.Function(pin); got != rp.IO_BANK0_GPIO_CTRL_FUNCSEL_NULL {
			t.Errorf("Function(%d) = %d, want the null function", pin, got)
		}
	}
	if err := gpio.Configure(machine.LED, machine.PinNull); err != nil {
		t.Fatal(err)
	}
	if got := c.Pad(int(machine.LED)); got != sim.HiZ {
		t.Errorf("LED pad %v after release", got)
	}
}

func TestTakeOnce(t *testing.T) {
	c := sim.New(sim.Options{})
	if _, err := rp.Take(c); err != nil {
		t.Fatal(err)
	}
	if _, err := rp.Take(c); !errors.Is(err, rp.ErrAlreadyTaken) {
		t.Errorf("second Take: %v", err)
	}
	if rp.Steal(c) == nil {
		t.Error("Steal returned nil")
	}

	// Each chip carries its own claim.
	if _, err := rp.Take(sim.New(sim.Options{})); err != nil {
		t.Errorf("Take on a second chip: %v", err)
	}
}
