package preset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/machine/pio/pioasm"
)

func TestNames(t *testing.T) {
	got := Names()
	want := []string{"blink-1500", "blink-888"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := Lookup(Default); err != nil {
		t.Errorf("default preset: %v", err)
	}
}

func TestBuiltinsValid(t *testing.T) {
	for _, name := range Names() {
		p, err := Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		if p.Name != name {
			t.Errorf("%s: name %q", name, p.Name)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("strobe")
	if !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("got %v", err)
	}
	if !strings.Contains(err.Error(), `"strobe"`) {
		t.Errorf("error %q does not name the preset", err)
	}
}

func TestLookupCopies(t *testing.T) {
	p, _ := Lookup("blink-888")
	p.Program.Code[0] = 0
	q, _ := Lookup("blink-888")
	if q.Program.Code[0] != 0xff01 {
		t.Errorf("built-in table modified through Lookup: %#04x", q.Program.Code[0])
	}
}

func TestTiming(t *testing.T) {
	tests := []struct {
		name      string
		sysFreq   uint32
		loop      uint32
		sysCycles float64
		period    time.Duration
	}{
		{"blink-888", 296 * machine.MHz, 64, 64 * 65535, 14169729 * time.Nanosecond},
		{"blink-1500", 125 * machine.MHz, 4, 4 * 65535, 2097120 * time.Nanosecond},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Lookup(tc.name)
			if err != nil {
				t.Fatal(err)
			}
			if got := p.SysFreq(); got != tc.sysFreq {
				t.Errorf("clk_sys %d, want %d", got, tc.sysFreq)
			}
			tm, err := p.Timing()
			if err != nil {
				t.Fatal(err)
			}
			if tm.LoopCycles != tc.loop || tm.SysCycles != tc.sysCycles || tm.Period != tc.period {
				t.Errorf("got %+v, want loop %d, %v cycles, %v", tm, tc.loop, tc.sysCycles, tc.period)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base, _ := Lookup("blink-1500")
	tests := []struct {
		name   string
		modify func(p *Preset)
		err    string
	}{
		{"ok", func(p *Preset) {}, ""},
		{"slow crystal", func(p *Preset) { p.XOSCFreq = 500 * machine.KHz }, "outside 1-15 MHz"},
		{"fast crystal", func(p *Preset) { p.XOSCFreq = 20 * machine.MHz }, "outside 1-15 MHz"},
		{"vco", func(p *Preset) { p.PLLSys.VCOFreq = 300 * machine.MHz }, "pll_sys"},
		{"usb postdiv", func(p *Preset) { p.PLLUSB.PostDiv1 = 8 }, "pll_usb"},
		{"pin", func(p *Preset) { p.Pin = 30 }, "pin 30"},
		{"program", func(p *Preset) { p.Program.Code = nil }, "empty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			p.Program.Code = append([]uint16(nil), base.Program.Code...)
			tc.modify(&p)
			err := p.Validate()
			if tc.err == "" {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.err) {
				t.Errorf("got %v, want %q", err, tc.err)
			}
		})
	}
}

const customPreset = `
name: slow
xosc: 12000000
pll_sys: {refdiv: 1, vco: 1200000000, postdiv1: 6, postdiv2: 2}
pll_usb: {refdiv: 1, vco: 480000000, postdiv1: 5, postdiv2: 2}
pin: 15
clk_int: 128
program: |
  .program slow
      set pindirs, 1
  .wrap_target
      set pins, 1 [31]
      mov x, null [31]
      set pins, 0 [31]
  .wrap
`

func TestParse(t *testing.T) {
	p, err := Parse("slow.yaml", []byte(customPreset))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "slow" || p.Pin != 15 || p.ClkInt != 128 || p.ClkFrac != 0 {
		t.Errorf("got %+v", p)
	}
	if p.SysFreq() != 100*machine.MHz {
		t.Errorf("clk_sys %d", p.SysFreq())
	}
	want := []uint16{0xe081, 0xff01, 0xbf23, 0xff00}
	if !reflect.DeepEqual(p.Program.Code, want) {
		t.Errorf("code %#04x, want %#04x", p.Program.Code, want)
	}
	if p.Program.WrapTarget != 1 || p.Program.Wrap != 3 {
		t.Errorf("wrap %d..%d", p.Program.WrapTarget, p.Program.Wrap)
	}
	tm, err := p.Timing()
	if err != nil {
		t.Fatal(err)
	}
	if tm.LoopCycles != 96 {
		t.Errorf("loop %d cycles", tm.LoopCycles)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		err  error
	}{
		{"unknown key", "name: x\ncolour: red\n", nil},
		{"no name", "xosc: 12000000\n", nil},
		{"bad program", strings.Replace(customPreset, "set pins, 0", "set pc, 0", 1), pioasm.ErrBad},
		{"bad clocks", strings.Replace(customPreset, "vco: 1200000000", "vco: 2000000000", 1), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse("t.yaml", []byte(tc.src))
			if !errors.Is(err, ErrBadFile) {
				t.Fatalf("got %v", err)
			}
			if tc.err != nil && !errors.Is(err, tc.err) {
				t.Errorf("error %v does not wrap %v", err, tc.err)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, _ := Lookup(name)
			data, err := Marshal(p)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Parse(name+".yaml", data)
			if err != nil {
				t.Fatalf("%v\n%s", err, data)
			}
			if !reflect.DeepEqual(got, p) {
				t.Errorf("got %+v, want %+v\n%s", got, p, data)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	if p, err := Resolve("blink-888"); err != nil || p.Name != "blink-888" {
		t.Errorf("built-in: %v", err)
	}

	path := filepath.Join(t.TempDir(), "slow.yaml")
	if err := os.WriteFile(path, []byte(customPreset), 0o644); err != nil {
		t.Fatal(err)
	}
	if p, err := Resolve(path); err != nil || p.Name != "slow" {
		t.Errorf("file: %v", err)
	}

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("missing: %v", err)
	}
}
