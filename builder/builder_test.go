package builder

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/machine/pio"
	"github.com/kahara/pioblink/src/machine/pio/pioasm"
	"github.com/kahara/pioblink/src/preset"
)

func simulate(t *testing.T, name string) *Simulation {
	t.Helper()
	ps, err := preset.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Simulate(ps, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Faults) != 0 {
		t.Fatalf("faults: %v", s.Faults)
	}
	return s
}

func TestSimulate(t *testing.T) {
	s := simulate(t, "blink-1500")
	if s.Clocks.Sys != 125*machine.MHz || s.Clocks.USB != 48*machine.MHz {
		t.Errorf("clocks %+v", s.Clocks)
	}
	if s.Timing == nil || s.Timing.SysCycles != 4*65535 {
		t.Fatalf("timing %+v", s.Timing)
	}
	if s.Cycles != 5*4*65535+1 {
		t.Errorf("ran %d cycles", s.Cycles)
	}
	if s.Waveform == nil || s.Waveform.Period != 4*65535 {
		t.Fatalf("waveform %v", s.Waveform)
	}
	if s.Waveform.Periods != 5 {
		t.Errorf("%d periods", s.Waveform.Periods)
	}
	if !slices.Equal(s.Code(), s.Preset.Program.Code) {
		t.Errorf("loaded %#04x", s.Code())
	}
}

func TestSimulateNotPeriodic(t *testing.T) {
	ps, _ := preset.Lookup("blink-1500")
	// Waits on a pin nothing drives, so it never toggles.
	ps.Program = pio.NewProgram("stuck",
		pio.Wait{Polarity: true, Source: pio.WaitGPIO, Index: 3},
		pio.Set{Dest: pio.SetPins, Data: 1},
		pio.Set{Dest: pio.SetPins, Data: 0})
	s, err := Simulate(ps, 1<<16, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Timing != nil || s.Waveform != nil {
		t.Errorf("timing %v waveform %v", s.Timing, s.Waveform)
	}
}

func TestHexRoundTrip(t *testing.T) {
	s := simulate(t, "blink-888")
	var buf bytes.Buffer
	if err := WriteHex(&buf, s); err != nil {
		t.Fatal(err)
	}
	text := buf.String()
	// Extended linear address of the PIO0 block.
	if !strings.Contains(strings.ToLower(text), ":0200000450208a") {
		t.Errorf("no upper address record in %q", text)
	}

	off, code, err := ReadHex(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	if off != s.Offset || !slices.Equal(code, []uint16{0xff01, 0xff00}) {
		t.Errorf("read back offset %d code %#04x", off, code)
	}
}

func TestReadHexRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"garbage", "hello\n"},
		// 4 bytes at 0x20000000, far from the PIO block.
		{"elsewhere", ":020000042000DA\n:0400000001000000FB\n:00000001FF\n"},
		{"wide word", ":0200000450208A\n:04004800010001FFB3\n:00000001FF\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ReadHex(strings.NewReader(tc.src)); err == nil {
				t.Error("accepted")
			}
		})
	}
}

func TestRenderReport(t *testing.T) {
	s := simulate(t, "blink-1500")
	var buf bytes.Buffer
	if err := RenderReport(&buf, s); err != nil {
		t.Fatal(err)
	}
	html := buf.String()
	for _, want := range []string{
		"<title>blink-1500</title>",
		"clk_usb",
		"<code>blink4</code> on pin 25, clock divider 65535.000",
		"125.000000",
		"48.000000",
		"set pins, 1",
		"nop",
		"wrap target",
		"262140 system cycles",
		"2.09712ms",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report lacks %q", want)
		}
	}
	if strings.Contains(html, "Faults") {
		t.Error("report lists faults")
	}
}

func TestWriteReport(t *testing.T) {
	s := simulate(t, "blink-888")
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteReport(s, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("blink-888")) {
		t.Error("report does not name the preset")
	}
}

func TestBundle(t *testing.T) {
	s := simulate(t, "blink-1500")
	var a, b bytes.Buffer
	if err := WriteBundle(&a, s); err != nil {
		t.Fatal(err)
	}
	if err := WriteBundle(&b, simulate(t, "blink-1500")); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("bundle is not reproducible")
	}
	if !bytes.HasPrefix(a.Bytes(), []byte("!<arch>\n")) {
		t.Errorf("not an ar archive: %q", a.Bytes()[:8])
	}

	members, err := ReadBundle(bytes.NewReader(a.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{BundleHex, BundleSource, BundlePreset, BundleReport} {
		if len(members[name]) == 0 {
			t.Errorf("member %s missing", name)
		}
	}

	off, code, err := ReadHex(bytes.NewReader(members[BundleHex]))
	if err != nil || off != s.Offset || len(code) != 4 {
		t.Errorf("hex member: offset %d code %#04x err %v", off, code, err)
	}
	prog, err := pioasm.Assemble(BundleSource, string(members[BundleSource]))
	if err != nil || !slices.Equal(prog.Code, s.Preset.Program.Code) {
		t.Errorf("source member: %v", err)
	}
	ps, err := preset.Parse(BundlePreset, members[BundlePreset])
	if err != nil || ps.Name != "blink-1500" {
		t.Errorf("preset member: %v", err)
	}
}
