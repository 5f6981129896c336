package builder

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"os"

	"github.com/kahara/pioblink/src/machine/pio"
)

//go:embed report.html
var reportBase string

// listingLine is one occupied instruction memory slot.
type listingLine struct {
	Slot       uint8
	Word       string
	Text       string
	Cycles     uint32
	WrapTarget bool
	Wrap       bool
}

// WriteReport writes the HTML report of s to filename.
func WriteReport(s *Simulation, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not open report file: %w", err)
	}
	defer f.Close()
	return RenderReport(f, s)
}

// RenderReport writes the HTML report of s: the clock tree, the program as
// loaded and the expected and simulated blink period.
func RenderReport(w io.Writer, s *Simulation) error {
	tmpl, err := template.New("report").Parse(reportBase)
	if err != nil {
		return err
	}

	// Prepare data for the report.
	prog := s.Preset.Program
	listing := []listingLine{}
	for i, word := range s.Code() {
		instr := pio.Decode(word)
		listing = append(listing, listingLine{
			Slot:       s.Offset + uint8(i),
			Word:       fmt.Sprintf("%04x", word),
			Text:       instr.String(),
			Cycles:     instr.Cycles(),
			WrapTarget: i == int(prog.WrapTarget),
			Wrap:       i == int(prog.Wrap),
		})
	}
	clocks := []struct {
		Name string
		MHz  string
	}{
		{"xosc", mhz(s.Preset.XOSCFreq)},
		{"pll_sys", mhz(s.Clocks.PLLSys)},
		{"pll_usb", mhz(s.Clocks.PLLUSB)},
		{"clk_ref", mhz(s.Clocks.Ref)},
		{"clk_sys", mhz(s.Clocks.Sys)},
		{"clk_usb", mhz(s.Clocks.USB)},
	}

	// Write the report.
	err = tmpl.Execute(w, map[string]any{
		"name":     s.Preset.Name,
		"program":  prog.Name,
		"pin":      s.Preset.Pin,
		"clkdiv":   fmt.Sprintf("%d.%03d", s.Preset.ClkInt, uint32(s.Preset.ClkFrac)*1000/256),
		"clocks":   clocks,
		"listing":  listing,
		"timing":   s.Timing,
		"waveform": s.Waveform,
		"cycles":   s.Cycles,
		"faults":   s.Faults,
	})
	if err != nil {
		return fmt.Errorf("could not create report file: %w", err)
	}
	return nil
}

func mhz(hz uint32) string {
	return fmt.Sprintf("%d.%06d", hz/1000000, hz%1000000)
}
