//go:build !tinygo

package preset

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/machine/pio/pioasm"
)

var ErrBadFile = errors.New("preset: bad preset file")

// file is the on-disk form of a Preset. The program is kept as assembler
// source.
type file struct {
	Name    string            `yaml:"name"`
	XOSC    uint32            `yaml:"xosc"`
	PLLSys  machine.PLLConfig `yaml:"pll_sys"`
	PLLUSB  machine.PLLConfig `yaml:"pll_usb"`
	Pin     uint8             `yaml:"pin"`
	ClkInt  uint16            `yaml:"clk_int"`
	ClkFrac uint8             `yaml:"clk_frac"`
	Program string            `yaml:"program"`
}

// Parse decodes a preset from YAML. Unknown keys are errors; the program
// source is assembled and the result validated.
func Parse(filename string, data []byte) (Preset, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrBadFile, filename, err)
	}
	if f.Name == "" {
		return Preset{}, fmt.Errorf("%w: %s: missing name", ErrBadFile, filename)
	}
	prog, err := pioasm.Assemble(filename+":program", f.Program)
	if err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrBadFile, filename, err)
	}
	p := Preset{
		Name:     f.Name,
		XOSCFreq: f.XOSC,
		PLLSys:   f.PLLSys,
		PLLUSB:   f.PLLUSB,
		Pin:      machine.Pin(f.Pin),
		ClkInt:   f.ClkInt,
		ClkFrac:  f.ClkFrac,
		Program:  prog,
	}
	if err := p.Validate(); err != nil {
		return Preset{}, fmt.Errorf("%w: %s: %w", ErrBadFile, filename, err)
	}
	return p, nil
}

// Load reads and parses the preset file at path.
func Load(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, err
	}
	return Parse(path, data)
}

// Resolve returns the built-in preset called arg, or loads arg as a file when
// no built-in has that name.
func Resolve(arg string) (Preset, error) {
	p, err := Lookup(arg)
	if err == nil {
		return p, nil
	}
	if _, statErr := os.Stat(arg); statErr != nil {
		return Preset{}, err
	}
	return Load(arg)
}

// Marshal encodes p as YAML that Parse accepts.
func Marshal(p Preset) ([]byte, error) {
	f := file{
		Name:    p.Name,
		XOSC:    p.XOSCFreq,
		PLLSys:  p.PLLSys,
		PLLUSB:  p.PLLUSB,
		Pin:     uint8(p.Pin),
		ClkInt:  p.ClkInt,
		ClkFrac: p.ClkFrac,
		Program: pioasm.Format(p.Program),
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
