package pio_test

import (
	"errors"
	"testing"

	"golang.org/x/exp/slices"

	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/machine/pio"
	"github.com/kahara/pioblink/src/mmio"
	"github.com/kahara/pioblink/src/sim"
)

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		word  uint16
		instr pio.Instruction
		text  string
	}{
		{0xe099, pio.Set{Dest: pio.SetPinDirs, Data: 25}, "set pindirs, 25"},
		{0xff01, pio.Set{Dest: pio.SetPins, Data: 1, Delay: 31}, "set pins, 1 [31]"},
		{0xff00, pio.Set{Dest: pio.SetPins, Data: 0, Delay: 31}, "set pins, 0 [31]"},
		{0xbf23, pio.Mov{Dest: pio.MovDestX, Source: pio.MovSrcNull, Delay: 31}, "mov x, null [31]"},
		{0xa042, pio.Nop(), "nop"},
		{0xa02b, pio.Mov{Dest: pio.MovDestX, Op: pio.MovInvert, Source: pio.MovSrcNull}, "mov x, !null"},
		{0x0000, pio.Jmp{Addr: 0}, "jmp 0"},
		{0x0045, pio.Jmp{Cond: pio.JmpXNZeroPostDec, Addr: 5}, "jmp x--, 5"},
		{0x0125, pio.Jmp{Cond: pio.JmpXZero, Addr: 5, Delay: 1}, "jmp !x, 5 [1]"},
		{0x2083, pio.Wait{Polarity: true, Source: pio.WaitGPIO, Index: 3}, "wait 1 gpio 3"},
		{0x20c2, pio.Wait{Polarity: true, Source: pio.WaitIRQ, Index: 2}, "wait 1 irq 2"},
		{0x4000, pio.In{Source: pio.InPins}, "in pins, 32"},
		{0x6028, pio.Out{Dest: pio.OutX, BitCount: 8}, "out x, 8"},
		{0x8020, pio.Push{Block: true}, "push block"},
		{0x8060, pio.Push{IfFull: true, Block: true}, "push iffull block"},
		{0x8080, pio.Pull{}, "pull noblock"},
		{0xc003, pio.Irq{Index: 3}, "irq 3"},
		{0xc043, pio.Irq{Clear: true, Index: 3}, "irq clear 3"},
		{0xc022, pio.Irq{Wait: true, Index: 2}, "irq wait 2"},
		{0xe03f, pio.Set{Dest: pio.SetX, Data: 31}, "set x, 31"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			if got := tc.instr.Encode(); got != tc.word {
				t.Errorf("Encode() = %#04x, want %#04x", got, tc.word)
			}
			got := pio.Decode(tc.word)
			if got != tc.instr {
				t.Errorf("Decode(%#04x) = %#v, want %#v", tc.word, got, tc.instr)
			}
			if s := got.String(); s != tc.text {
				t.Errorf("String() = %q, want %q", s, tc.text)
			}
		})
	}
}

func TestDecodeReserved(t *testing.T) {
	// mov with destination 3 is reserved.
	if got := pio.Decode(0xa062).String(); got != "mov ?3, y" {
		t.Errorf("got %q", got)
	}
	// set with destination 3 is reserved.
	if got := pio.Decode(0xe061).String(); got != "set ?3, 1" {
		t.Errorf("got %q", got)
	}
}

func TestDisassemble(t *testing.T) {
	got := pio.Disassemble([]uint16{0xff01, 0xff00})
	want := []string{"set pins, 1 [31]", "set pins, 0 [31]"}
	if !slices.Equal(got, want) {
		t.Errorf("got %q", got)
	}
}

func TestProgramValidate(t *testing.T) {
	long := make([]pio.Instruction, pio.InstructionMemorySize+1)
	for i := range long {
		long[i] = pio.Nop()
	}
	tests := []struct {
		name string
		prog pio.Program
		ok   bool
	}{
		{"blink", pio.NewProgram("blink", pio.Set{Data: 1}, pio.Set{}), true},
		{"empty", pio.Program{Name: "empty", Origin: -1}, false},
		{"too long", pio.NewProgram("long", long...), false},
		{"origin overflow", pio.Program{Name: "o", Origin: 30, Wrap: 2, Code: []uint16{0xa042, 0xa042, 0xa042}}, false},
		{"wrap outside", pio.Program{Name: "w", Origin: -1, Wrap: 2, Code: []uint16{0xa042, 0xa042}}, false},
		{"wrap inverted", pio.Program{Name: "w", Origin: -1, WrapTarget: 1, Wrap: 0, Code: []uint16{0xa042, 0xa042}}, false},
		{"jump outside", pio.NewProgram("j", pio.Nop(), pio.Jmp{Addr: 2}), false},
		{"jump inside", pio.NewProgram("j", pio.Nop(), pio.Jmp{Addr: 1}), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.prog.Validate()
			if (err == nil) != tc.ok {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestLoopCycles(t *testing.T) {
	tests := []struct {
		name   string
		prog   pio.Program
		cycles uint32
		err    error
	}{
		{"two with delay", pio.NewProgram("b",
			pio.Set{Data: 1, Delay: 31},
			pio.Set{Data: 0, Delay: 31}), 64, nil},
		{"four single cycle", pio.NewProgram("b",
			pio.Set{Data: 1}, pio.Nop(),
			pio.Set{Data: 0}, pio.Nop()), 4, nil},
		{"jump back past setup", pio.NewProgram("b",
			pio.Set{Dest: pio.SetPinDirs, Data: 1},
			pio.Set{Data: 1, Delay: 3},
			pio.Set{Data: 0, Delay: 3},
			pio.Jmp{Addr: 1}), 9, nil},
		{"counted loop", pio.NewProgram("b",
			pio.Set{Dest: pio.SetX, Data: 3},
			pio.Jmp{Cond: pio.JmpXNZeroPostDec, Addr: 1}), 0, pio.ErrNotPeriodic},
		{"wait", pio.NewProgram("b",
			pio.Wait{Polarity: true, Source: pio.WaitGPIO, Index: 2}), 0, pio.ErrNotPeriodic},
		{"pull", pio.NewProgram("b", pio.Pull{Block: true}), 0, pio.ErrNotPeriodic},
		{"mov pc", pio.NewProgram("b", pio.Mov{Dest: pio.MovDestPC, Source: pio.MovSrcX}), 0, pio.ErrNotPeriodic},
		{"irq wait", pio.NewProgram("b", pio.Irq{Wait: true}), 0, pio.ErrNotPeriodic},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.prog.LoopCycles()
			if !errors.Is(err, tc.err) {
				t.Fatalf("err = %v, want %v", err, tc.err)
			}
			if got != tc.cycles {
				t.Errorf("loop %d cycles, want %d", got, tc.cycles)
			}
		})
	}
}

func TestClkDivFromFrequency(t *testing.T) {
	tests := []struct {
		freq, cpu uint32
		whole     uint16
		frac      uint8
		ok        bool
	}{
		{125_000_000, 125_000_000, 1, 0, true},
		{1_000_000, 125_000_000, 125, 0, true},
		{3_000_000, 125_000_000, 41, 170, true},
		{2_000, 125_000_000, 62500, 0, true},
		{250_000_000, 125_000_000, 0, 0, false},
		{1, 125_000_000, 0, 0, false},
		{0, 125_000_000, 0, 0, false},
	}
	for _, tc := range tests {
		whole, frac, err := pio.ClkDivFromFrequency(tc.freq, tc.cpu)
		if (err == nil) != tc.ok {
			t.Errorf("ClkDivFromFrequency(%d, %d): err %v", tc.freq, tc.cpu, err)
			continue
		}
		if whole != tc.whole || frac != tc.frac {
			t.Errorf("ClkDivFromFrequency(%d, %d) = %d.%d, want %d.%d", tc.freq, tc.cpu, whole, frac, tc.whole, tc.frac)
		}
	}
}

func TestClkDivFromPeriod(t *testing.T) {
	whole, frac, err := pio.ClkDivFromPeriod(1000, 125_000_000)
	if err != nil || whole != 125 || frac != 0 {
		t.Errorf("1us at 125MHz: %d.%d, %v", whole, frac, err)
	}
	whole, frac, err = pio.ClkDivFromPeriod(20, 125_000_000)
	if err != nil || whole != 2 || frac != 128 {
		t.Errorf("20ns at 125MHz: %d.%d, %v", whole, frac, err)
	}
	if _, _, err := pio.ClkDivFromPeriod(0xffffffff, 0xffffffff); err == nil {
		t.Error("no error for an overflowing period")
	}
}

func TestLoopPeriod(t *testing.T) {
	if got := pio.DivisorFixed(0, 0); got != 0x10000<<8 {
		t.Errorf("DivisorFixed(0, 0) = %#x", got)
	}
	if got := pio.DivisorFixed(2, 0x80); got != 0x280 {
		t.Errorf("DivisorFixed(2, 0x80) = %#x", got)
	}
	if got := pio.LoopSysCycles(4, 65535, 0); got != 4*65535<<8 {
		t.Errorf("LoopSysCycles = %d", got)
	}
	// 4 * 65535 cycles at 125 MHz.
	if got := pio.LoopPeriod(4, 65535, 0, 125_000_000); got.Nanoseconds() != 2_097_120 {
		t.Errorf("LoopPeriod = %v", got)
	}
	if got := pio.LoopPeriod(4, 65535, 0, 0); got != 0 {
		t.Errorf("LoopPeriod at 0 Hz = %v", got)
	}
}

func newBlock(t *testing.T) (*sim.Chip, *rp.Peripherals, *pio.Block) {
	t.Helper()
	c := sim.New(sim.Options{})
	p := rp.Steal(c)
	resets := machine.NewResets(p.RESETS, mmio.Poller{Limit: 100})
	if err := resets.UnresetWait(rp.RESETS_RESET_PIO0 | rp.RESETS_RESET_IO_BANK0); err != nil {
		t.Fatal(err)
	}
	return c, p, pio.NewBlock(p.PIO0, 0)
}

func TestLoadProgram(t *testing.T) {
	c, _, block := newBlock(t)

	blink := pio.NewProgram("blink",
		pio.Set{Data: 1, Delay: 31},
		pio.Set{Data: 0, Delay: 31})
	off, err := block.LoadProgram(blink)
	if err != nil {
		t.Fatal(err)
	}
	if off != 30 {
		t.Errorf("blink loaded at %d, want 30", off)
	}

	loop := pio.NewProgram("loop",
		pio.Set{Dest: pio.SetX, Data: 1},
		pio.Jmp{Addr: 0})
	off, err = block.LoadProgram(loop)
	if err != nil {
		t.Fatal(err)
	}
	if off != 28 {
		t.Errorf("loop loaded at %d, want 28", off)
	}

	mem := c.InstructionMemory()
	want := map[int]uint16{28: 0xe021, 29: pio.EncodeJmp(28), 30: 0xff01, 31: 0xff00}
	for slot, w := range want {
		if mem[slot] != w {
			t.Errorf("slot %d = %#04x, want %#04x", slot, mem[slot], w)
		}
	}
	if got := block.UsedSpace(); got != 0xf0000000 {
		t.Errorf("used space %#x", got)
	}

	fixed := blink
	fixed.Origin = 29
	if _, err := block.LoadProgram(fixed); !errors.Is(err, pio.ErrNoSpaceAtOffset) {
		t.Errorf("overlapping origin: %v", err)
	}
	fixed.Origin = 0
	if off, err := block.LoadProgram(fixed); err != nil || off != 0 {
		t.Errorf("origin 0: %d, %v", off, err)
	}

	big := make([]pio.Instruction, 27)
	for i := range big {
		big[i] = pio.Nop()
	}
	if _, err := block.LoadProgram(pio.NewProgram("big", big...)); !errors.Is(err, pio.ErrOutOfProgramSpace) {
		t.Errorf("program larger than the free space: %v", err)
	}
	if len(c.Faults()) != 0 {
		t.Errorf("faults: %v", c.Faults())
	}
}

func TestLoadRawWords(t *testing.T) {
	c, _, block := newBlock(t)
	words := []uint16{0xe099, 0xff01, 0xbf23, 0xff00}
	for i, w := range words {
		block.Load(uint8(i), w)
	}
	mem := c.InstructionMemory()
	if !slices.Equal(mem[:len(words)], words) {
		t.Errorf("memory %#04x", mem[:len(words)])
	}
	if block.UsedSpace() != 0 {
		t.Error("raw loads marked space as used")
	}
}

func TestStartOrder(t *testing.T) {
	c, p, block := newBlock(t)
	prog := pio.NewProgram("blink",
		pio.Set{Data: 1, Delay: 31},
		pio.Set{Data: 0, Delay: 31})
	off, err := block.LoadProgram(prog)
	if err != nil {
		t.Fatal(err)
	}
	if err := block.BindPin(machine.NewGPIO(p.IO_BANK0), machine.LED); err != nil {
		t.Fatal(err)
	}
	sm := block.StateMachine(0)
	sm.Configure(machine.LED, 1, 10, 0)
	sm.SetWrap(off+prog.WrapTarget, off+prog.Wrap)
	before := len(c.Events())
	sm.Start(off)

	var kinds []sim.EventKind
	for _, e := range c.Events()[before:] {
		if e.SM != 0 {
			t.Errorf("event for state machine %d", e.SM)
		}
		kinds = append(kinds, e.Kind)
	}
	want := []sim.EventKind{sim.EventRestart, sim.EventClkDivRestart, sim.EventExec, sim.EventEnable}
	if !slices.Equal(kinds, want) {
		t.Fatalf("events %v, want %v", kinds, want)
	}
	if !sm.IsEnabled() {
		t.Error("state machine not enabled")
	}
	if got := c.PC(0); got != off {
		t.Errorf("pc %d, want %d", got, off)
	}

	pinctrl := sm.HW().PINCTRL.Get()
	if base := (pinctrl & rp.PIO_SM0_PINCTRL_SET_BASE_Msk) >> rp.PIO_SM0_PINCTRL_SET_BASE_Pos; base != uint32(machine.LED) {
		t.Errorf("set base %d", base)
	}
	if count := (pinctrl & rp.PIO_SM0_PINCTRL_SET_COUNT_Msk) >> rp.PIO_SM0_PINCTRL_SET_COUNT_Pos; count != 1 {
		t.Errorf("set count %d", count)
	}

	c.Run(64 * 10 * 4)
	w, err := c.Waveform(int(machine.LED))
	if err != nil {
		t.Fatal(err)
	}
	if w.Period != 640 {
		t.Errorf("period %v, want 640", w.Period)
	}

	sm.SetEnabled(false)
	if sm.IsEnabled() {
		t.Error("still enabled")
	}
}

func TestStateMachineIndexPanics(t *testing.T) {
	_, _, block := newBlock(t)
	defer func() {
		if recover() == nil {
			t.Error("no panic for state machine 4")
		}
	}()
	block.StateMachine(4)
}
