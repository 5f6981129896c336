package mmio

import (
	"errors"
	"testing"
)

// memBus is a plain word store that understands the atomic aliases.
type memBus struct {
	words  map[uintptr]uint32
	stores int
}

func newMemBus() *memBus {
	return &memBus{words: make(map[uintptr]uint32)}
}

func (m *memBus) Load(addr uintptr) uint32 {
	return m.words[addr&^AliasMask]
}

func (m *memBus) Store(addr uintptr, value uint32) {
	m.stores++
	base := addr &^ AliasMask
	switch addr & AliasMask {
	case AliasRW:
		m.words[base] = value
	case AliasXOR:
		m.words[base] ^= value
	case AliasSet:
		m.words[base] |= value
	case AliasClr:
		m.words[base] &^= value
	}
}

func TestRegisterBits(t *testing.T) {
	bus := newMemBus()
	r := NewRegister32(bus, 0x4000c000)

	r.Set(0x0f)
	r.SetBits(0x30)
	if got := r.Get(); got != 0x3f {
		t.Errorf("SetBits: got %#x, want 0x3f", got)
	}
	r.ClearBits(0x03)
	if got := r.Get(); got != 0x3c {
		t.Errorf("ClearBits: got %#x, want 0x3c", got)
	}
	if !r.HasBits(0x44) {
		t.Error("HasBits: expected a match on any bit")
	}
	if r.HasBits(0x43) {
		t.Error("HasBits: no bit of 0x43 is set, expected false")
	}
	if r.HasAll(0x44) {
		t.Error("HasAll: bit 6 is clear, expected false")
	}
	if !r.HasAll(0x0c) {
		t.Error("HasAll: bits 2 and 3 are set, expected true")
	}
	r.ReplaceBits(0x5, 0x7, 4)
	if got := r.Get(); got != 0x5c {
		t.Errorf("ReplaceBits: got %#x, want 0x5c", got)
	}
}

func TestRegisterAliases(t *testing.T) {
	bus := newMemBus()
	r := NewRegister32(bus, 0x50200000)
	r.Set(0x100)

	r.AtomicSet(0x1)
	r.AtomicXor(0x101)
	r.AtomicClear(0x0)
	if got := r.Get(); got != 0x0 {
		t.Errorf("got %#x, want 0", got)
	}
	if bus.stores != 4 {
		t.Errorf("alias writes must not read back: %d stores", bus.stores)
	}
	if a := r.Alias(AliasClr).Alias(AliasSet).Addr(); a != 0x50202000 {
		t.Errorf("alias address %#x", a)
	}
}

func TestPollerBounded(t *testing.T) {
	bus := newMemBus()
	r := NewRegister32(bus, 0x40024004)
	p := Poller{Limit: 10}

	err := p.UntilSet(r, 1<<31)
	var hang *HangTimeout
	if !errors.As(err, &hang) {
		t.Fatalf("expected HangTimeout, got %v", err)
	}
	if hang.Addr != 0x40024004 || hang.Polls != 10 {
		t.Errorf("unexpected timeout details: %+v", hang)
	}

	r.Set(1 << 31)
	if err := p.UntilSet(r, 1<<31); err != nil {
		t.Errorf("UntilSet: %v", err)
	}
	if err := p.UntilEqual(r, 1<<31); err != nil {
		t.Errorf("UntilEqual: %v", err)
	}
}
