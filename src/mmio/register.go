// Package mmio gives typed access to memory-mapped peripheral registers.
//
// Registers are addressed through a Bus so the same driver code runs against
// the real chip (tinygo builds) and against a register-level simulator on the
// host.
package mmio

// Bus is the memory-mapped I/O fabric registers live on. All accesses are
// aligned 32-bit words.
type Bus interface {
	Load(addr uintptr) uint32
	Store(addr uintptr, value uint32)
}

// Atomic register access aliases.
//
// Each peripheral register block is allocated 4kB of address space, with
// registers accessed using one of 4 methods, selected by address decode.
//   - Addr + 0x0000 : normal read write access
//   - Addr + 0x1000 : atomic XOR on write
//   - Addr + 0x2000 : atomic bitmask set on write
//   - Addr + 0x3000 : atomic bitmask clear on write
const (
	AliasRW  uintptr = 0x0 << 12
	AliasXOR uintptr = 0x1 << 12
	AliasSet uintptr = 0x2 << 12
	AliasClr uintptr = 0x3 << 12

	AliasMask uintptr = 0x3 << 12
)

// Register32 is a single 32-bit register on a bus.
type Register32 struct {
	bus  Bus
	addr uintptr
}

// NewRegister32 returns the register at addr on bus.
func NewRegister32(bus Bus, addr uintptr) Register32 {
	return Register32{bus: bus, addr: addr}
}

// Addr returns the address of the register.
func (r Register32) Addr() uintptr {
	return r.addr
}

// Get returns the value in the register.
func (r Register32) Get() uint32 {
	return r.bus.Load(r.addr)
}

// Set writes value to the register.
func (r Register32) Set(value uint32) {
	r.bus.Store(r.addr, value)
}

// SetBits reads the register, sets the given bits, and writes it back.
func (r Register32) SetBits(value uint32) {
	r.Set(r.Get() | value)
}

// ClearBits reads the register, clears the given bits, and writes it back.
func (r Register32) ClearBits(value uint32) {
	r.Set(r.Get() &^ value)
}

// HasBits reports whether any of the given bits is set.
func (r Register32) HasBits(value uint32) bool {
	return r.Get()&value != 0
}

// HasAll reports whether every one of the given bits is set.
func (r Register32) HasAll(value uint32) bool {
	return r.Get()&value == value
}

// ReplaceBits replaces the bits under mask<<pos with value<<pos.
func (r Register32) ReplaceBits(value uint32, mask uint32, pos uint8) {
	r.Set(r.Get()&^(mask<<pos) | value<<pos)
}

// Alias returns the same register seen through one of the atomic access
// aliases.
func (r Register32) Alias(alias uintptr) Register32 {
	return Register32{bus: r.bus, addr: r.addr&^AliasMask | alias}
}

// AtomicSet sets bits with a single write to the SET alias.
func (r Register32) AtomicSet(bits uint32) {
	r.Alias(AliasSet).Set(bits)
}

// AtomicClear clears bits with a single write to the CLR alias.
func (r Register32) AtomicClear(bits uint32) {
	r.Alias(AliasClr).Set(bits)
}

// AtomicXor toggles bits with a single write to the XOR alias.
func (r Register32) AtomicXor(bits uint32) {
	r.Alias(AliasXOR).Set(bits)
}
