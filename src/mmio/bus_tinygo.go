//go:build tinygo

package mmio

import (
	"runtime/volatile"
	"unsafe"
)

// Hardware is the bus of the chip the program is running on.
var Hardware = &hardwareBus{}

type hardwareBus struct {
	claimed bool
}

func (*hardwareBus) Load(addr uintptr) uint32 {
	return (*volatile.Register32)(unsafe.Pointer(addr)).Get()
}

// Claim reports whether the chip's peripherals were still unclaimed and
// claims them. Start-up runs on a single thread.
func (b *hardwareBus) Claim() bool {
	if b.claimed {
		return false
	}
	b.claimed = true
	return true
}

func (*hardwareBus) Store(addr uintptr, value uint32) {
	(*volatile.Register32)(unsafe.Pointer(addr)).Set(value)
}
