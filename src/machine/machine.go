// Package machine brings an RP2040 from reset to a known clock tree.
//
// Every register block is reached through a handle built from an
// rp.Peripherals value, so each block has exactly one driver. Status waits go
// through an mmio.Poller: unbounded on hardware, optionally bounded on the
// host.
package machine

const (
	KHz = 1000
	MHz = 1000000
)
