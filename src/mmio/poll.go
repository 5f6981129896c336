package mmio

import "fmt"

// HangTimeout is returned by a bounded poll whose condition never came true.
// Production (tinygo) builds never return it: their polls spin forever, which
// is the fail-stop contract of the hardware.
type HangTimeout struct {
	Addr  uintptr
	Mask  uint32
	Want  uint32
	Last  uint32
	Polls uint32
}

func (e *HangTimeout) Error() string {
	return fmt.Sprintf("mmio: register %#08x: wanted %#x under mask %#x, last read %#x after %d polls",
		e.Addr, e.Want, e.Mask, e.Last, e.Polls)
}

// Poller busy-waits on status registers.
//
// Limit caps the number of reads before a poll gives up with *HangTimeout.
// It is only honoured in host builds; zero means wait forever.
type Poller struct {
	Limit uint32
}

// Until spins until r&mask == want.
func (p Poller) Until(r Register32, mask, want uint32) error {
	if !boundedPolls || p.Limit == 0 {
		for r.Get()&mask != want {
		}
		return nil
	}
	var last uint32
	for i := uint32(0); i < p.Limit; i++ {
		last = r.Get()
		if last&mask == want {
			return nil
		}
	}
	return &HangTimeout{Addr: r.addr, Mask: mask, Want: want, Last: last, Polls: p.Limit}
}

// UntilSet spins until all bits are set.
func (p Poller) UntilSet(r Register32, bits uint32) error {
	return p.Until(r, bits, bits)
}

// UntilEqual spins until the register reads exactly value.
func (p Poller) UntilEqual(r Register32, value uint32) error {
	return p.Until(r, 0xffffffff, value)
}
