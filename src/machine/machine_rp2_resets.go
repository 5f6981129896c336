package machine

import (
	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/mmio"
)

// Resets drives the per-block reset lines.
type Resets struct {
	hw   *rp.RESETS_Type
	poll mmio.Poller
}

// NewResets returns the reset controller behind hw.
func NewResets(hw *rp.RESETS_Type, poll mmio.Poller) *Resets {
	return &Resets{hw: hw, poll: poll}
}

// Reset resets hardware blocks specified
// by the bit pattern in bits. Other blocks are left alone.
func (r *Resets) Reset(bits uint32) {
	r.hw.RESET.SetBits(bits)
}

// Unreset brings hardware blocks specified by the
// bit pattern in bits out of reset.
func (r *Resets) Unreset(bits uint32) {
	r.hw.RESET.ClearBits(bits)
}

// UnresetWait brings specified hardware blocks
// specified by the bit pattern in bits
// out of reset and waits until every one of them reports done.
func (r *Resets) UnresetWait(bits uint32) error {
	r.Unreset(bits)
	return r.poll.UntilSet(r.hw.RESET_DONE, bits)
}

// State returns the current RESET register.
func (r *Resets) State() uint32 {
	return r.hw.RESET.Get()
}
