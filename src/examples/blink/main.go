//go:build tinygo && rp2040

package main

// Brings the clocks up from the crystal and leaves PIO0 blinking the on-board
// LED. Diagnostics go to the default println output.

import (
	"github.com/kahara/pioblink/src/boot"
	"github.com/kahara/pioblink/src/device/rp"
	"github.com/kahara/pioblink/src/diag"
	"github.com/kahara/pioblink/src/machine"
	"github.com/kahara/pioblink/src/mmio"
	"github.com/kahara/pioblink/src/preset"
)

// presetName can be overridden with -ldflags="-X main.presetName=blink-888".
var presetName = preset.Default

func main() {
	log := diag.New(diag.FuncSink(func(stamp uint64, msg string) {
		println("[", stamp, "]", msg)
	}))

	p, err := rp.Take(mmio.Hardware)
	if err != nil {
		fail(err)
	}
	ps, err := preset.Lookup(presetName)
	if err != nil {
		fail(err)
	}
	if _, err := boot.Run(p, ps, mmio.Poller{}, log); err != nil {
		fail(err)
	}
	machine.Park()
}

func fail(err error) {
	println("boot:", err.Error())
	machine.Park()
}
