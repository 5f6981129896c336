//go:build tinygo

package machine

import "device/arm"

// Park stops the calling thread forever. Started peripherals keep running.
func Park() {
	for {
		arm.Asm("wfi")
	}
}
