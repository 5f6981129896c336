package pio

import (
	"errors"
	"math/bits"
	"time"
)

var errClkDivOutOfRange = errors.New("pio: clock divider out of range")

// ClkDivFromFrequency calculates the CLKDIV register values
// to reach a given StateMachine cycle frequency. freq and cpuFreq are in Hz.
//
//	Frequency = clock freq / (CLKDIV_INT + CLKDIV_FRAC / 256)
func ClkDivFromFrequency(freq, cpuFreq uint32) (whole uint16, frac uint8, err error) {
	if freq == 0 {
		return 0, 0, errClkDivOutOfRange
	}
	div := uint64(cpuFreq) << 8 / uint64(freq)
	return splitClkDiv(div)
}

// ClkDivFromPeriod calculates the CLKDIV register values
// to reach a given StateMachine cycle period given the RP2040 CPU frequency.
// period is expected to be in nanoseconds.
func ClkDivFromPeriod(period, cpuFreq uint32) (whole uint16, frac uint8, err error) {
	// div = period * cpuFreq / 1e9, as 16.8 fixed point.
	hi, lo := bits.Mul64(uint64(period)*uint64(cpuFreq), 1<<8)
	if hi >= uint64(time.Second) {
		return 0, 0, errClkDivOutOfRange
	}
	div, _ := bits.Div64(hi, lo, uint64(time.Second))
	return splitClkDiv(div)
}

func splitClkDiv(div uint64) (whole uint16, frac uint8, err error) {
	// The divider runs from 1.0 to 65536.0; 65536 is encoded as an integer part of 0.
	if div < 1<<8 || div > 0x10000<<8 {
		return 0, 0, errClkDivOutOfRange
	}
	return uint16(div >> 8), uint8(div), nil
}

// DivisorFixed returns the divider as a 16.8 fixed point number of system
// clock cycles per state machine cycle.
func DivisorFixed(whole uint16, frac uint8) uint32 {
	w := uint32(whole)
	if w == 0 {
		w = 0x10000
	}
	return w<<8 | uint32(frac)
}

// LoopSysCycles returns how many system clock cycles, as 24.8 fixed point,
// loopCycles state machine cycles take at the given divider.
func LoopSysCycles(loopCycles uint32, whole uint16, frac uint8) uint64 {
	return uint64(loopCycles) * uint64(DivisorFixed(whole, frac))
}

// LoopPeriod returns the wall time of loopCycles state machine cycles with
// clk_sys at sysFreq Hz.
func LoopPeriod(loopCycles uint32, whole uint16, frac uint8, sysFreq uint32) time.Duration {
	if sysFreq == 0 {
		return 0
	}
	fixed := LoopSysCycles(loopCycles, whole, frac)
	return time.Duration(fixed * uint64(time.Second) / (uint64(sysFreq) << 8))
}
