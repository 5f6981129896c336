//go:build !tinygo

package mmio

// Host builds run against the simulator, where a bounded poll turns a hang
// into a reportable error.
const boundedPolls = true
