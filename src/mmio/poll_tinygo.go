//go:build tinygo

package mmio

const boundedPolls = false
