// Package partition maps group keys onto a fixed set of engine lanes.
package partition

import "github.com/spaolacci/murmur3"

// DefaultLanes is the lane count used when none is configured.
const DefaultLanes = 16

// For returns the lane for key in [0, n).
// Stable and deterministic: the same key always maps to the same lane for a given n.
func For(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(murmur3.Sum32([]byte(key)) % uint32(n))
}
