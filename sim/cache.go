// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: cache.go — Line-granular cache model implementing oracle.Backend
//
// Purpose:
//   - Lets the oracle, the mistrainers and the leak loop run without timing hardware.
//   - A line is warm after any load or touch and cold after a flush.
//
// Notes:
//   - Latency = hit or miss constant + uniform jitter in [0, Jitter].
//   - Spurious models a stray prefetch or sibling-core hit: a cold line reads warm.
//   - Counters let tests assert how many flushes and fences a component issued.
// ─────────────────────────────────────────────────────────────────────────────

package sim

import "specleak/constants"

// Cache is a single-level cache model. Not safe for concurrent use.
type Cache struct {
	warm  map[uintptr]struct{}
	noise *Noise

	Hit      uint64  // warm round trip
	Miss     uint64  // cold round trip
	Jitter   uint64  // max additive noise per read
	Spurious float64 // probability a cold read reports warm

	Flushes uint64
	Fences  uint64
	Reads   uint64
	Touches uint64
}

// NewCache returns a cache with the default simulated latencies and no spurious hits.
func NewCache(seed uint64) *Cache {
	return &Cache{
		warm:   make(map[uintptr]struct{}, constants.OracleSize),
		noise:  NewNoise(seed),
		Hit:    constants.SimHitLatency,
		Miss:   constants.SimMissLatency,
		Jitter: constants.SimJitter,
	}
}

//go:nosplit
//go:inline
func line(addr uintptr) uintptr {
	return addr &^ (constants.CacheLineSize - 1)
}

// FlushLine marks the line holding addr cold.
func (c *Cache) FlushLine(addr uintptr) {
	delete(c.warm, line(addr))
	c.Flushes++
}

// Fence only counts; the model has no reordering to prevent.
func (c *Cache) Fence() {
	c.Fences++
}

// ReadLatency reports the modeled round trip for addr and leaves its line warm.
func (c *Cache) ReadLatency(addr uintptr) uint64 {
	l := line(addr)
	c.Reads++
	_, warm := c.warm[l]
	if !warm {
		warm = c.noise.Chance(c.Spurious)
	}
	lat := c.Miss
	if warm {
		lat = c.Hit
	}
	lat += c.noise.Intn(c.Jitter + 1)
	c.warm[l] = struct{}{}
	return lat
}

// Touch warms the line holding addr.
func (c *Cache) Touch(addr uintptr) {
	c.warm[line(addr)] = struct{}{}
	c.Touches++
}

// Warm reports whether the line holding addr is currently cached.
func (c *Cache) Warm(addr uintptr) bool {
	_, ok := c.warm[line(addr)]
	return ok
}

// WarmLines returns the number of cached lines.
func (c *Cache) WarmLines() int { return len(c.warm) }
