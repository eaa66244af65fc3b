package obs

import (
	"strconv"
	"sync/atomic"
	"time"
)

// IDGenerator creates monotonically increasing identifiers, used for
// client order ids. Seeding with wall time keeps ids unique across
// process restarts.
type IDGenerator struct {
	prefix string
	next   uint64
}

// NewIDGenerator returns a generator seeded with the given value.
func NewIDGenerator(prefix string, seed uint64) *IDGenerator {
	if seed == 0 {
		seed = uint64(time.Now().UTC().UnixNano())
	}
	return &IDGenerator{prefix: prefix, next: seed}
}

// Next returns the next identifier.
func (g *IDGenerator) Next() string {
	if g == nil {
		return ""
	}
	n := atomic.AddUint64(&g.next, 1)
	return g.prefix + strconv.FormatUint(n, 10)
}
