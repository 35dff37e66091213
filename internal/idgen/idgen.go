// Package idgen generates the 64-bit identifiers WAMP uses for sessions,
// subscriptions, registrations, invocations, and publications. Per
// spec.md §3, ids live in [1, 2^53], 0 is reserved as "null", and ids
// are never reused within a process lifetime: the generator seeds from
// crypto/rand once and then advances monotonically.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

// maxID is 2^53, the largest id WAMP peers are guaranteed to be able to
// represent without precision loss in a double-precision JSON number.
const maxID uint64 = 1 << 53

// Generator produces a stream of unique, monotonically increasing ids in
// [1, 2^53]. The zero value is not ready to use; call New.
type Generator struct {
	next uint64
}

// New creates a Generator seeded from a cryptographically random start
// value, matching the "monotonically incrementing counter from a
// cryptographically seeded start value" rule in spec.md §3.
func New() *Generator {
	return &Generator{next: seed()}
}

func seed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is only possible on a broken platform;
		// fall back to a fixed non-zero seed rather than panic so
		// startup never depends on entropy being available.
		return 1
	}
	s := binary.BigEndian.Uint64(buf[:]) % (maxID - 1)
	if s == 0 {
		s = 1
	}
	return s
}

// Next returns the next id in the sequence. It never returns 0 and wraps
// back to 1 after 2^53-1, which is large enough that wraparound never
// happens in practice for a single process's lifetime.
func (g *Generator) Next() uint64 {
	for {
		id := atomic.AddUint64(&g.next, 1)
		id %= maxID
		if id != 0 {
			return id
		}
		// id == 0 lands on the reserved null value; retry with the
		// next counter value instead of returning it.
	}
}
