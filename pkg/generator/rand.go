package generator

import (
	"fmt"
	mathrand "math/rand/v2"
	"sync"

	"github.com/google/uuid"
)

// source draws random values from a seeded PRNG when one is configured,
// otherwise from the global math/rand/v2 source.
// *rand.Rand is not safe for concurrent use, so the seeded path is locked.
type source struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// intN returns a random int in [0, n).
func (s *source) intN(n int) int {
	if n <= 0 {
		return 0
	}
	if s.rng == nil {
		return mathrand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// float64 returns a random float64 in [0, 1).
func (s *source) float64() float64 {
	if s.rng == nil {
		return mathrand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// between returns a random int in [min, max].
func (s *source) between(min, max int) int {
	if min > max {
		min, max = max, min
	}
	return min + s.intN(max-min+1)
}

// pick returns a random element of options, or "" if there are none.
func (s *source) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[s.intN(len(options))]
}

// uuidV4 generates a version 4 UUID. The seeded path builds the bytes from
// the PRNG so output is reproducible.
func (s *source) uuidV4() string {
	if s.rng == nil {
		return uuid.NewString()
	}
	var b [16]byte
	for i := range b {
		b[i] = byte(s.intN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // variant 10xx
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
