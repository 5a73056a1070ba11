package codec

import "math/rand"

// Hash is the client's rolling domain hash. It walks s from the last byte to
// the first and must stay bit-for-bit compatible with the collector.
func Hash(s string) int {
	if s == "" {
		return 1
	}

	h := 0
	for pos := len(s) - 1; pos >= 0; pos-- {
		current := int(s[pos])
		h = ((h << 6) & 0xfffffff) + current + (current << 14)
		if leftMost7 := h & 0xfe00000; leftMost7 != 0 {
			h ^= leftMost7 >> 21
		}
	}
	return h
}

// DomainHash returns the hash embedded in the emulated cookies. With hashing
// disabled the client always uses 1.
func DomainHash(domain string, allowHash bool) int {
	if !allowHash {
		return 1
	}
	return Hash(domain)
}

// Random32 returns a fresh 32-bit random number.
func Random32() uint32 {
	return rand.Uint32()
}
