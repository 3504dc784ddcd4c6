// Package jenkins implements the lookup3 based 32-bit hash used to
// key resource names inside TAB archive tables
package jenkins

import "math/bits"

const initValue uint32 = 0xdeadbeef

// Hash returns the 32-bit hash of data using a zero seed
func Hash(data []byte) uint32 {
	return HashWithSeed(data, 0)
}

// HashString returns the hash of the ASCII form of s: every rune
// outside of the ASCII range is replaced by a '?' before hashing
func HashString(s string) uint32 {
	return Hash(asciiBytes(s))
}

// HashWithSeed returns the 32-bit hash of data mixed with the given
// seed. Contrary to the reference lookup3 the final mix is applied to
// every input including the empty one.
func HashWithSeed(data []byte, seed uint32) uint32 {
	length := len(data)
	a := initValue + uint32(length) + seed //#nosec:G115 // length wraps intentionally
	b, c := a, a

	i := 0
	for ; i+12 < length; i += 12 {
		a += fetch32(data[i:])
		b += fetch32(data[i+4:])
		c += fetch32(data[i+8:])
		a, b, c = mix(a, b, c)
	}

	// Tail of 0-12 bytes, added little-endian into a, b and c
	regs := [3]*uint32{&a, &b, &c}
	for j, v := range data[i:] {
		*regs[j/4] += uint32(v) << (uint(j%4) * 8) //nolint:mnd
	}

	return final(a, b, c)
}

func asciiBytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7f {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

func fetch32(p []byte) uint32 {
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) uint32 {
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)
	return c
}
