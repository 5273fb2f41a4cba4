// Package hasher implements the seeded string hash used to turn namespace and
// feature names into feature ids. The function is MurmurHash3 (x86, 32-bit)
// with the seed truncated to 32 bits, which keeps ids bit-compatible with
// models trained by the native learning engine.
package hasher

import (
	"encoding/binary"
	"math/bits"
	"unsafe"
)

const (
	c1 = 0xcc9e2d51
	c2 = 0x1b873593
)

// Hash returns the 32-bit MurmurHash3 of data widened to 64 bits. Only the low
// 32 bits of seed take part in the computation.
func Hash(data []byte, seed uint64) uint64 {
	h1 := uint32(seed)
	n := len(data)
	nblocks := n / 4

	for i := 0; i < nblocks; i++ {
		k1 := binary.LittleEndian.Uint32(data[i*4:])
		k1 *= c1
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2

		h1 ^= k1
		h1 = bits.RotateLeft32(h1, 13)
		h1 = h1*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = bits.RotateLeft32(k1, 15)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= uint32(n)
	return uint64(fmix32(h1))
}

// HashString hashes s without copying it.
func HashString(s string, seed uint64) uint64 {
	if s == "" {
		return Hash(nil, seed)
	}
	return Hash(unsafe.Slice(unsafe.StringData(s), len(s)), seed)
}

func fmix32(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
