package table

import "math/rand/v2"

// placement is the fully derived position of a key inside the table: the
// 64-bit hash whose high bits select the segment, plus the bucket ids the
// key probes within it. Deriving all of them in one place fixes which parts
// of the hash each level reads: the directory takes the top bits, the home
// bucket the hash above its low byte, the stash selector the lowest bits.
type placement struct {
	hash  uint64
	home  uint8
	probe uint8
	stash uint8
}

// newSeed draws the per-table placement seed.
func newSeed() uint64 {
	return rand.Uint64()
}

// hashKey folds the key bytes into 64 bits. Eight-byte chunks pass through
// a splitmix-style finalizer; the trailing bytes and the length are folded
// into the final round so short keys with shared prefixes still avalanche.
func hashKey(key string, seed uint64) uint64 {
	h := seed ^ (uint64(len(key)) * 0x9e3779b97f4a7c15)

	for len(key) >= 8 {
		var chunk uint64
		for i := 0; i < 8; i++ {
			chunk |= uint64(key[i]) << (8 * i)
		}
		h = mix64(h ^ chunk)
		key = key[8:]
	}

	var tail uint64
	for i := 0; i < len(key); i++ {
		tail = tail<<8 | uint64(key[i])
	}
	return mix64(h ^ tail)
}

// mix64 is the splitmix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// placementOf derives the probed bucket ids from a hash. The directory
// consumes the top bits (see dirIndex); the home bucket is the hash shifted
// right by 8 modulo RegularBuckets, so it also depends on those top bits.
func placementOf(hash uint64) placement {
	home := uint8((hash >> 8) % RegularBuckets)
	return placement{
		hash:  hash,
		home:  home,
		probe: (home + 1) % RegularBuckets,
		stash: RegularBuckets + uint8(hash%NumStashBuckets),
	}
}

// makePlacement hashes a key and derives its placement.
func makePlacement(key string, seed uint64) placement {
	return placementOf(hashKey(key, seed))
}
