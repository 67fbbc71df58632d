package util

import (
	"github.com/OneOfOne/xxhash"
)

// HashCode hashes a byte key with xxhash64.
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}
