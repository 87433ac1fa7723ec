package util

import (
	"github.com/cespare/xxhash/v2"
)

// HashParts returns a deterministic 64-bit hash over the given parts.
// Parts are separated by a NUL byte so ("ab","c") and ("a","bc") differ.
func HashParts(parts ...string) uint64 {
	d := xxhash.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = d.Write([]byte{0})
		}
		_, _ = d.WriteString(p)
	}
	return d.Sum64()
}

// HashContent hashes a document body.
func HashContent(content []byte) uint64 {
	return xxhash.Sum64(content)
}
