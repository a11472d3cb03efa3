package internal

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastHash is a high-performance non-cryptographic hash function. It is
// used for cache validators such as image ETags, never for anything
// security sensitive.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}

// FastHashBytes is FastHash for a byte slice without copying it into a
// string first.
func FastHashBytes(data []byte) string {
	h := xxhash.Sum64(data)
	return strconv.FormatUint(h, 16)
}
