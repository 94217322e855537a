package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string. Element IDs are keyed by this
// hash in the dedup and XML cross-link maps.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}
