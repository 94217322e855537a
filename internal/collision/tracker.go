// Package collision guards the hash-keyed dedup maps.
//
// Dedup and cross-linking key entities by the xxHash64 of their identifier.
// A collision between two distinct identifiers would silently merge two
// elements, so every dedup insertion is tracked and a collision is reported
// to the caller instead of being absorbed.
package collision

import (
	"github.com/plckit/plfaddr/errs"
	"github.com/plckit/plfaddr/internal/hash"
)

// Tracker records identifier-to-hash assignments and detects collisions.
type Tracker struct {
	ids map[uint64]string
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[uint64]string)}
}

// Key hashes id and records the assignment. It returns the hash and
// errs.ErrHashCollision when a different identifier already claimed the same
// hash; the caller decides whether to log or fall back to string keys.
func (t *Tracker) Key(id string) (uint64, error) {
	h := hash.ID(id)
	if prev, ok := t.ids[h]; ok && prev != id {
		return h, errs.ErrHashCollision
	}
	t.ids[h] = id

	return h, nil
}
