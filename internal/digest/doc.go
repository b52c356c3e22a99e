// Package digest implements SHA-256 (FIPS 180-4) from first principles.
//
// Sum, SumString and Hash are pure functions: each call runs on its own
// fresh state, so they are safe for concurrent use. New returns a
// streaming hash.Hash over the same compression function for callers that
// prefer to write fields into a hasher incrementally.
//
// Digests render as 64 lowercase hex characters. The zero value, Zero, is
// the all-zero sentinel used for the genesis link and empty Merkle trees.
package digest
