package core

import "crypto/sha256"

// sha256Sum is the hashing primitive used for rawTxIds, shard ids and
// signature digests, kept in one place so the module can be re-keyed to a
// different hash function without hunting down call sites. Lattice content
// ids use blake2b instead; see cubic_ledger.go.
func sha256Sum(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
