// Package merkle reduces an ordered transaction list to a single root digest.
package merkle

import (
	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
)

// Leaf returns the leaf digest of a transaction.
func Leaf(tx model.Transaction) digest.Digest {
	return digest.SumString(tx.Canonical())
}

// Root returns the Merkle root of txs. An empty list yields digest.Zero.
// The root depends on transaction order.
func Root(txs []model.Transaction) digest.Digest {
	if len(txs) == 0 {
		return digest.Zero
	}
	leaves := make([]digest.Digest, len(txs))
	for i, tx := range txs {
		leaves[i] = Leaf(tx)
	}
	return reduce(leaves)
}

// RootOf reduces precomputed leaf digests to a root. leaves is not modified.
func RootOf(leaves []digest.Digest) digest.Digest {
	if len(leaves) == 0 {
		return digest.Zero
	}
	return reduce(append([]digest.Digest(nil), leaves...))
}

// reduce pairs and hashes level by level, duplicating the last digest of
// an odd level. Pairs are joined as hex text before hashing.
func reduce(level []digest.Digest) digest.Digest {
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]digest.Digest, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, digest.SumString(level[i].String()+level[i+1].String()))
		}
		level = next
	}
	return level[0]
}
