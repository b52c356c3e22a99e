package model

import (
	"fmt"

	"github.com/jmerrifield20/powchain/internal/digest"
)

// Header links a block to its predecessor and commits to its transactions.
//
// Digest is derived from the other four fields. Headers are built with
// NewHeader, which always computes it; a mining attempt with a different
// nonce is a new Header value, never a mutation of an existing one.
type Header struct {
	PreviousDigest digest.Digest `json:"previous_digest"`
	MerkleRoot     digest.Digest `json:"merkle_root"`
	Timestamp      int64         `json:"timestamp"`
	Nonce          uint64        `json:"nonce"`
	Digest         digest.Digest `json:"digest"`
}

// NewHeader builds a header candidate and derives its digest.
func NewHeader(prev, merkleRoot digest.Digest, timestamp int64, nonce uint64) Header {
	h := Header{
		PreviousDigest: prev,
		MerkleRoot:     merkleRoot,
		Timestamp:      timestamp,
		Nonce:          nonce,
	}
	h.Digest = h.ComputeDigest()
	return h
}

// ComputeDigest hashes the text concatenation of previous digest, Merkle
// root, timestamp and nonce, in that order.
func (h Header) ComputeDigest() digest.Digest {
	hasher := digest.New()
	fmt.Fprintf(hasher, "%s%s%d%d", h.PreviousDigest, h.MerkleRoot, h.Timestamp, h.Nonce)
	var d digest.Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// Sealed reports whether the stored digest matches the header fields.
func (h Header) Sealed() bool {
	return h.Digest == h.ComputeDigest()
}

// Block is a mined header plus the transactions its Merkle root commits to.
type Block struct {
	Height           int           `json:"height"`
	TransactionCount int           `json:"transaction_count"`
	Difficulty       int           `json:"difficulty"`
	Header           Header        `json:"header"`
	Transactions     []Transaction `json:"transactions"`
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	c := *b
	c.Transactions = append([]Transaction(nil), b.Transactions...)
	return &c
}

// Chain is the portable JSON form of a whole ledger, as served by the
// export endpoint and read back by offline verification.
type Chain struct {
	Difficulty int     `json:"difficulty"`
	Blocks     []Block `json:"blocks"`
}
