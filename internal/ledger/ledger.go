// Package ledger holds the ordered chain of mined blocks.
//
// Block 0 is the genesis block, mined over a single synthetic transaction
// and linked to the zero digest. Every later block links to the digest of
// the block before it, so altering any stored field breaks either that
// block's own digest or the link held by its successor. Verify walks the
// chain and reports the first height where that happens.
package ledger

import (
	"context"
	"errors"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
)

var (
	// ErrDifficultyTooLow is returned by Append when asked to mine below the
	// ledger's minimum difficulty.
	ErrDifficultyTooLow = errors.New("difficulty below ledger minimum")

	// ErrBlockNotFound is returned by Get for heights outside the chain.
	ErrBlockNotFound = errors.New("block not found")
)

// Ledger is the interface for the append-only proof-of-work chain.
type Ledger interface {
	// Append mines a block over txs at difficulty and links it to the tip.
	Append(ctx context.Context, txs []model.Transaction, difficulty int) (*model.Block, error)

	// Get returns a copy of the block at the given height.
	Get(ctx context.Context, height int) (*model.Block, error)

	// Len returns the number of blocks, genesis included.
	Len(ctx context.Context) (int, error)

	// Blocks returns a copy of the whole chain in height order.
	Blocks(ctx context.Context) ([]model.Block, error)

	// Tip returns the digest of the most recent block.
	Tip(ctx context.Context) (digest.Digest, error)

	// Difficulty returns the minimum difficulty every block must meet.
	Difficulty() int

	// Verify walks the chain. It returns nil for an intact chain and a
	// *Violation describing the first broken block otherwise.
	Verify(ctx context.Context) error
}
