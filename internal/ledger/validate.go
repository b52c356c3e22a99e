package ledger

import (
	"errors"
	"fmt"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
	"github.com/jmerrifield20/powchain/internal/merkle"
	"github.com/jmerrifield20/powchain/internal/pow"
)

// Rule names the invariant a block broke.
type Rule string

const (
	RuleHeight     Rule = "height"
	RuleTxCount    Rule = "transaction_count"
	RuleLink       Rule = "previous_digest"
	RuleMerkleRoot Rule = "merkle_root"
	RuleDigest     Rule = "digest"
	RuleDifficulty Rule = "difficulty"
	RuleWork       Rule = "proof_of_work"
	RuleEmpty      Rule = "empty_chain"
)

// Violation is the first invariant failure found in a chain.
type Violation struct {
	Height int
	Rule   Rule
	Detail string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("block %d: %s: %s", v.Height, v.Rule, v.Detail)
}

// IsValid interprets the result of Verify. It reports true for nil, and
// false with the offending height otherwise (-1 if err is not a Violation).
func IsValid(err error) (bool, int) {
	if err == nil {
		return true, -1
	}
	var v *Violation
	if errors.As(err, &v) {
		return false, v.Height
	}
	return false, -1
}

// Validate checks blocks against every chain invariant and returns the
// first violation, or nil. Genesis gets the same digest and work checks as
// every other block; its link must be the zero digest.
func Validate(blocks []model.Block, minDifficulty int) *Violation {
	if len(blocks) == 0 {
		return &Violation{Height: 0, Rule: RuleEmpty, Detail: "chain has no genesis block"}
	}

	prev := digest.Zero
	for i := range blocks {
		b := &blocks[i]
		h := b.Header

		if b.Height != i {
			return &Violation{Height: i, Rule: RuleHeight, Detail: fmt.Sprintf("recorded height %d", b.Height)}
		}
		if b.TransactionCount != len(b.Transactions) {
			return &Violation{Height: i, Rule: RuleTxCount,
				Detail: fmt.Sprintf("count %d, carries %d", b.TransactionCount, len(b.Transactions))}
		}
		if h.PreviousDigest != prev {
			return &Violation{Height: i, Rule: RuleLink,
				Detail: fmt.Sprintf("links to %s, want %s", h.PreviousDigest, prev)}
		}
		if root := merkle.Root(b.Transactions); h.MerkleRoot != root {
			return &Violation{Height: i, Rule: RuleMerkleRoot,
				Detail: fmt.Sprintf("stored %s, transactions give %s", h.MerkleRoot, root)}
		}
		if d := h.ComputeDigest(); h.Digest != d {
			return &Violation{Height: i, Rule: RuleDigest,
				Detail: fmt.Sprintf("stored %s, header gives %s", h.Digest, d)}
		}
		if b.Difficulty < minDifficulty {
			return &Violation{Height: i, Rule: RuleDifficulty,
				Detail: fmt.Sprintf("difficulty %d below minimum %d", b.Difficulty, minDifficulty)}
		}
		if !pow.Meets(h.Digest, b.Difficulty) {
			return &Violation{Height: i, Rule: RuleWork,
				Detail: fmt.Sprintf("digest %s does not meet difficulty %d", h.Digest, b.Difficulty)}
		}
		prev = h.Digest
	}
	return nil
}
