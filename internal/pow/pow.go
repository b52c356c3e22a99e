// Package pow implements the proof-of-work nonce search over block headers.
//
// A header satisfies difficulty d when the hex text of its digest starts
// with d '0' characters. The search starts at nonce 0 and walks upward, so
// the accepted header is always the one with the smallest satisfying nonce,
// whether one worker or many are searching.
package pow

import (
	"errors"
	"fmt"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
)

// MaxDifficulty is the number of hex characters in a digest.
const MaxDifficulty = 2 * digest.Size

var (
	// ErrInvalidDifficulty is returned for difficulties outside [0, MaxDifficulty].
	ErrInvalidDifficulty = errors.New("invalid difficulty")

	// ErrMiningAborted is returned when a search stops before finding a nonce,
	// either because its attempt budget ran out or its context ended.
	ErrMiningAborted = errors.New("mining aborted")
)

// ValidateDifficulty rejects difficulties the predicate cannot express.
func ValidateDifficulty(d int) error {
	if d < 0 || d > MaxDifficulty {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidDifficulty, d, MaxDifficulty)
	}
	return nil
}

// Meets reports whether d has at least difficulty leading zero hex digits.
func Meets(d digest.Digest, difficulty int) bool {
	if difficulty > MaxDifficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		b := d[i/2]
		if i%2 == 0 {
			b >>= 4
		}
		if b&0x0f != 0 {
			return false
		}
	}
	return true
}

// Verify reports whether h is sealed (its digest matches its fields) and
// satisfies difficulty.
func Verify(h model.Header, difficulty int) bool {
	return h.Sealed() && Meets(h.Digest, difficulty)
}
