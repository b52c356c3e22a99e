package pow

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ctxCheckInterval is how many attempts a worker makes between context checks.
const ctxCheckInterval = 1024

// Inputs are the header fields fixed for the duration of a search.
type Inputs struct {
	PreviousDigest digest.Digest
	MerkleRoot     digest.Digest
	Timestamp      int64
}

// Result is a successfully mined header and what it cost to find.
type Result struct {
	Header     model.Header
	Difficulty int
	Attempts   uint64
	Elapsed    time.Duration
}

// Miner searches for header nonces. A zero-option Miner runs a single
// unbounded search, matching the reference behaviour; production callers
// should set an attempt budget or pass a context with a deadline.
type Miner struct {
	workers     int
	maxAttempts uint64 // 0 = unbounded
	logger      *zap.Logger
	observer    func(Result)
}

// Option configures a Miner.
type Option func(*Miner)

// WithWorkers stripes the nonce space across n goroutines. n < 1 means 1.
func WithWorkers(n int) Option {
	return func(m *Miner) {
		if n < 1 {
			n = 1
		}
		m.workers = n
	}
}

// WithMaxAttempts caps the number of digests computed per Mine call.
// Zero leaves the search unbounded.
func WithMaxAttempts(n uint64) Option {
	return func(m *Miner) { m.maxAttempts = n }
}

// WithLogger sets the logger used for search outcomes.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Miner) { m.logger = logger }
}

// WithObserver registers a callback invoked after every successful search.
func WithObserver(fn func(Result)) Option {
	return func(m *Miner) { m.observer = fn }
}

// NewMiner creates a Miner.
func NewMiner(opts ...Option) *Miner {
	m := &Miner{workers: 1, logger: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Workers returns the configured worker count.
func (m *Miner) Workers() int { return m.workers }

// Mine searches for the smallest nonce whose header digest satisfies
// difficulty. Invalid difficulties are rejected before any work is done.
func (m *Miner) Mine(ctx context.Context, in Inputs, difficulty int) (*Result, error) {
	if err := ValidateDifficulty(difficulty); err != nil {
		return nil, err
	}

	start := time.Now()
	var (
		h        model.Header
		attempts uint64
		err      error
	)
	if m.workers > 1 {
		h, attempts, err = m.searchParallel(ctx, in, difficulty)
	} else {
		h, attempts, err = m.search(ctx, in, difficulty)
	}
	elapsed := time.Since(start)

	if err != nil {
		m.logger.Warn("mining aborted",
			zap.Int("difficulty", difficulty),
			zap.Uint64("attempts", attempts),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	res := Result{Header: h, Difficulty: difficulty, Attempts: attempts, Elapsed: elapsed}
	m.logger.Debug("header mined",
		zap.String("digest", h.Digest.String()),
		zap.Uint64("nonce", h.Nonce),
		zap.Int("difficulty", difficulty),
		zap.Uint64("attempts", attempts),
		zap.Duration("elapsed", elapsed),
	)
	if m.observer != nil {
		m.observer(res)
	}
	return &res, nil
}

func (m *Miner) search(ctx context.Context, in Inputs, difficulty int) (model.Header, uint64, error) {
	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		if m.maxAttempts > 0 && attempts >= m.maxAttempts {
			return model.Header{}, attempts, m.budgetErr()
		}
		if attempts%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return model.Header{}, attempts, fmt.Errorf("%w: %w", ErrMiningAborted, err)
			}
		}

		h := model.NewHeader(in.PreviousDigest, in.MerkleRoot, in.Timestamp, nonce)
		attempts++
		if Meets(h.Digest, difficulty) {
			return h, attempts, nil
		}
		if nonce == math.MaxUint64 {
			return model.Header{}, attempts, fmt.Errorf("%w: nonce space exhausted", ErrMiningAborted)
		}
	}
}

// searchParallel gives worker w the nonces w, w+n, w+2n, ... A worker stops
// at its first hit or once its next nonce is not below the best hit so
// far. Every nonce below the final best has therefore been tried, and the
// result equals the sequential search's.
//
// An attempt budget of b bounds the nonce range to [0, b), the same nonces
// a sequential search with that budget would try.
func (m *Miner) searchParallel(ctx context.Context, in Inputs, difficulty int) (model.Header, uint64, error) {
	var (
		best     atomic.Uint64
		attempts atomic.Uint64
		mu       sync.Mutex
		winner   model.Header
		found    bool
	)
	best.Store(math.MaxUint64)

	limit := uint64(math.MaxUint64)
	if m.maxAttempts > 0 {
		limit = m.maxAttempts
	}

	stride := uint64(m.workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < m.workers; w++ {
		first := uint64(w)
		g.Go(func() error {
			var local uint64
			for nonce := first; nonce < limit && nonce < best.Load(); nonce += stride {
				if local%ctxCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				local++
				attempts.Add(1)

				h := model.NewHeader(in.PreviousDigest, in.MerkleRoot, in.Timestamp, nonce)
				if Meets(h.Digest, difficulty) {
					mu.Lock()
					if !found || nonce < winner.Nonce {
						best.Store(nonce)
						winner = h
						found = true
					}
					mu.Unlock()
					return nil
				}
				if nonce > math.MaxUint64-stride {
					return nil
				}
			}
			return nil
		})
	}

	// A cancelled search may have skipped nonces below winner, so a hit is
	// only returned when every worker ran to completion.
	err := g.Wait()
	total := attempts.Load()
	switch {
	case err != nil:
		return model.Header{}, total, fmt.Errorf("%w: %w", ErrMiningAborted, err)
	case found:
		return winner, total, nil
	case m.maxAttempts > 0:
		return model.Header{}, total, m.budgetErr()
	default:
		return model.Header{}, total, fmt.Errorf("%w: nonce space exhausted", ErrMiningAborted)
	}
}

func (m *Miner) budgetErr() error {
	return fmt.Errorf("%w: attempt budget of %d exhausted", ErrMiningAborted, m.maxAttempts)
}
