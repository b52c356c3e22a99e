package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
	"github.com/jmerrifield20/powchain/internal/merkle"
	"github.com/jmerrifield20/powchain/internal/pow"
	"go.uber.org/zap"
)

// Miner finds a header satisfying a difficulty. *pow.Miner implements it.
type Miner interface {
	Mine(ctx context.Context, in pow.Inputs, difficulty int) (*pow.Result, error)
}

// MemoryLedger is an in-memory, thread-safe Ledger implementation.
//
// Appends are serialized by appendMu, held from reading the tip through
// mining to storing the block, so no two blocks are mined against the same
// tip. Readers take mu only, and are not blocked while a block is mined.
type MemoryLedger struct {
	appendMu sync.Mutex

	mu     sync.RWMutex
	blocks []*model.Block

	difficulty int
	miner      Miner
	clock      Clock
	logger     *zap.Logger
	onAppend   func(*model.Block)
}

// Option configures a MemoryLedger.
type Option func(*MemoryLedger)

// WithClock sets the timestamp source. The default is a CounterClock.
func WithClock(c Clock) Option {
	return func(l *MemoryLedger) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *MemoryLedger) { l.logger = logger }
}

// WithAppendHook registers fn to run after each block is stored, genesis
// included. fn receives a copy.
func WithAppendHook(fn func(*model.Block)) Option {
	return func(l *MemoryLedger) { l.onAppend = fn }
}

// WithMiner sets the miner used by Append on a ledger built with Load.
func WithMiner(m Miner) Option {
	return func(l *MemoryLedger) { l.miner = m }
}

func newMemoryLedger(difficulty int, opts []Option) (*MemoryLedger, error) {
	if err := pow.ValidateDifficulty(difficulty); err != nil {
		return nil, err
	}
	l := &MemoryLedger{
		difficulty: difficulty,
		miner:      pow.NewMiner(),
		clock:      CounterClock{},
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// New creates a MemoryLedger and mines its genesis block at difficulty.
// difficulty also becomes the minimum for every later block.
func New(ctx context.Context, miner Miner, difficulty int, opts ...Option) (*MemoryLedger, error) {
	l, err := newMemoryLedger(difficulty, opts)
	if err != nil {
		return nil, err
	}
	if miner != nil {
		l.miner = miner
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()
	if _, err := l.mineAndStore(ctx, model.Header{}, []model.Transaction{model.GenesisTransaction()}, difficulty); err != nil {
		return nil, fmt.Errorf("mine genesis: %w", err)
	}
	return l, nil
}

// Load wraps previously built blocks, such as an exported chain. The blocks
// are copied but not validated; call Verify to check them.
func Load(blocks []model.Block, difficulty int, opts ...Option) (*MemoryLedger, error) {
	if len(blocks) == 0 {
		return nil, errors.New("load: chain has no genesis block")
	}
	l, err := newMemoryLedger(difficulty, opts)
	if err != nil {
		return nil, err
	}
	l.blocks = make([]*model.Block, len(blocks))
	for i := range blocks {
		l.blocks[i] = blocks[i].Clone()
	}
	return l, nil
}

// Append implements Ledger.
func (l *MemoryLedger) Append(ctx context.Context, txs []model.Transaction, difficulty int) (*model.Block, error) {
	if err := pow.ValidateDifficulty(difficulty); err != nil {
		return nil, err
	}
	if difficulty < l.difficulty {
		return nil, fmt.Errorf("%w: %d < %d", ErrDifficultyTooLow, difficulty, l.difficulty)
	}
	for i, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	l.mu.RLock()
	var tip model.Header
	if n := len(l.blocks); n > 0 {
		tip = l.blocks[n-1].Header
	}
	l.mu.RUnlock()

	return l.mineAndStore(ctx, tip, append([]model.Transaction(nil), txs...), difficulty)
}

// mineAndStore mines a block on top of prev, the zero header for genesis.
// It must be called with appendMu held.
func (l *MemoryLedger) mineAndStore(ctx context.Context, prev model.Header, txs []model.Transaction, difficulty int) (*model.Block, error) {
	in := pow.Inputs{
		PreviousDigest: prev.Digest,
		MerkleRoot:     merkle.Root(txs),
		Timestamp:      l.clock.Next(prev.Timestamp),
	}
	res, err := l.miner.Mine(ctx, in, difficulty)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	b := &model.Block{
		Height:           len(l.blocks),
		TransactionCount: len(txs),
		Difficulty:       difficulty,
		Header:           res.Header,
		Transactions:     txs,
	}
	l.blocks = append(l.blocks, b)
	l.mu.Unlock()

	l.logger.Debug("block appended",
		zap.Int("height", b.Height),
		zap.Int("transactions", b.TransactionCount),
		zap.Int("difficulty", difficulty),
		zap.Uint64("nonce", b.Header.Nonce),
		zap.String("digest", b.Header.Digest.String()),
	)
	if l.onAppend != nil {
		l.onAppend(b.Clone())
	}
	return b.Clone(), nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, height int) (*model.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if height < 0 || height >= len(l.blocks) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return l.blocks[height].Clone(), nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks), nil
}

// Blocks implements Ledger.
func (l *MemoryLedger) Blocks(_ context.Context) ([]model.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot(), nil
}

// snapshot must be called with mu held.
func (l *MemoryLedger) snapshot() []model.Block {
	out := make([]model.Block, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = *b.Clone()
	}
	return out
}

// Tip implements Ledger.
func (l *MemoryLedger) Tip(_ context.Context) (digest.Digest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return digest.Zero, nil
	}
	return l.blocks[len(l.blocks)-1].Header.Digest, nil
}

// Difficulty implements Ledger.
func (l *MemoryLedger) Difficulty() int { return l.difficulty }

// Verify implements Ledger.
func (l *MemoryLedger) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.RLock()
	blocks := l.snapshot()
	l.mu.RUnlock()

	if v := Validate(blocks, l.difficulty); v != nil {
		return v
	}
	return nil
}
