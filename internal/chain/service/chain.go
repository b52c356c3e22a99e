// Package service buffers submitted transactions and mines them into the
// ledger together with a block reward for the miner.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/digest"
	"github.com/jmerrifield20/powchain/internal/ledger"
	"go.uber.org/zap"
)

var (
	// ErrPoolFull is returned by AddTransaction when MaxPending transactions
	// are already waiting.
	ErrPoolFull = errors.New("pending pool is full")

	// ErrMinerRequired is returned by MinePending without a reward address.
	ErrMinerRequired = errors.New("miner address is required")
)

// Config holds the service settings.
type Config struct {
	BlockReward   int64         // amount paid to the miner of each block
	MaxPending    int           // 0 = unlimited
	MiningTimeout time.Duration // 0 = no deadline beyond the caller's context
}

// Status summarises the chain and the pending pool.
type Status struct {
	Height     int           `json:"height"`
	Length     int           `json:"length"`
	Tip        digest.Digest `json:"tip"`
	Difficulty int           `json:"difficulty"`
	Pending    int           `json:"pending"`
}

// ChainService contains the business logic for submitting and mining
// transactions.
type ChainService struct {
	ledger ledger.Ledger
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	pending []model.Transaction

	// miningMu keeps two MinePending calls from consuming the same prefix.
	miningMu sync.Mutex

	recordBlock   func(*model.Block)
	recordPending func(int)
}

// New creates a ChainService over l.
func New(l ledger.Ledger, cfg Config, logger *zap.Logger) *ChainService {
	if cfg.BlockReward < 0 {
		cfg.BlockReward = 0
	}
	return &ChainService{ledger: l, cfg: cfg, logger: logger}
}

// SetMetricsRecord registers a callback invoked with every block mined
// through the service.
func (s *ChainService) SetMetricsRecord(fn func(*model.Block)) {
	s.recordBlock = fn
}

// SetPendingRecord registers a callback invoked with the pool size after
// every change.
func (s *ChainService) SetPendingRecord(fn func(int)) {
	s.recordPending = fn
}

// Ledger returns the underlying ledger.
func (s *ChainService) Ledger() ledger.Ledger { return s.ledger }

// AddTransaction validates tx and queues it. It returns the height of the
// block tx is expected to land in, one past the current tip.
func (s *ChainService) AddTransaction(ctx context.Context, tx model.Transaction) (int, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	n, err := s.ledger.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain length: %w", err)
	}

	s.mu.Lock()
	if s.cfg.MaxPending > 0 && len(s.pending) >= s.cfg.MaxPending {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: %d waiting", ErrPoolFull, s.cfg.MaxPending)
	}
	s.pending = append(s.pending, tx)
	size := len(s.pending)
	s.mu.Unlock()

	s.logger.Debug("transaction queued",
		zap.String("sender", tx.Sender),
		zap.String("recipient", tx.Recipient),
		zap.Int64("amount", tx.Amount),
		zap.Int("pending", size),
	)
	s.notifyPending(size)
	return n, nil
}

// Pending returns a copy of the queued transactions in submission order.
func (s *ChainService) Pending() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Transaction(nil), s.pending...)
}

// MinePending mines every queued transaction plus a reward transaction for
// minerAddress into a new block. Transactions queued while the block is
// being mined stay in the pool. On failure the pool is left untouched.
func (s *ChainService) MinePending(ctx context.Context, minerAddress string) (*model.Block, error) {
	if minerAddress == "" {
		return nil, ErrMinerRequired
	}
	if s.cfg.MiningTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MiningTimeout)
		defer cancel()
	}

	s.miningMu.Lock()
	defer s.miningMu.Unlock()

	batch := s.Pending()
	reward := model.Transaction{Sender: model.SystemSender, Recipient: minerAddress, Amount: s.cfg.BlockReward}
	txs := append(batch, reward)

	block, err := s.ledger.Append(ctx, txs, s.ledger.Difficulty())
	if err != nil {
		s.logger.Warn("mining pending transactions failed",
			zap.Int("pending", len(batch)),
			zap.String("miner", minerAddress),
			zap.Error(err),
		)
		return nil, err
	}

	s.mu.Lock()
	s.pending = append([]model.Transaction(nil), s.pending[len(batch):]...)
	size := len(s.pending)
	s.mu.Unlock()

	s.logger.Info("block mined",
		zap.Int("height", block.Height),
		zap.Int("transactions", block.TransactionCount),
		zap.String("miner", minerAddress),
		zap.String("digest", block.Header.Digest.String()),
	)
	s.notifyPending(size)
	if s.recordBlock != nil {
		s.recordBlock(block)
	}
	return block, nil
}

// AutoMine mines the pool every interval while it is non-empty, until ctx
// is done.
func (s *ChainService) AutoMine(ctx context.Context, interval time.Duration, minerAddress string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(s.Pending()) == 0 {
				continue
			}
			if _, err := s.MinePending(ctx, minerAddress); err != nil && ctx.Err() == nil {
				s.logger.Warn("auto-mine failed", zap.Error(err))
			}
		}
	}
}

// Status reports the chain height, tip and pool size.
func (s *ChainService) Status(ctx context.Context) (Status, error) {
	n, err := s.ledger.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	tip, err := s.ledger.Tip(ctx)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()

	return Status{
		Height:     n - 1,
		Length:     n,
		Tip:        tip,
		Difficulty: s.ledger.Difficulty(),
		Pending:    pending,
	}, nil
}

func (s *ChainService) notifyPending(n int) {
	if s.recordPending != nil {
		s.recordPending(n)
	}
}
