// Package audit re-validates the chain on a fixed interval and records the
// outcome.
package audit

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/jmerrifield20/powchain/internal/ledger"
	"go.uber.org/zap"
)

// Config holds auditor configuration.
type Config struct {
	Interval time.Duration
}

// Chain is the subset of ledger.Ledger the auditor reads.
type Chain interface {
	Len(ctx context.Context) (int, error)
	Verify(ctx context.Context) error
}

// Report is the outcome of one audit pass.
type Report struct {
	Valid     bool          `json:"valid"`
	Length    int           `json:"length"`
	Height    *int          `json:"height,omitempty"` // first invalid block; nil when valid
	Rule      ledger.Rule   `json:"rule,omitempty"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// MetricsRecordFunc is an optional callback for recording audit results.
type MetricsRecordFunc func(valid bool)

// Auditor runs periodic chain validation.
type Auditor struct {
	chain     Chain
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu   sync.RWMutex
	last Report
	ran  bool
}

// New creates a new Auditor.
func New(chain Chain, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Auditor{chain: chain, cfg: cfg, logger: logger}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start runs the audit loop until quit is signalled.
func (a *Auditor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Interval)
			a.Run(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// Run validates the chain once and stores the report.
func (a *Auditor) Run(ctx context.Context) Report {
	start := time.Now()
	r := Report{CheckedAt: start.UTC()}

	n, err := a.chain.Len(ctx)
	if err != nil {
		a.logger.Error("audit: chain length", zap.Error(err))
		r.Error = err.Error()
		return a.store(r, start)
	}
	r.Length = n

	err = a.chain.Verify(ctx)
	r.Valid = err == nil
	if err != nil {
		r.Error = err.Error()
		var v *ledger.Violation
		if errors.As(err, &v) {
			height := v.Height
			r.Height = &height
			r.Rule = v.Rule
		}
	}
	return a.store(r, start)
}

func (a *Auditor) store(r Report, start time.Time) Report {
	r.Duration = time.Since(start)

	a.mu.Lock()
	prev, ran := a.last, a.ran
	a.last, a.ran = r, true
	a.mu.Unlock()

	if a.onMetrics != nil {
		a.onMetrics(r.Valid)
	}

	switch {
	case !r.Valid:
		a.logger.Warn("audit: chain invalid",
			zap.Intp("height", r.Height),
			zap.String("rule", string(r.Rule)),
			zap.Int("length", r.Length),
			zap.String("error", r.Error),
		)
	case ran && !prev.Valid:
		a.logger.Info("audit: chain valid again", zap.Int("length", r.Length))
	default:
		a.logger.Debug("audit: chain valid",
			zap.Int("length", r.Length),
			zap.Duration("duration", r.Duration),
		)
	}
	return r
}

// Last returns the most recent report and whether any audit has run.
func (a *Auditor) Last() (Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last, a.ran
}
