package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/chain/model"
	"github.com/jmerrifield20/powchain/internal/pow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powchain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powchain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	blocksAppendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "powchain_blocks_appended_total",
		Help: "Total blocks appended to the chain, genesis included.",
	})

	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powchain_chain_height",
		Help: "Height of the chain tip.",
	})

	miningAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "powchain_mining_attempts",
		Help:    "Digests computed per successful mining search.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})

	miningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "powchain_mining_duration_seconds",
		Help:    "Wall time per successful mining search.",
		Buckets: prometheus.DefBuckets,
	})

	pendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powchain_pending_transactions",
		Help: "Transactions waiting in the pending pool.",
	})

	chainValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powchain_chain_valid",
		Help: "1 if the last audit found the chain valid, 0 otherwise.",
	})

	auditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powchain_audits_total",
		Help: "Total chain audits by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordBlockAppended records a block stored by the ledger.
func RecordBlockAppended(b *model.Block) {
	blocksAppendedTotal.Inc()
	chainHeight.Set(float64(b.Height))
}

// RecordMining records a successful mining search.
func RecordMining(r pow.Result) {
	miningAttempts.Observe(float64(r.Attempts))
	miningDuration.Observe(r.Elapsed.Seconds())
}

// SetPendingGauge sets the pending pool size.
func SetPendingGauge(n int) {
	pendingTransactions.Set(float64(n))
}

// RecordAudit records a chain audit result.
func RecordAudit(valid bool) {
	if valid {
		auditsTotal.WithLabelValues("valid").Inc()
		chainValid.Set(1)
	} else {
		auditsTotal.WithLabelValues("invalid").Inc()
		chainValid.Set(0)
	}
}
