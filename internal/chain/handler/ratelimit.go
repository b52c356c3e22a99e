package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorIdleTTL  = 10 * time.Minute
	visitorSweepGap = 5 * time.Minute
)

type visitor struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// visitorLimits holds one token bucket per client IP.
type visitorLimits struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newVisitorLimits(rps, burst int) *visitorLimits {
	return &visitorLimits{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// allow takes a token from ip's bucket, creating the bucket on first sight.
func (v *visitorLimits) allow(ip string, now time.Time) bool {
	v.mu.Lock()
	vis, ok := v.visitors[ip]
	if !ok {
		vis = &visitor{bucket: rate.NewLimiter(v.rps, v.burst)}
		v.visitors[ip] = vis
	}
	vis.lastSeen = now
	v.mu.Unlock()
	return vis.bucket.AllowN(now, 1)
}

// sweep forgets visitors not seen within idle of now and returns how many
// remain.
func (v *visitorLimits) sweep(now time.Time, idle time.Duration) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	for ip, vis := range v.visitors {
		if now.Sub(vis.lastSeen) > idle {
			delete(v.visitors, ip)
		}
	}
	return len(v.visitors)
}

func (v *visitorLimits) sweepUntil(ctx context.Context) {
	ticker := time.NewTicker(visitorSweepGap)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			v.sweep(now, visitorIdleTTL)
		}
	}
}

// RateLimiter returns a Gin middleware giving each client IP a token bucket
// of rps requests per second with the given burst. Buckets idle for ten
// minutes are dropped by a sweeper that runs until ctx is done.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	limits := newVisitorLimits(rps, burst)
	go limits.sweepUntil(ctx)

	return func(c *gin.Context) {
		if limits.allow(c.ClientIP(), time.Now()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
	}
}
