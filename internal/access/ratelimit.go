package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/caxulex/shiftcore/internal/kv"
	"golang.org/x/time/rate"
)

// Bucket names the rate-limit budget an operation draws from.
type Bucket string

const (
	BucketGeneral Bucket = "general"
	BucketAuth    Bucket = "auth"
)

// RateLimitError carries the caller-facing retry hint for a RateLimited
// response.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("access: rate limited, retry after %s", e.RetryAfter)
}

// RateLimiter is a two-tier defense: an in-process golang.org/x/time/rate
// limiter rejects abusive bursts cheaply before any KV round-trip; the
// authoritative budget is the KV sliding-window counter. The in-process
// limiter is a fast-path optimization only — on restart, or in a
// multi-instance deployment, the KV counter is what actually bounds
// request rate.
type RateLimiter struct {
	kv kv.KV

	mu       sync.Mutex
	fastPath map[string]*rate.Limiter

	generalPerMin int
	authPerMin    int
}

// NewRateLimiter builds a RateLimiter with the configured per-minute
// budgets for the general and auth buckets.
func NewRateLimiter(cache kv.KV, generalPerMin, authPerMin int) *RateLimiter {
	return &RateLimiter{
		kv:            cache,
		fastPath:      make(map[string]*rate.Limiter),
		generalPerMin: generalPerMin,
		authPerMin:    authPerMin,
	}
}

func (r *RateLimiter) fastLimiterFor(bucket Bucket, ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(bucket) + ":" + ip
	l, ok := r.fastPath[key]
	if ok {
		return l
	}
	perMin := r.generalPerMin
	if bucket == BucketAuth {
		perMin = r.authPerMin
	}
	// Burst twice the per-second rate absorbs a legitimate page's initial
	// fan-out of requests without opening the budget up meaningfully.
	l = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin*2)
	r.fastPath[key] = l
	return l
}

// Allow enforces the two-tier budget for (bucket, ip). It returns a
// *RateLimitError (never a bare error) when the budget is exceeded.
func (r *RateLimiter) Allow(ctx context.Context, bucket Bucket, ip string) error {
	if !r.fastLimiterFor(bucket, ip).Allow() {
		return &RateLimitError{RetryAfter: time.Second}
	}

	minuteWindow := time.Now().UTC().Format("200601021504")
	key := fmt.Sprintf("ratelimit:%s:%s:%s", bucket, ip, minuteWindow)
	n, err := r.kv.Incr(ctx, key, time.Minute)
	if err != nil {
		// KV unavailability is Transient upstream; the fast-path limiter
		// already bounded the burst, so we fail open rather than turn a
		// cache outage into a total lockout.
		return nil
	}

	limit := r.generalPerMin
	if bucket == BucketAuth {
		limit = r.authPerMin
	}
	if int(n) > limit {
		return &RateLimitError{RetryAfter: time.Minute}
	}
	return nil
}
