package dispatch

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/vultisig/sip/internal/metrics"
)

// RateLimit holds every job until the limiter grants it a slot.
func RateLimit(limiter *rate.Limiter, m metrics.WorkerMetrics) asynq.MiddlewareFunc {
	if m == nil {
		m = metrics.Nil()
	}
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			r := limiter.Reserve()
			if !r.OK() {
				return next.ProcessTask(ctx, t)
			}
			if d := r.Delay(); d > 0 {
				m.RecordRateLimited()
				timer := time.NewTimer(d)
				select {
				case <-ctx.Done():
					timer.Stop()
					r.Cancel()
					return ctx.Err()
				case <-timer.C:
				}
			}
			return next.ProcessTask(ctx, t)
		})
	}
}

// NewLimiter allows perSecond jobs per second with no burst beyond one.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
