package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vultisig/sip/internal/tasks"
)

type rateMetricsMock struct {
	limited int
}

func (m *rateMetricsMock) RecordDispatch(string, float64) {}
func (m *rateMetricsMock) RecordRateLimited()             { m.limited++ }

func TestRateLimit(t *testing.T) {
	m := &rateMetricsMock{}
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)

	var calls []time.Time
	h := RateLimit(limiter, m)(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		calls = append(calls, time.Now())
		return nil
	}))

	task := asynq.NewTask(tasks.TypeExecutePlan, nil)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.NoError(t, h.ProcessTask(context.Background(), task))

	require.Len(t, calls, 2)
	require.GreaterOrEqual(t, calls[1].Sub(calls[0]), 80*time.Millisecond)
	require.Equal(t, 1, m.limited)

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := h.ProcessTask(ctx, task)
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, calls, 2)
	})
}

func TestNewLimiter(t *testing.T) {
	require.Equal(t, rate.Limit(1), NewLimiter(1).Limit())
	require.Equal(t, rate.Inf, NewLimiter(0).Limit())
}
