package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framefeed/vidscribe/internal/config"
)

func setupQueue(t *testing.T, cfg config.Queue) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.SoftTimeLimit == 0 {
		cfg.SoftTimeLimit = time.Minute
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	return NewWithClient(client, cfg)
}

func testSubmission() Submission {
	return Submission{
		Kind:           KindVideoHost,
		VideoURL:       "https://youtu.be/abc123",
		ChannelName:    "market-outlook",
		DiscordEntryID: "entry-1",
	}
}

func TestEnqueueClaimAck(t *testing.T) {
	q := setupQueue(t, config.Queue{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st, err := q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, st.State)

	job, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, 0, job.Attempt)
	assert.Equal(t, "https://youtu.be/abc123", job.Submission.VideoURL)

	st, err = q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)

	require.NoError(t, q.Ack(ctx, job, "https://www.notion.so/page1"))

	st, err = q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, "https://www.notion.so/page1", st.Result)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestClaimTimesOutEmpty(t *testing.T) {
	q := setupQueue(t, config.Queue{})

	job, err := q.Claim(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailSchedulesRetry(t *testing.T) {
	q := setupQueue(t, config.Queue{RetryDelay: time.Millisecond})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)
	job, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job, errors.New("download failed"), false))

	st, err := q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateRetrying, st.State)
	assert.Equal(t, 1, st.Attempt)
	assert.Equal(t, "download failed", st.Error)

	// Nothing pending until the delay elapses and a promoter runs.
	job, err = q.Claim(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, job)

	time.Sleep(10 * time.Millisecond)
	n, err := q.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err = q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, 1, job.Attempt)
}

func TestFailTerminalSkipsRetry(t *testing.T) {
	q := setupQueue(t, config.Queue{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)
	job, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job, errors.New("unknown channel"), true))

	st, err := q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "unknown channel", st.Error)

	n, err := q.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailExhaustsRetryBudget(t *testing.T) {
	q := setupQueue(t, config.Queue{MaxRetries: 1, RetryDelay: time.Millisecond})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)

	job, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job, errors.New("attempt 0 failed"), false))

	time.Sleep(10 * time.Millisecond)
	_, err = q.PromoteDelayed(ctx)
	require.NoError(t, err)

	job, err = q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, q.Fail(ctx, job, errors.New("attempt 1 failed"), false))

	st, err := q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "attempt 1 failed", st.Error)
}

func TestRequeuePreservesAttempt(t *testing.T) {
	q := setupQueue(t, config.Queue{})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)
	job, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, job))

	st, err := q.StatusOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, st.State)

	again, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, id, again.ID)
	assert.Equal(t, 0, again.Attempt, "requeue must not burn an attempt")
}

func TestPromoteDelayedLeavesFutureJobs(t *testing.T) {
	q := setupQueue(t, config.Queue{RetryDelay: time.Hour})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)
	job, err := q.Claim(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job, errors.New("transient"), false))

	n, err := q.PromoteDelayed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatusOfUnknownJob(t *testing.T) {
	q := setupQueue(t, config.Queue{})
	_, err := q.StatusOf(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	q := setupQueue(t, config.Queue{RetryDelay: time.Second})

	d0 := q.backoffDelay(0)
	assert.GreaterOrEqual(t, d0, 750*time.Millisecond)
	assert.LessOrEqual(t, d0, 1250*time.Millisecond)

	d3 := q.backoffDelay(3)
	assert.GreaterOrEqual(t, d3, 6*time.Second)
	assert.LessOrEqual(t, d3, 10*time.Second)

	dHuge := q.backoffDelay(60)
	assert.LessOrEqual(t, dHuge, time.Duration(float64(maxBackoff)*1.25))
}

type fakeHandler struct {
	calls  *atomic.Int64
	handle func(ctx context.Context, job *Job) (string, error)
}

func (h *fakeHandler) Handle(ctx context.Context, job *Job) (string, error) {
	h.calls.Add(1)
	if h.handle != nil {
		return h.handle(ctx, job)
	}
	return "ok", nil
}

func TestPoolProcessesAndRecycles(t *testing.T) {
	q := setupQueue(t, config.Queue{Concurrency: 1, MaxJobsPerWorker: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	var factories atomic.Int64
	factory := func() (Handler, error) {
		factories.Add(1)
		return &fakeHandler{calls: &calls}, nil
	}

	var ids []string
	for range 3 {
		id, err := q.Enqueue(ctx, testSubmission())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	pool := NewPool(q, factory, q.cfg)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			st, err := q.StatusOf(context.Background(), id)
			if err != nil || st.State != StateDone {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int64(3), calls.Load())
	// Two jobs on the first handler, then a recycle for the third.
	assert.Equal(t, int64(2), factories.Load())
}

func TestPoolHardLimitAbandonsWedgedHandler(t *testing.T) {
	q := setupQueue(t, config.Queue{
		Concurrency:   1,
		SoftTimeLimit: 20 * time.Millisecond,
		TimeLimit:     60 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	var calls atomic.Int64
	var factories atomic.Int64
	factory := func() (Handler, error) {
		if factories.Add(1) == 1 {
			// Ignores its context entirely, like a wedged child process.
			return &fakeHandler{
				calls: &calls,
				handle: func(context.Context, *Job) (string, error) {
					<-release
					return "", errors.New("too late")
				},
			}, nil
		}
		return &fakeHandler{calls: &calls}, nil
	}

	wedgedID, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)

	pool := NewPool(q, factory, q.cfg)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, stErr := q.StatusOf(context.Background(), wedgedID)
		return stErr == nil && st.State == StateFailed
	}, 5*time.Second, 10*time.Millisecond)

	st, err := q.StatusOf(context.Background(), wedgedID)
	require.NoError(t, err)
	assert.Contains(t, st.Error, "hard time limit")

	// The pool keeps claiming on a fresh handler.
	nextID, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, stErr := q.StatusOf(context.Background(), nextID)
		return stErr == nil && st.State == StateDone
	}, 5*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, factories.Load(), int64(2), "the wedged handler must be replaced")

	cancel()
	require.NoError(t, <-done)
}

func TestPoolTerminalErrorFailsWithoutRetry(t *testing.T) {
	q := setupQueue(t, config.Queue{Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	factory := func() (Handler, error) {
		return &fakeHandler{
			calls: &calls,
			handle: func(context.Context, *Job) (string, error) {
				return "", Terminal(errors.New("channel has no policy"))
			},
		}, nil
	}

	id, err := q.Enqueue(ctx, testSubmission())
	require.NoError(t, err)

	pool := NewPool(q, factory, q.cfg)
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, err := q.StatusOf(context.Background(), id)
		return err == nil && st.State == StateFailed
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), calls.Load(), "terminal failures must not retry")
}

func TestTerminalUnwraps(t *testing.T) {
	base := errors.New("boom")
	wrapped := Terminal(base)
	assert.ErrorIs(t, wrapped, base)
	assert.True(t, isTerminal(wrapped))
	assert.False(t, isTerminal(base))
	assert.Nil(t, Terminal(nil))
}
