package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
)

const (
	claimBlock      = 5 * time.Second
	promoteInterval = 10 * time.Second
)

// Handler processes one claimed job. A TerminalError return (or a soft time
// limit hit) fails the job without a retry; any other error schedules one.
type Handler interface {
	Handle(ctx context.Context, job *Job) (result string, err error)
}

// HandlerFactory builds a fresh Handler. Workers discard their handler and
// call the factory again after MaxJobsPerWorker jobs, so per-handler state
// (scratch dirs, loaded models, HTTP clients) cannot accumulate forever.
type HandlerFactory func() (Handler, error)

// TerminalError marks a job failure that must not be retried.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err so the pool records it without scheduling a retry.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &TerminalError{Err: err}
}

// Pool runs a fixed set of workers claiming jobs from the queue, plus one
// promoter loop feeding due retries back into the pending list.
type Pool struct {
	queue   *Queue
	factory HandlerFactory
	cfg     config.Queue
}

// NewPool assembles a worker pool. Workers start on Run.
func NewPool(q *Queue, factory HandlerFactory, cfg config.Queue) *Pool {
	return &Pool{queue: q, factory: factory, cfg: cfg}
}

// Run blocks until ctx is cancelled, then drains: in-flight jobs are
// requeued without burning an attempt.
func (p *Pool) Run(ctx context.Context) error {
	logger := log.WithComponent("worker")
	logger.Info().
		Int("concurrency", p.cfg.Concurrency).
		Int("max_jobs_per_worker", p.cfg.MaxJobsPerWorker).
		Msg("worker pool starting")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error { return p.worker(ctx, id) })
	}
	g.Go(func() error { return p.promoter(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info().Msg("worker pool stopped")
	return err
}

func (p *Pool) worker(ctx context.Context, id int) error {
	logger := log.WithComponent("worker").With().Int("worker", id).Logger()

	handler, err := p.factory()
	if err != nil {
		return err
	}
	handled := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := p.queue.Claim(ctx, claimBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Err(err).Msg("claim failed")
			continue
		}
		if job == nil {
			continue
		}

		abandoned := p.process(ctx, handler, job)

		handled++
		if abandoned || (p.cfg.MaxJobsPerWorker > 0 && handled >= p.cfg.MaxJobsPerWorker) {
			logger.Info().Int("jobs", handled).Bool("abandoned", abandoned).Msg("recycling worker components")
			handler, err = p.factory()
			if err != nil {
				return err
			}
			handled = 0
		}
	}
}

// process runs one job under the soft and hard time limits. Worker shutdown
// mid-job requeues; a soft deadline hit is terminal. A handler that outlives
// the hard limit is abandoned: its context is cancelled, which tears down the
// job's child process group, the job is failed without retry, and the caller
// rebuilds the handler from the factory. Returns whether the handler was
// abandoned.
func (p *Pool) process(parent context.Context, handler Handler, job *Job) bool {
	ctx := log.ContextWithJobID(parent, job.ID)
	logger := log.FromContext(ctx)

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.SoftTimeLimit)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		result, err := handler.Handle(jobCtx, job)
		done <- outcome{result: result, err: err}
	}()

	var hardC <-chan time.Time
	if p.cfg.TimeLimit > 0 {
		hard := time.NewTimer(p.cfg.TimeLimit)
		defer hard.Stop()
		hardC = hard.C
	}

	var result string
	var err error
	select {
	case o := <-done:
		result, err = o.result, o.err
	case <-hardC:
		cancel()
		ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer ackCancel()
		hardErr := fmt.Errorf("hard time limit %s exceeded", p.cfg.TimeLimit)
		if failErr := p.queue.Fail(ackCtx, job, hardErr, true); failErr != nil {
			logger.Error().Err(failErr).Msg("failure bookkeeping failed")
		}
		logger.Error().Dur("limit", p.cfg.TimeLimit).Msg("handler exceeded hard time limit, abandoning it")
		return true
	}
	elapsed := time.Since(start)

	// Detached context: the broker bookkeeping must outlive the job deadline
	// and the shutdown signal.
	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer ackCancel()

	switch {
	case err == nil:
		if ackErr := p.queue.Ack(ackCtx, job, result); ackErr != nil {
			logger.Error().Err(ackErr).Msg("ack failed, job will be reprocessed")
			return false
		}
		logger.Info().Dur("elapsed", elapsed).Msg("job completed")

	case parent.Err() != nil && jobCtx.Err() != nil && !deadlineHit(jobCtx):
		// Shutdown interrupted the job, not its own deadline.
		if rqErr := p.queue.Requeue(ackCtx, job); rqErr != nil {
			logger.Error().Err(rqErr).Msg("requeue on shutdown failed")
			return false
		}
		logger.Info().Msg("job requeued for shutdown")

	default:
		terminal := isTerminal(err) || deadlineHit(jobCtx)
		if failErr := p.queue.Fail(ackCtx, job, err, terminal); failErr != nil {
			logger.Error().Err(failErr).Msg("failure bookkeeping failed")
		}
	}
	return false
}

func (p *Pool) promoter(ctx context.Context) error {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := p.queue.PromoteDelayed(ctx)
			if err != nil && ctx.Err() == nil {
				log.WithComponent("worker").Warn().Err(err).Msg("retry promotion failed")
			}
			if n > 0 {
				log.WithComponent("worker").Info().Int("promoted", n).Msg("retries promoted")
			}
		}
	}
}

func isTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}

func deadlineHit(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}
