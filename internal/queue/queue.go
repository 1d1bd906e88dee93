// Package queue is the durable job queue: a Redis-backed pending list with
// late acknowledgement, delayed retries with exponential backoff, and a
// per-job state hash for status lookups.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/framefeed/vidscribe/internal/config"
	"github.com/framefeed/vidscribe/internal/log"
	"github.com/framefeed/vidscribe/internal/metrics"
)

const (
	keyPending    = "vidscribe:jobs:pending"
	keyProcessing = "vidscribe:jobs:processing"
	keyDelayed    = "vidscribe:jobs:delayed"

	// Finished job hashes linger for a week for status lookups.
	doneTTL = 7 * 24 * time.Hour

	// maxBackoff caps the exponential retry delay.
	maxBackoff = 30 * time.Minute
)

// SubmissionKind classifies the source URL shape.
type SubmissionKind string

const (
	KindVideoHost      SubmissionKind = "video-host"
	KindChatAttachment SubmissionKind = "chat-attachment"
	// KindSmoke is a no-op job used to verify the intake→queue→worker path.
	KindSmoke SubmissionKind = "smoke"
)

// Submission is the validated webhook payload a job carries.
type Submission struct {
	Kind           SubmissionKind `json:"kind"`
	VideoURL       string         `json:"video_url"`
	ChannelName    string         `json:"channel_name"`
	DiscordEntryID string         `json:"discord_entry_id"`
	ParentFolderID string         `json:"parent_folder_id,omitempty"`
}

// State is a job's lifecycle position in the state hash.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateRetrying State = "retrying"
	StateDone     State = "done"
	StateFailed   State = "failed"
)

// Job is one unit of work. The envelope travels through the broker lists;
// the state hash mirrors it for observers.
type Job struct {
	ID         string     `json:"id"`
	Submission Submission `json:"submission"`
	Attempt    int        `json:"attempt"`
	EnqueuedAt time.Time  `json:"enqueued_at"`

	raw string // broker list element, needed for LREM
}

// Status is the observer-facing view of a job.
type Status struct {
	ID        string `json:"id"`
	State     State  `json:"state"`
	Attempt   int    `json:"attempt"`
	Error     string `json:"error,omitempty"`
	Result    string `json:"result,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// ErrJobNotFound is returned by StatusOf for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Queue wraps the broker connection.
type Queue struct {
	client *redis.Client
	cfg    config.Queue
}

// New connects to the broker and verifies the connection.
func New(cfg *config.Config) (*Queue, error) {
	opts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.WithComponent("queue").Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("connected to broker")
	return &Queue{client: client, cfg: cfg.Queue}, nil
}

// NewWithClient wires an existing client, used by tests.
func NewWithClient(client *redis.Client, cfg config.Queue) *Queue {
	return &Queue{client: client, cfg: cfg}
}

// Close releases the broker connection.
func (q *Queue) Close() error { return q.client.Close() }

func jobKey(id string) string { return "vidscribe:job:" + id }

// Enqueue accepts a submission and returns its job id once the broker has
// durably queued it.
func (q *Queue) Enqueue(ctx context.Context, sub Submission) (string, error) {
	job := Job{
		ID:         uuid.NewString(),
		Submission: sub,
		EnqueuedAt: time.Now().UTC(),
	}
	envelope, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), map[string]any{
		"state":      string(StateQueued),
		"attempt":    0,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	pipe.LPush(ctx, keyPending, envelope)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	q.refreshDepth(ctx)
	log.FromContext(ctx).Info().
		Str("job_id", job.ID).
		Str("channel", sub.ChannelName).
		Str("kind", string(sub.Kind)).
		Msg("job enqueued")
	return job.ID, nil
}

// Claim blocks up to block for a pending job and moves it to the
// processing list. The job stays there until Ack, Fail or Requeue; a nil
// job means the wait timed out.
func (q *Queue) Claim(ctx context.Context, block time.Duration) (*Job, error) {
	raw, err := q.client.BLMove(ctx, keyPending, keyProcessing, "RIGHT", "LEFT", block).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Poison envelope: drop it rather than wedge the worker.
		q.client.LRem(ctx, keyProcessing, 1, raw)
		return nil, fmt.Errorf("malformed job envelope: %w", err)
	}
	job.raw = raw

	q.setState(ctx, job.ID, StateRunning, job.Attempt, "", "")
	q.refreshDepth(ctx)
	return &job, nil
}

// Ack removes a finished job from the processing list and records its
// result. Late acknowledgement: this is the only success path out.
func (q *Queue) Ack(ctx context.Context, job *Job, result string) error {
	if err := q.client.LRem(ctx, keyProcessing, 1, job.raw).Err(); err != nil {
		return err
	}
	q.setState(ctx, job.ID, StateDone, job.Attempt, "", result)
	q.client.Expire(ctx, jobKey(job.ID), doneTTL)
	return nil
}

// Fail handles a failed attempt. Terminal failures (and attempts beyond the
// retry budget) are recorded as failed; anything else is scheduled on the
// delayed set with exponential backoff and jitter.
func (q *Queue) Fail(ctx context.Context, job *Job, jobErr error, terminal bool) error {
	if err := q.client.LRem(ctx, keyProcessing, 1, job.raw).Err(); err != nil {
		return err
	}

	nextAttempt := job.Attempt + 1
	if terminal || nextAttempt > q.cfg.MaxRetries {
		q.setState(ctx, job.ID, StateFailed, job.Attempt, jobErr.Error(), "")
		q.client.Expire(ctx, jobKey(job.ID), doneTTL)
		log.FromContext(ctx).Error().Err(jobErr).
			Str("job_id", job.ID).
			Int("attempt", job.Attempt).
			Bool("terminal", terminal).
			Msg("job failed permanently")
		return nil
	}

	retry := *job
	retry.Attempt = nextAttempt
	envelope, err := json.Marshal(retry)
	if err != nil {
		return err
	}

	delay := q.backoffDelay(job.Attempt)
	readyAt := time.Now().Add(delay)
	if err := q.client.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: envelope,
	}).Err(); err != nil {
		return err
	}

	q.setState(ctx, job.ID, StateRetrying, nextAttempt, jobErr.Error(), "")
	metrics.RecordRetry()
	log.FromContext(ctx).Warn().Err(jobErr).
		Str("job_id", job.ID).
		Int("next_attempt", nextAttempt).
		Dur("delay", delay).
		Msg("job scheduled for retry")
	return nil
}

// Requeue puts an in-flight job back at the head of the pending list
// without burning an attempt. Used when a worker shuts down mid-job.
func (q *Queue) Requeue(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, keyProcessing, 1, job.raw)
	pipe.RPush(ctx, keyPending, job.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	q.setState(ctx, job.ID, StateQueued, job.Attempt, "", "")
	return nil
}

// PromoteDelayed moves every due delayed job back onto the pending list.
func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, raw := range members {
		removed, err := q.client.ZRem(ctx, keyDelayed, raw).Result()
		if err != nil || removed == 0 {
			continue // another promoter won the race
		}
		if err := q.client.LPush(ctx, keyPending, raw).Err(); err != nil {
			return promoted, err
		}

		var job Job
		if json.Unmarshal([]byte(raw), &job) == nil {
			q.setState(ctx, job.ID, StateQueued, job.Attempt, "", "")
		}
		promoted++
	}

	if promoted > 0 {
		q.refreshDepth(ctx)
	}
	return promoted, nil
}

// StatusOf reads the observer view of a job.
func (q *Queue) StatusOf(ctx context.Context, jobID string) (*Status, error) {
	fields, err := q.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	st := &Status{
		ID:        jobID,
		State:     State(fields["state"]),
		Error:     fields["error"],
		Result:    fields["result"],
		UpdatedAt: fields["updated_at"],
	}
	fmt.Sscanf(fields["attempt"], "%d", &st.Attempt)
	return st, nil
}

// Depth returns the pending list length and refreshes the gauge.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, keyPending).Result()
	if err != nil {
		return 0, err
	}
	metrics.QueueDepth.Set(float64(n))
	return n, nil
}

func (q *Queue) refreshDepth(ctx context.Context) {
	_, _ = q.Depth(ctx)
}

func (q *Queue) setState(ctx context.Context, jobID string, state State, attempt int, errMsg, result string) {
	fields := map[string]any{
		"state":      string(state),
		"attempt":    attempt,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if errMsg != "" {
		fields["error"] = errMsg
	}
	if result != "" {
		fields["result"] = result
	}
	if err := q.client.HSet(ctx, jobKey(jobID), fields).Err(); err != nil {
		log.WithComponent("queue").Warn().Err(err).Str("job_id", jobID).Msg("state write failed")
	}
}

// backoffDelay is base × 2^attempt with ±25% jitter, capped.
func (q *Queue) backoffDelay(attempt int) time.Duration {
	delay := q.cfg.RetryDelay << attempt
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(delay) * jitter)
}
