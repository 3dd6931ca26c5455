// Package queue implements the Job Queue (§4.6): a bounded durable FIFO
// backed by redis lists, a delayed-retry sorted set, and pub/sub progress
// fan-out. The list-push/blocking-pop shape mirrors
// ebrukilic61-file-uploader-v2's cmd/worker/main.go (LPush onto "job_queue",
// BRPop to dequeue, LPush onto "processed_queue" to hand results back),
// generalized from a single fire-and-forget list into the waiting/active/
// succeeded/failed state machine §4.6 and §3 describe.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"server/internal/domain"
)

const (
	keyWaiting  = "queue:waiting"
	keyActive   = "queue:active"
	keySucceed  = "queue:succeeded"
	keyFailed   = "queue:failed"
	keyDelayed  = "queue:delayed"
	jobKeyPfx   = "job:"
	progressPfx = "progress:"
)

// Options configures a Queue.
type Options struct {
	MaxWaiting       int
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	LeaseTimeout     time.Duration
	KeepSucceeded    int
	KeepFailed       int
	SucceededMaxAge  time.Duration
}

// Queue is the redis-backed durable job queue.
type Queue struct {
	rdb  redis.Cmdable
	opts Options
}

// New constructs a Queue over an existing redis client.
func New(rdb redis.Cmdable, opts Options) *Queue {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 5 * time.Minute
	}
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 20 * time.Minute
	}
	if opts.KeepSucceeded <= 0 {
		opts.KeepSucceeded = 100
	}
	if opts.KeepFailed <= 0 {
		opts.KeepFailed = 50
	}
	if opts.SucceededMaxAge <= 0 {
		opts.SucceededMaxAge = 24 * time.Hour
	}
	return &Queue{rdb: rdb, opts: opts}
}

type jobRecord struct {
	Job       domain.Job `json:"job"`
	LeasedAt  time.Time  `json:"leased_at,omitempty"`
	ReadyAt   time.Time  `json:"ready_at,omitempty"`
}

func jobKey(id string) string { return jobKeyPfx + id }

// Enqueue appends job to the waiting list, rejecting with
// domain.ErrQueueFull when the waiting count has reached max_waiting.
// Position is the job's 1-based index among waiting jobs.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) (position int, err error) {
	waiting, err := q.rdb.LLen(ctx, keyWaiting).Result()
	if err != nil {
		return 0, fmt.Errorf("check queue depth: %w", err)
	}
	if q.opts.MaxWaiting > 0 && int(waiting) >= q.opts.MaxWaiting {
		return 0, domain.ErrQueueFull
	}

	job.Status = domain.JobStatusQueued
	job.EnqueuedAt = time.Now()
	job.UpdatedAt = job.EnqueuedAt

	if err := q.putRecord(ctx, jobRecord{Job: *job}); err != nil {
		return 0, err
	}
	if err := q.rdb.RPush(ctx, keyWaiting, job.ID).Err(); err != nil {
		return 0, fmt.Errorf("push waiting: %w", err)
	}
	return int(waiting) + 1, nil
}

// Lease blocks until a waiting job exists (or ctx is cancelled), marks it
// active, and returns it. Lease is unbounded by design per §5.
func (q *Queue) Lease(ctx context.Context) (*domain.Job, error) {
	result, err := q.rdb.BLPop(ctx, 0, keyWaiting).Result()
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return nil, err
		}
		return nil, fmt.Errorf("lease: %w", err)
	}
	// BLPop returns [key, value]; value is the job ID.
	jobID := result[1]

	rec, err := q.getRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	rec.Job.Status = domain.JobStatusActive
	rec.Job.UpdatedAt = time.Now()
	rec.LeasedAt = rec.Job.UpdatedAt
	if err := q.putRecord(ctx, *rec); err != nil {
		return nil, err
	}
	if err := q.rdb.SAdd(ctx, keyActive, jobID).Err(); err != nil {
		return nil, fmt.Errorf("add active: %w", err)
	}
	job := rec.Job
	return &job, nil
}

// AckSuccess marks a job terminally succeeded, moving it off the active
// set and onto the succeeded list.
func (q *Queue) AckSuccess(ctx context.Context, jobID string, resultJSON []byte) error {
	rec, err := q.getRecord(ctx, jobID)
	if err != nil {
		return err
	}
	rec.Job.Status = domain.JobStatusSucceeded
	rec.Job.ResultJSON = resultJSON
	rec.Job.UpdatedAt = time.Now()
	if err := q.putRecord(ctx, *rec); err != nil {
		return err
	}
	if err := q.rdb.SRem(ctx, keyActive, jobID).Err(); err != nil {
		return fmt.Errorf("remove active: %w", err)
	}
	if err := q.rdb.LPush(ctx, keySucceed, jobID).Err(); err != nil {
		return fmt.Errorf("push succeeded: %w", err)
	}
	return q.rdb.LTrim(ctx, keySucceed, 0, int64(q.opts.KeepSucceeded-1)).Err()
}

// AckFailure records a terminal or retriable failure. On a retriable
// failure under max_attempts, the job is scheduled for re-enqueue after
// base_delay × 2^attempt (capped at max_delay); otherwise it moves to the
// failed list.
func (q *Queue) AckFailure(ctx context.Context, jobID string, cause error, retriable bool) error {
	rec, err := q.getRecord(ctx, jobID)
	if err != nil {
		return err
	}
	if err := q.rdb.SRem(ctx, keyActive, jobID).Err(); err != nil {
		return fmt.Errorf("remove active: %w", err)
	}

	if retriable && rec.Job.Attempts < q.opts.MaxAttempts {
		rec.Job.Attempts++
		rec.Job.Status = domain.JobStatusQueued
		msg := cause.Error()
		rec.Job.ErrorMessage = msg
		rec.Job.UpdatedAt = time.Now()
		delay := backoff(q.opts.BaseDelay, q.opts.MaxDelay, rec.Job.Attempts)
		rec.ReadyAt = rec.Job.UpdatedAt.Add(delay)
		if err := q.putRecord(ctx, *rec); err != nil {
			return err
		}
		return q.rdb.ZAdd(ctx, keyDelayed, &redis.Z{Score: float64(rec.ReadyAt.Unix()), Member: jobID}).Err()
	}

	rec.Job.Status = domain.JobStatusFailed
	rec.Job.ErrorMessage = cause.Error()
	rec.Job.UpdatedAt = time.Now()
	if err := q.putRecord(ctx, *rec); err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, keyFailed, jobID).Err(); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}
	return q.rdb.LTrim(ctx, keyFailed, 0, int64(q.opts.KeepFailed-1)).Err()
}

// backoff computes base × 2^(attempt-1), capped at max, so the first retry
// (attempt 1) waits exactly base.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// SweepDelayed moves delayed jobs whose ready_at has elapsed back onto the
// waiting list. Intended to be called periodically by a housekeeping loop.
func (q *Queue) SweepDelayed(ctx context.Context) (int, error) {
	now := float64(time.Now().Unix())
	ids, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed: %w", err)
	}
	moved := 0
	for _, id := range ids {
		if err := q.rdb.ZRem(ctx, keyDelayed, id).Err(); err != nil {
			continue
		}
		if err := q.rdb.RPush(ctx, keyWaiting, id).Err(); err != nil {
			continue
		}
		moved++
	}
	return moved, nil
}

// SweepStaleLeases reclaims jobs in the active set whose lease has exceeded
// lease_timeout (worker crash) by promoting them back to waiting, per
// §4.6's invariant.
func (q *Queue) SweepStaleLeases(ctx context.Context) (int, error) {
	ids, err := q.rdb.SMembers(ctx, keyActive).Result()
	if err != nil {
		return 0, fmt.Errorf("scan active: %w", err)
	}
	reclaimed := 0
	cutoff := time.Now().Add(-q.opts.LeaseTimeout)
	for _, id := range ids {
		rec, err := q.getRecord(ctx, id)
		if err != nil || rec.LeasedAt.After(cutoff) {
			continue
		}
		rec.Job.Status = domain.JobStatusQueued
		rec.Job.UpdatedAt = time.Now()
		if err := q.putRecord(ctx, *rec); err != nil {
			continue
		}
		q.rdb.SRem(ctx, keyActive, id)
		q.rdb.RPush(ctx, keyWaiting, id)
		reclaimed++
	}
	return reclaimed, nil
}

// Progress publishes snapshot on the job's progress channel.
func (q *Queue) Progress(ctx context.Context, snapshot domain.JobProgress) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return q.rdb.Publish(ctx, progressPfx+snapshot.JobID, data).Err()
}

// Subscribe returns a pub/sub handle for the job's progress channel;
// callers must Close it when done.
func (q *Queue) Subscribe(ctx context.Context, jobID string) *redis.PubSub {
	client, ok := q.rdb.(*redis.Client)
	if !ok {
		return nil
	}
	return client.Subscribe(ctx, progressPfx+jobID)
}

// WaitingEntry is one job's position within the waiting list.
type WaitingEntry struct {
	JobID    string
	Position int
}

// UserStatus is the §4.6 status(user_id) response shape.
type UserStatus struct {
	ActiveJobID string
	Waiting     []WaitingEntry
}

// Status returns the submitter's active job (if any) and its position(s)
// among waiting jobs.
func (q *Queue) Status(ctx context.Context, submitterID string) (UserStatus, error) {
	var out UserStatus

	activeIDs, err := q.rdb.SMembers(ctx, keyActive).Result()
	if err != nil {
		return out, fmt.Errorf("scan active: %w", err)
	}
	for _, id := range activeIDs {
		rec, err := q.getRecord(ctx, id)
		if err == nil && rec.Job.SubmitterID == submitterID {
			out.ActiveJobID = id
			break
		}
	}

	waiting, err := q.rdb.LRange(ctx, keyWaiting, 0, -1).Result()
	if err != nil {
		return out, fmt.Errorf("scan waiting: %w", err)
	}
	for i, id := range waiting {
		rec, err := q.getRecord(ctx, id)
		if err == nil && rec.Job.SubmitterID == submitterID {
			out.Waiting = append(out.Waiting, WaitingEntry{JobID: id, Position: i + 1})
		}
	}
	return out, nil
}

// Stats is the §4.6 queue_stats() response shape.
type Stats struct {
	Waiting   int
	Active    int
	Succeeded int
	Failed    int
	Delayed   int
}

// QueueStats counts jobs by state.
func (q *Queue) QueueStats(ctx context.Context) (Stats, error) {
	waiting, err := q.rdb.LLen(ctx, keyWaiting).Result()
	if err != nil {
		return Stats{}, err
	}
	active, err := q.rdb.SCard(ctx, keyActive).Result()
	if err != nil {
		return Stats{}, err
	}
	succeeded, err := q.rdb.LLen(ctx, keySucceed).Result()
	if err != nil {
		return Stats{}, err
	}
	failed, err := q.rdb.LLen(ctx, keyFailed).Result()
	if err != nil {
		return Stats{}, err
	}
	delayed, err := q.rdb.ZCard(ctx, keyDelayed).Result()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Waiting: int(waiting), Active: int(active), Succeeded: int(succeeded), Failed: int(failed), Delayed: int(delayed)}, nil
}

// CompleteRetention purges every succeeded record older than
// succeeded_max_age, per §4.6. The keep_succeeded cap is not consulted
// here; AckSuccess enforces it by trimming the succeeded list.
func (q *Queue) CompleteRetention(ctx context.Context) (purged int, err error) {
	ids, err := q.rdb.LRange(ctx, keySucceed, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan succeeded: %w", err)
	}
	cutoff := time.Now().Add(-q.opts.SucceededMaxAge)
	for _, id := range ids {
		rec, err := q.getRecord(ctx, id)
		if err != nil || rec.Job.UpdatedAt.After(cutoff) {
			continue
		}
		q.rdb.LRem(ctx, keySucceed, 1, id)
		q.rdb.Del(ctx, jobKey(id))
		purged++
	}
	return purged, nil
}

func (q *Queue) putRecord(ctx context.Context, rec jobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	return q.rdb.Set(ctx, jobKey(rec.Job.ID), data, 0).Err()
}

func (q *Queue) getRecord(ctx context.Context, jobID string) (*jobRecord, error) {
	data, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	var rec jobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job record: %w", err)
	}
	return &rec, nil
}

// GetByID returns the current state of one job.
func (q *Queue) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	rec, err := q.getRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	job := rec.Job
	return &job, nil
}
