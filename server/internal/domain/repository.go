package domain

import "context"

// JobRepository defines durable persistence for job metadata: the
// audit-trail Postgres table with its complete_retention purge. The live
// waiting/active lists, and the queue's status/queue_stats answers, are
// held in the durable queue store (redis), not here.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg *string, resultJSON []byte) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	PurgeTerminal(ctx context.Context, keepSucceeded, keepFailed int, olderThanSucceeded int) (int64, error)
}
