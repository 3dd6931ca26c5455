// Package repo implements domain.JobRepository against the durable jobs
// audit-trail table, through the teacher's marker-validated SQLRunner.
package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository over Postgres.
type JobRepositoryPG struct {
	runner *infra.SQLRunner
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(runner *infra.SQLRunner) *JobRepositoryPG {
	return &JobRepositoryPG{runner: runner}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.runner.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.ChatRef,
		job.ReplyRef,
		job.SourcePath,
		job.DisplayName,
		job.MimeType,
		job.SizeBytes,
		job.ModelID,
		job.SubmitterID,
		job.SubmitterLabel,
		job.Status,
		job.Attempts,
		nullableString(job.ErrorMessage),
		nullableBytes(job.ResultJSON),
		job.EnqueuedAt,
		job.UpdatedAt,
	)
	return err
}

// UpdateStatus updates job status and optionally error/result payloads.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg *string, resultJSON []byte) error {
	_, err := r.runner.Exec(ctx, sqlinline.QUpdateJobStatus, jobID, status, errMsg, nullableBytes(resultJSON))
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.runner.QueryRow(ctx, sqlinline.QGetJobByID, jobID)
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.ChatRef,
		&job.ReplyRef,
		&job.SourcePath,
		&job.DisplayName,
		&job.MimeType,
		&job.SizeBytes,
		&job.ModelID,
		&job.SubmitterID,
		&job.SubmitterLabel,
		&job.Status,
		&job.Attempts,
		&job.ErrorMessage,
		&job.ResultJSON,
		&job.EnqueuedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// PurgeTerminal deletes succeeded records older than olderThanSucceeded
// seconds beyond keepSucceeded, and failed records beyond keepFailed, per
// §4.6's complete_retention policy.
func (r *JobRepositoryPG) PurgeTerminal(ctx context.Context, keepSucceeded, keepFailed int, olderThanSucceeded int) (int64, error) {
	tag, err := r.runner.Exec(ctx, sqlinline.QPurgeTerminal, keepSucceeded, keepFailed, olderThanSucceeded)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
