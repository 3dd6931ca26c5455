// Package worker implements the Worker (§4.7): it leases jobs off the
// Job Queue and drives them through upload, chunk planning, parallel
// analysis, merge, and trim, publishing progress at each phase transition.
// The claim-dispatch-update loop shape is adapted from the teacher
// codebase's cmd/worker jobWorker (ctx/logger/store fields, a
// blocking Run loop, one handleJob per iteration) — generalized from a
// Postgres SKIP LOCKED claim to the redis queue's blocking Lease, and from
// a single-call image/video dispatch to the multi-phase pipeline below.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"server/internal/chunkplan"
	"server/internal/credentials"
	"server/internal/domain"
	"server/internal/joberr"
	"server/internal/merger"
	"server/internal/queue"
	"server/internal/scheduler"
	"server/internal/storage"
	"server/internal/trimmer"
	"server/internal/upload"
)

const (
	uploadBandStart  = 10
	uploadBandEnd    = 40
	chunkPlanPercent = 41
	schedBandStart   = 42
	schedBandEnd     = 90
	mergePercent     = 91
	trimPercent      = 95
	cleanupGrace     = 60 * time.Second
	maxFileSize      = 1 << 30 // 1 GB, per §5
	jobSoftDeadline  = 15 * time.Minute
)

// Options configures a Worker.
type Options struct {
	ChunkTargetMinutes int
	ChunkOverlapS      float64
	MaxConcurrentChunks int
	ModelID            string
	AcquireTimeout     time.Duration
}

// Worker ties the queue, credential pool, upload adapter, scheduler,
// merger, and trimmer into the per-job pipeline.
type Worker struct {
	q         *queue.Queue
	pool      *credentials.Pool
	uploader  *upload.Client
	scheduler func(ctx context.Context, plan domain.ChunkPlan, fileRefs map[string]string, onProgress func(domain.ParallelProgress)) scheduler.Result
	repo      domain.JobRepository
	store     *storage.FileStore
	trim      trimmer.Trimmer
	logger    zerolog.Logger
	opts      Options
}

// New constructs a Worker. analysisClient is threaded through a thin
// closure so tests can substitute the scheduler's Run function.
func New(q *queue.Queue, pool *credentials.Pool, uploader *upload.Client, schedRun func(ctx context.Context, plan domain.ChunkPlan, fileRefs map[string]string, onProgress func(domain.ParallelProgress)) scheduler.Result, repo domain.JobRepository, store *storage.FileStore, trim trimmer.Trimmer, logger zerolog.Logger, opts Options) *Worker {
	if opts.ChunkTargetMinutes <= 0 {
		opts.ChunkTargetMinutes = 20
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}
	return &Worker{q: q, pool: pool, uploader: uploader, scheduler: schedRun, repo: repo, store: store, trim: trim, logger: logger, opts: opts}
}

// Run blocks, leasing and processing one job at a time, until ctx is
// cancelled. Across-jobs concurrency is one leased job per process, per §5.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.q.Lease(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("worker: lease failed")
			continue
		}

		w.handleJob(ctx, job)
	}
}

func (w *Worker) handleJob(ctx context.Context, job *domain.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, jobSoftDeadline)
	defer cancel()

	w.logger.Info().Str("job_id", job.ID).Msg("worker: picked job")

	if w.repo != nil {
		if err := w.repo.Create(jobCtx, job); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: audit-trail insert failed")
		}
	}

	if job.SizeBytes > maxFileSize {
		w.fail(jobCtx, job, joberr.New(joberr.InputInvalid, "source exceeds 1 GB limit", nil))
		return
	}

	artifact, trimmedPath, err := w.process(jobCtx, job)
	if err != nil {
		w.fail(jobCtx, job, err)
		w.cleanup(job.ID, job.SourcePath, trimmedPath)
		return
	}

	resultJSON := marshalArtifact(artifact)
	if w.repo != nil {
		_ = w.repo.UpdateStatus(jobCtx, job.ID, domain.JobStatusSucceeded, nil, resultJSON)
	}
	if err := w.q.AckSuccess(jobCtx, job.ID, resultJSON); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: ack success failed")
	}

	w.publish(jobCtx, job.ID, domain.StageComplete, 100, "done", nil)
	w.cleanupAfterGrace(job.ID, job.SourcePath, trimmedPath)
}

func (w *Worker) process(ctx context.Context, job *domain.Job) (domain.MergedArtifact, string, error) {
	// Step 1-2: upload across every credential, surfacing the first's progress.
	w.publish(ctx, job.ID, domain.StageUploading, uploadBandStart, "uploading to analysis service", nil)

	secrets := w.pool.Secrets()

	fileRefs, err := w.uploader.UploadAllCredentials(ctx, secrets, job.SourcePath, job.DisplayName, job.MimeType, func(frac float64) {
		pct := uploadBandStart + int(float64(uploadBandEnd-uploadBandStart)*frac)
		w.publish(ctx, job.ID, domain.StageUploading, pct, "uploading to analysis service", nil)
	})
	if err != nil {
		return domain.MergedArtifact{}, "", err
	}

	// Step 3: chunk plan.
	w.publish(ctx, job.ID, domain.StageProcessing, chunkPlanPercent, "planning chunks", nil)
	estimated := chunkplan.EstimateDurationS(job.SizeBytes)
	targetS := float64(w.opts.ChunkTargetMinutes) * 60
	plan := chunkplan.Plan(estimated, targetS, w.opts.ChunkOverlapS)

	// Step 4: scheduler, remapping overall_percent into [42,90].
	result := w.scheduler(ctx, plan, fileRefs, func(p domain.ParallelProgress) {
		pct := mapSchedulerPercent(p.OverallPercent)
		w.publish(ctx, job.ID, domain.StageAnalyzing, pct, fmt.Sprintf("analyzed %d/%d chunks", p.Completed+p.Failed, p.Total), p.ETA)
	})
	if ctx.Err() != nil {
		return domain.MergedArtifact{}, "", joberr.New(joberr.WorkerCrash, "job cancelled during analysis", ctx.Err())
	}

	// Step 5: merge. Published under StageAnalyzing (not StageProcessing) so
	// (stage_rank, percent) keeps climbing from the scheduler's rank-4 band
	// instead of regressing to rank 3, per §3's monotonicity invariant.
	w.publish(ctx, job.ID, domain.StageAnalyzing, mergePercent, "merging results", nil)
	artifact := merger.Merge(result.Chunks)

	// Step 6: trim, if the merge surfaced any main-content timestamps.
	var trimmedPath string
	if len(artifact.ContentMetadata.MainContentTimestamps) > 0 && w.trim != nil {
		w.publish(ctx, job.ID, domain.StageTrimming, trimPercent, "trimming source", nil)
		segments := toSegments(artifact.ContentMetadata.MainContentTimestamps)
		trimmedPath = w.store.JobTempPath(job.ID, "trimmed"+extFromMime(job.MimeType))
		if err := w.trim.Trim(ctx, job.SourcePath, segments, trimmedPath); err != nil {
			return domain.MergedArtifact{}, "", joberr.New(joberr.WorkerCrash, "trim failed", err)
		}
	}

	// Step 7: publish final result.
	w.publish(ctx, job.ID, domain.StageSending, 97, "sending result", nil)
	return artifact, trimmedPath, nil
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, err error) {
	retriable := false
	var je *joberr.Error
	if errors.As(err, &je) {
		retriable = je.Retriable()
	}
	w.logger.Error().Err(err).Str("job_id", job.ID).Bool("retriable", retriable).Msg("worker: job failed")
	w.publish(ctx, job.ID, domain.StageError, 0, err.Error(), nil)
	if w.repo != nil {
		msg := err.Error()
		_ = w.repo.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &msg, nil)
	}
	if ackErr := w.q.AckFailure(ctx, job.ID, err, retriable); ackErr != nil {
		w.logger.Error().Err(ackErr).Str("job_id", job.ID).Msg("worker: ack failure failed")
	}
}

func (w *Worker) publish(ctx context.Context, jobID string, stage domain.Stage, pct int, message string, eta *int) {
	if w.q == nil {
		return
	}
	if err := w.q.Progress(ctx, domain.JobProgress{JobID: jobID, Stage: stage, Percent: pct, Message: message, ETA: eta}); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: publish progress failed")
	}
}

// cleanup removes temp files immediately, used on the failure path where no
// grace period is warranted.
func (w *Worker) cleanup(jobID, sourcePath, trimmedPath string) {
	if w.store == nil {
		return
	}
	_ = w.store.Remove(sourcePath)
	if trimmedPath != "" {
		_ = w.store.Remove(trimmedPath)
	}
}

// cleanupAfterGrace removes temp files 60s after a terminal success, per §4.7 step 8.
func (w *Worker) cleanupAfterGrace(jobID, sourcePath, trimmedPath string) {
	if w.store == nil {
		return
	}
	go func() {
		time.Sleep(cleanupGrace)
		w.cleanup(jobID, sourcePath, trimmedPath)
	}()
}

// mapSchedulerPercent remaps the scheduler's own [0,100] overall_percent
// into the job's [42,90] progress band, per §4.7 step 4.
func mapSchedulerPercent(overall int) int {
	return schedBandStart + (overall*(schedBandEnd-schedBandStart))/100
}

func toSegments(timestamps []domain.MainContentTimestamp) []trimmer.Segment {
	segments := make([]trimmer.Segment, 0, len(timestamps)/2)
	for i := 0; i+1 < len(timestamps); i += 2 {
		segments = append(segments, trimmer.Segment{
			Start: merger.FormatHHMMSS(timestamps[i].TimeS),
			End:   merger.FormatHHMMSS(timestamps[i+1].TimeS),
		})
	}
	return segments
}

func extFromMime(mime string) string {
	switch mime {
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}

func marshalArtifact(a domain.MergedArtifact) []byte {
	data, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	return data
}
