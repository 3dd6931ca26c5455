// Package scheduler implements the Parallel Chunk Scheduler: it fans a
// ChunkPlan's chunks out across the Credential Pool with bounded
// concurrency, streams ParallelProgress snapshots, and substitutes
// placeholder analyses on chunk failure so downstream merge invariants
// hold. The bounded-semaphore fan-out is the resolved Open Question from
// spec §9 — a straightforward buffered-channel permit pool rather than the
// source's leak-prone draining loop.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"server/internal/analysis"
	"server/internal/credentials"
	"server/internal/domain"
	"server/internal/jsonrepair"
	"server/internal/joberr"
	"server/internal/merger"
)

const generateCallDeadline = 8 * time.Minute

// Options configures one scheduler run.
type Options struct {
	FileRefs         map[string]string // credential ID -> file_ref
	MimeType         string
	ModelID          string
	PromptTemplate   func(chunk domain.Chunk) string
	MaxConcurrency   int
	AcquireTimeout   time.Duration
	OnProgress       func(domain.ParallelProgress)
	OnChunkComplete  func(domain.ChunkResult)
	OnChunkError     func(index int, err error)
}

// Result is the outcome of one scheduler run.
type Result struct {
	Chunks    []domain.ChunkResult
	Cancelled bool
}

// Run drives plan's chunks through pool and analysisClient per Options.
func Run(ctx context.Context, pool *credentials.Pool, analysisClient *analysis.Client, plan domain.ChunkPlan, opts Options) Result {
	tasks := make([]domain.ChunkTask, len(plan.Chunks))
	for i, c := range plan.Chunks {
		tasks[i] = domain.ChunkTask{Chunk: c, Status: domain.ChunkPending}
	}

	var mu sync.Mutex
	startedAt := time.Now()
	processed := 0

	emit := func() {
		mu.Lock()
		snapshot := buildProgress(tasks, pool.Status(), startedAt, processed)
		mu.Unlock()
		if opts.OnProgress != nil {
			opts.OnProgress(snapshot)
		}
	}

	results := make([]domain.ChunkResult, len(plan.Chunks))
	acquireTimeout := opts.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = 30 * time.Second
	}

	credTasks := make([]credentials.Task[domain.ChunkResult], len(plan.Chunks))
	for i, c := range plan.Chunks {
		i, c := i, c
		credTasks[i] = credentials.Task[domain.ChunkResult]{Fn: func(taskCtx context.Context, cred *domain.Credential) (domain.ChunkResult, error, bool) {
			mu.Lock()
			now := time.Now()
			tasks[i].Status = domain.ChunkProcessing
			tasks[i].StartedAt = &now
			mu.Unlock()
			emit()

			fileRef := opts.FileRefs[cred.ID]
			result, err, rateLimited := runChunk(taskCtx, analysisClient, cred.Secret, fileRef, opts.MimeType, opts.ModelID, c, opts.PromptTemplate)

			mu.Lock()
			ended := time.Now()
			tasks[i].EndedAt = &ended
			processed++
			if err != nil {
				tasks[i].Status = domain.ChunkFailed
				tasks[i].Err = err
				tasks[i].Progress = 1.0
				result = domain.ChunkResult{
					ChunkIndex:        c.Index,
					ChunkStartOffsetS: c.StartS,
					Analysis:          merger.Placeholder(c.StartS, c.EndS, err.Error()),
				}
			} else {
				tasks[i].Status = domain.ChunkCompleted
				tasks[i].Progress = 1.0
				tasks[i].Result = &result
			}
			mu.Unlock()
			emit()

			if err != nil && opts.OnChunkError != nil {
				opts.OnChunkError(c.Index, err)
			} else if err == nil && opts.OnChunkComplete != nil {
				opts.OnChunkComplete(result)
			}

			results[i] = result
			return result, err, rateLimited
		}}
	}

	_, _ = credentials.RunWithAll(ctx, pool, credTasks, opts.MaxConcurrency, acquireTimeout)

	sort.Slice(results, func(i, j int) bool { return results[i].ChunkIndex < results[j].ChunkIndex })

	return Result{Chunks: results, Cancelled: ctx.Err() != nil}
}

// runChunk performs a single generate-call with the spec's once-only
// chunk-level retry for rate-limit and transient failures.
func runChunk(ctx context.Context, client *analysis.Client, cred, fileRef, mimeType, modelID string, chunk domain.Chunk, promptFn func(domain.Chunk) string) (domain.ChunkResult, error, bool) {
	prompt := defaultPrompt(chunk)
	if promptFn != nil {
		prompt = promptFn(chunk)
	}

	analysisDoc, err, rateLimited := generateOnce(ctx, client, cred, fileRef, mimeType, modelID, prompt)
	if err != nil && isRetriableChunkError(err) {
		analysisDoc, err, rateLimited = generateOnce(ctx, client, cred, fileRef, mimeType, modelID, prompt)
	}
	if err != nil {
		return domain.ChunkResult{}, err, rateLimited
	}
	return domain.ChunkResult{ChunkIndex: chunk.Index, ChunkStartOffsetS: chunk.StartS, Analysis: analysisDoc}, nil, false
}

func generateOnce(ctx context.Context, client *analysis.Client, cred, fileRef, mimeType, modelID, prompt string) (map[string]any, error, bool) {
	text, err := client.GenerateContent(ctx, cred, modelID, fileRef, mimeType, prompt, generateCallDeadline)
	if err != nil {
		se, ok := err.(*analysis.StatusError)
		if ok && se.StatusCode == 429 {
			return nil, joberr.New(joberr.AnalysisRateLimit, se.Message, err), true
		}
		if ok && se.StatusCode >= 500 {
			return nil, joberr.New(joberr.AnalysisTransient, se.Message, err), false
		}
		return nil, joberr.New(joberr.AnalysisTransient, "", err), false
	}

	doc, parseErr := parseAnalysis(text)
	if parseErr != nil {
		return nil, joberr.New(joberr.AnalysisBadJSON, parseErr.Error(), parseErr), false
	}
	return doc, nil, false
}

func parseAnalysis(text string) (map[string]any, error) {
	stripped := jsonrepair.StripFence(text)
	var doc map[string]any
	if err := json.Unmarshal([]byte(stripped), &doc); err == nil {
		return doc, nil
	}

	repaired := jsonrepair.Repair(stripped)
	if err := json.Unmarshal([]byte(repaired), &doc); err == nil {
		return doc, nil
	}
	return nil, fmt.Errorf("analysis response did not parse as JSON even after repair")
}

func isRetriableChunkError(err error) bool {
	kind, ok := joberr.Of(err)
	if !ok {
		return false
	}
	return kind == joberr.AnalysisRateLimit || kind == joberr.AnalysisTransient
}

func defaultPrompt(chunk domain.Chunk) string {
	return fmt.Sprintf(
		"Analyze this video segment (absolute window %.0fs-%.0fs of the source). "+
			"Use RELATIVE timestamps starting from 00:00 for everything you report. "+
			"Return only JSON, no commentary.",
		chunk.StartS, chunk.EndS,
	)
}

func buildProgress(tasks []domain.ChunkTask, pool domain.PoolStatus, startedAt time.Time, processed int) domain.ParallelProgress {
	snap := domain.ParallelProgress{Total: len(tasks), PerChunk: append([]domain.ChunkTask(nil), tasks...), PoolStatus: pool}
	var effective float64
	for _, t := range tasks {
		switch t.Status {
		case domain.ChunkCompleted:
			snap.Completed++
			effective += 1.0
		case domain.ChunkFailed:
			snap.Failed++
			effective += 1.0
		case domain.ChunkProcessing, domain.ChunkUploading:
			snap.Active++
			effective += t.Progress
		}
	}
	if len(tasks) > 0 {
		snap.OverallPercent = int(100*effective/float64(len(tasks)) + 0.5)
	}
	if processed > 0 {
		elapsed := time.Since(startedAt)
		remaining := len(tasks) - processed
		etaSeconds := int(elapsed.Seconds() * float64(remaining) / float64(processed))
		snap.ETA = &etaSeconds
	}
	return snap
}
