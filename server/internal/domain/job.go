package domain

import "time"

// JobStatus enumerates a Job's lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Stage is the high-level phase of a job's lifecycle as published in
// progress snapshots.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageDownload   Stage = "downloading"
	StageUploading  Stage = "uploading"
	StageProcessing Stage = "processing"
	StageAnalyzing  Stage = "analyzing"
	StageTrimming   Stage = "trimming"
	StageSending    Stage = "sending"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

var stageRank = map[Stage]int{
	StageQueued:     0,
	StageDownload:   1,
	StageUploading:  2,
	StageProcessing: 3,
	StageAnalyzing:  4,
	StageTrimming:   5,
	StageSending:    6,
	StageComplete:   7,
	StageError:      -1, // terminal, exempt from monotonicity
}

// StageRank returns the ordering rank of a stage. Error ranks -1 so callers
// can special-case it rather than treat it as a regression.
func StageRank(s Stage) int {
	return stageRank[s]
}

// Job is the unit of work the queue dispatches.
type Job struct {
	ID             string
	ChatRef        string
	ReplyRef       string
	SourcePath     string
	DisplayName    string
	MimeType       string
	SizeBytes      int64
	ModelID        string
	SubmitterID    string
	SubmitterLabel string
	Status         JobStatus
	Attempts       int
	ErrorMessage   string
	ResultJSON     []byte
	EnqueuedAt     time.Time
	UpdatedAt      time.Time
}

// JobProgress is a snapshot published whenever a worker advances a job.
type JobProgress struct {
	JobID   string
	Stage   Stage
	Percent int
	Message string
	ETA     *int
}

// Dominates reports whether p may legally follow prev within the same job:
// (stage_rank, percent) must not decrease, except that an error snapshot is
// always allowed since it is terminal.
func (p JobProgress) Dominates(prev JobProgress) bool {
	if p.Stage == StageError {
		return true
	}
	pr, prevR := StageRank(p.Stage), StageRank(prev.Stage)
	if pr != prevR {
		return pr > prevR
	}
	return p.Percent >= prev.Percent
}
