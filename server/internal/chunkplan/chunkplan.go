// Package chunkplan computes the Chunk Planner's pure-function segment
// list from an estimated video duration and a target segment length.
package chunkplan

import (
	"math"

	"server/internal/domain"
)

// EstimateDurationS derives a rough duration estimate from file size, per
// the spec's explicitly-approximate heuristic: size_MB / 16 minutes.
func EstimateDurationS(sizeBytes int64) float64 {
	sizeMB := float64(sizeBytes) / (1024 * 1024)
	minutes := sizeMB / 16
	return minutes * 60
}

// Plan partitions [0, estimatedDurationS) into consecutive windows of
// length targetS, appending overlapS of read-only context to every
// non-terminal chunk's end_s. The last chunk is truncated to the estimate.
func Plan(estimatedDurationS, targetS, overlapS float64) domain.ChunkPlan {
	if targetS <= 0 {
		targetS = estimatedDurationS
	}
	if estimatedDurationS < 0 {
		estimatedDurationS = 0
	}

	if estimatedDurationS <= targetS {
		return domain.ChunkPlan{
			Chunks: []domain.Chunk{{
				Index:     0,
				StartS:    0,
				EndS:      estimatedDurationS,
				DurationS: estimatedDurationS,
			}},
			EstimatedDur: estimatedDurationS,
			TargetS:      targetS,
			OverlapS:     overlapS,
		}
	}

	n := int(math.Ceil(estimatedDurationS / targetS))
	chunks := make([]domain.Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * targetS
		end := start + targetS
		last := i == n-1
		if last || end > estimatedDurationS {
			end = estimatedDurationS
		}
		duration := end - start

		reportedEnd := end
		if !last && overlapS > 0 {
			reportedEnd = end + overlapS
		}

		chunks = append(chunks, domain.Chunk{
			Index:     i,
			StartS:    start,
			EndS:      reportedEnd,
			DurationS: duration,
		})
	}

	return domain.ChunkPlan{
		Chunks:       chunks,
		EstimatedDur: estimatedDurationS,
		TargetS:      targetS,
		OverlapS:     overlapS,
	}
}
