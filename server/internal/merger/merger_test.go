package merger

import (
	"testing"

	"server/internal/domain"
)

func chunkResult(index int, offset float64, analysis map[string]any) domain.ChunkResult {
	return domain.ChunkResult{ChunkIndex: index, ChunkStartOffsetS: offset, Analysis: analysis}
}

func TestMergeTranslatesChapterTimestamps(t *testing.T) {
	results := []domain.ChunkResult{
		chunkResult(0, 0, map[string]any{
			"clean_script": "intro",
			"chapters": []any{
				map[string]any{"title": "Intro", "start_time": "00:00", "end_time": "05:00"},
			},
		}),
		chunkResult(1, 1200, map[string]any{
			"clean_script": "part two",
			"chapters": []any{
				map[string]any{"title": "Deep dive", "start_time": "05:00", "end_time": "10:00"},
			},
		}),
	}

	artifact := Merge(results)
	if len(artifact.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2", len(artifact.Chapters))
	}
	if artifact.Chapters[1].StartTime != 1500 {
		t.Fatalf("second chapter absolute start = %v, want 1500 (25:00)", artifact.Chapters[1].StartTime)
	}
}

func TestMergeDedupsConceptsCaseInsensitively(t *testing.T) {
	results := []domain.ChunkResult{
		chunkResult(0, 0, map[string]any{"concepts": []any{"Recursion", "Big O"}}),
		chunkResult(1, 100, map[string]any{"concepts": []any{"recursion ", "Memoization"}}),
	}
	artifact := Merge(results)
	if len(artifact.Concepts) != 3 {
		t.Fatalf("Concepts = %#v, want 3 deduped entries", artifact.Concepts)
	}
	if artifact.Concepts[0] != "Recursion" {
		t.Fatalf("first-seen form should win: got %q", artifact.Concepts[0])
	}
}

func TestMergeAggregatesFilteredCategories(t *testing.T) {
	results := []domain.ChunkResult{
		chunkResult(0, 0, map[string]any{
			"content_metadata": map[string]any{
				"filtered_categories": []any{
					map[string]any{"category": "Silence", "description": "dead air", "duration": "01:00"},
				},
			},
		}),
		chunkResult(1, 1200, map[string]any{
			"content_metadata": map[string]any{
				"filtered_categories": []any{
					map[string]any{"category": "Silence", "description": "dead air", "duration": "02:00"},
				},
			},
		}),
	}
	artifact := Merge(results)
	if len(artifact.ContentMetadata.FilteredCategories) != 1 {
		t.Fatalf("FilteredCategories = %#v, want 1 merged entry", artifact.ContentMetadata.FilteredCategories)
	}
	if got := artifact.ContentMetadata.FilteredCategories[0].DurationS; got != 180 {
		t.Fatalf("aggregated duration = %v, want 180", got)
	}
}

func TestMergeCountsPlaceholderAsFailedChunk(t *testing.T) {
	results := []domain.ChunkResult{
		chunkResult(0, 0, map[string]any{"clean_script": "ok"}),
		chunkResult(1, 1200, Placeholder(1200, 2400, "malformed response")),
	}
	artifact := Merge(results)
	if artifact.ProcessingMetadata.FailedChunks != 1 {
		t.Fatalf("FailedChunks = %d, want 1", artifact.ProcessingMetadata.FailedChunks)
	}
	if artifact.ProcessingMetadata.SuccessfulChunks != 1 {
		t.Fatalf("SuccessfulChunks = %d, want 1", artifact.ProcessingMetadata.SuccessfulChunks)
	}
	if len(artifact.Chapters) != 1 || !artifact.Chapters[0].Failed {
		t.Fatalf("expected placeholder chapter marked failed: %#v", artifact.Chapters)
	}
}

func TestMergeScriptConcatenationUsesContinuingFromMarker(t *testing.T) {
	results := []domain.ChunkResult{
		chunkResult(0, 0, map[string]any{"clean_script": "part one"}),
		chunkResult(1, 1500, map[string]any{"clean_script": "part two"}),
	}
	artifact := Merge(results)
	if !contains(artifact.CleanScript, "continuing from 00:25:00") {
		t.Fatalf("CleanScript missing continuation marker: %q", artifact.CleanScript)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
