// Package merger implements the Result Merger: it folds a list of
// ChunkResult (sorted by chunk_index) into a single MergedArtifact with
// absolute timestamps, deduplicated concepts/practice, and aggregated
// content metadata.
package merger

import (
	"fmt"
	"strings"

	"server/internal/domain"
)

// Merge folds results, which must already be sorted by ChunkIndex, into a
// MergedArtifact. Failed chunks are expected to already carry a placeholder
// analysis (see Placeholder) so index density is preserved.
func Merge(results []domain.ChunkResult) domain.MergedArtifact {
	var artifact domain.MergedArtifact
	seenConcepts := map[string]bool{}
	seenPractice := map[string]bool{}
	categoryIndex := map[string]int{}

	var scriptParts []string
	var summaryParts []string
	var removedSum float64
	var removedCount int

	for _, r := range results {
		a := r.Analysis
		offset := r.ChunkStartOffsetS

		if script, ok := a["clean_script"].(string); ok && script != "" {
			if len(scriptParts) > 0 {
				scriptParts = append(scriptParts, fmt.Sprintf("continuing from %s", FormatHHMMSS(offset)))
			}
			scriptParts = append(scriptParts, script)
		}

		for _, ch := range asChapters(a["chapters"]) {
			artifact.Chapters = append(artifact.Chapters, domain.Chapter{
				Title:     ch.title,
				StartTime: ParseDuration(ch.start) + offset,
				EndTime:   ParseDuration(ch.end) + offset,
				Summary:   ch.summary,
				Failed:    ch.failed,
			})
		}

		for _, c := range asStringSlice(a["concepts"]) {
			key := strings.ToLower(strings.TrimSpace(c))
			if key == "" || seenConcepts[key] {
				continue
			}
			seenConcepts[key] = true
			artifact.Concepts = append(artifact.Concepts, strings.TrimSpace(c))
		}

		for _, p := range asStringSlice(a["practice"]) {
			key := strings.ToLower(strings.TrimSpace(p))
			if key == "" || seenPractice[key] {
				continue
			}
			seenPractice[key] = true
			artifact.Practice = append(artifact.Practice, strings.TrimSpace(p))
		}

		if summary, ok := a["summary"].(string); ok && summary != "" {
			summaryParts = append(summaryParts, fmt.Sprintf("Part %d (%s onwards)\n%s", r.ChunkIndex+1, FormatHHMMSS(offset), summary))
		}

		cm, _ := a["content_metadata"].(map[string]any)
		artifact.ContentMetadata.OriginalDurationS += ParseDuration(stringField(cm, "original_duration_estimate"))
		artifact.ContentMetadata.EssentialDurationS += ParseDuration(stringField(cm, "essential_content_duration"))

		if pct, ok := numberField(cm, "removed_percentage"); ok {
			removedSum += pct
			removedCount++
		}

		for _, cat := range asFilteredCategories(cm["filtered_categories"]) {
			if idx, ok := categoryIndex[cat.category]; ok {
				artifact.ContentMetadata.FilteredCategories[idx].DurationS += ParseDuration(cat.duration)
				continue
			}
			categoryIndex[cat.category] = len(artifact.ContentMetadata.FilteredCategories)
			artifact.ContentMetadata.FilteredCategories = append(artifact.ContentMetadata.FilteredCategories, domain.FilteredCategory{
				Category:    cat.category,
				Description: cat.description,
				DurationS:   ParseDuration(cat.duration),
			})
		}

		for _, ts := range asTimestamps(cm["main_content_timestamps"]) {
			artifact.ContentMetadata.MainContentTimestamps = append(artifact.ContentMetadata.MainContentTimestamps, domain.MainContentTimestamp{
				TimeS: ts.timeS + offset,
				Label: ts.label,
			})
		}
	}

	if removedCount > 0 {
		artifact.ContentMetadata.RemovedPercentage = int(removedSum/float64(removedCount) + 0.5)
	}

	artifact.CleanScript = strings.Join(scriptParts, "\n\n")
	artifact.Summary = strings.Join(summaryParts, "\n\n")
	artifact.ProcessingMetadata.TotalChunks = len(results)
	for _, r := range results {
		if failed, _ := r.Analysis["__placeholder"].(bool); failed {
			artifact.ProcessingMetadata.FailedChunks++
		} else {
			artifact.ProcessingMetadata.SuccessfulChunks++
		}
	}

	return artifact
}
