package merger

import "fmt"

// Placeholder builds the minimally-valid analysis document substituted for
// a chunk that failed, so chunk_index density and merger invariants are
// preserved: a single chapter covering the chunk duration, labeled failed,
// and otherwise-empty aggregates.
func Placeholder(startS, endS float64, reason string) map[string]any {
	return map[string]any{
		"clean_script": fmt.Sprintf("[Content from %s to %s — %s]", FormatHHMMSS(startS), FormatHHMMSS(endS), reason),
		"chapters": []any{
			map[string]any{
				"title":      "Unavailable",
				"start_time": FormatHHMMSS(0),
				"end_time":   FormatHHMMSS(endS - startS),
				"summary":    reason,
				"failed":     true,
			},
		},
		"summary":  "",
		"concepts": []any{},
		"practice": []any{},
		"content_metadata": map[string]any{
			"original_duration_estimate":  "Unknown",
			"essential_content_duration":  "Unknown",
			"removed_percentage":          0,
			"filtered_categories":         []any{},
			"main_content_timestamps":     []any{},
		},
		"__placeholder": true,
	}
}
