package merger

// Analysis documents arrive as the externally-defined JSON produced by the
// Analysis Service (or a placeholder substituted on chunk failure), decoded
// into map[string]any. These helpers pull typed views out of that loosely
// structured document without requiring a fixed schema.

type chapterView struct {
	title   string
	start   string
	end     string
	summary string
	failed  bool
}

func asChapters(v any) []chapterView {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]chapterView, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		failed, _ := m["failed"].(bool)
		out = append(out, chapterView{
			title:   stringField(m, "title"),
			start:   stringField(m, "start_time"),
			end:     stringField(m, "end_time"),
			summary: stringField(m, "summary"),
			failed:  failed,
		})
	}
	return out
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type filteredCategoryView struct {
	category    string
	description string
	duration    string
}

func asFilteredCategories(v any) []filteredCategoryView {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]filteredCategoryView, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, filteredCategoryView{
			category:    stringField(m, "category"),
			description: stringField(m, "description"),
			duration:    stringField(m, "duration"),
		})
	}
	return out
}

type timestampView struct {
	timeS float64
	label string
}

func asTimestamps(v any) []timestampView {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]timestampView, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label := stringField(m, "label")
		var t float64
		if ts, ok := m["timestamp"].(string); ok {
			t = ParseDuration(ts)
		} else if n, ok := numberField(m, "timestamp_s"); ok {
			t = n
		}
		out = append(out, timestampView{timeS: t, label: label})
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func numberField(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
