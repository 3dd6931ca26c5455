package worker

import (
	"encoding/json"
	"testing"

	"server/internal/domain"
)

func TestMapSchedulerPercentRemapsIntoBand(t *testing.T) {
	tests := []struct {
		overall int
		want    int
	}{
		{0, 42},
		{50, 66},
		{100, 90},
	}
	for _, tt := range tests {
		if got := mapSchedulerPercent(tt.overall); got != tt.want {
			t.Errorf("mapSchedulerPercent(%d) = %d, want %d", tt.overall, got, tt.want)
		}
	}
}

func TestToSegmentsPairsConsecutiveTimestamps(t *testing.T) {
	timestamps := []domain.MainContentTimestamp{
		{TimeS: 0, Label: "start"},
		{TimeS: 90, Label: "end"},
		{TimeS: 200, Label: "start"},
		{TimeS: 260, Label: "end"},
	}
	segments := toSegments(timestamps)
	if len(segments) != 2 {
		t.Fatalf("len(segments) = %d, want 2", len(segments))
	}
	if segments[0].Start != "00:00:00" || segments[0].End != "00:01:30" {
		t.Fatalf("segments[0] = %+v", segments[0])
	}
}

func TestToSegmentsDropsTrailingUnpaired(t *testing.T) {
	timestamps := []domain.MainContentTimestamp{{TimeS: 0}, {TimeS: 10}, {TimeS: 20}}
	if got := len(toSegments(timestamps)); got != 1 {
		t.Fatalf("len(segments) = %d, want 1 (trailing odd entry dropped)", got)
	}
}

func TestExtFromMime(t *testing.T) {
	if got := extFromMime("video/mp4"); got != ".mp4" {
		t.Errorf("extFromMime(video/mp4) = %q, want .mp4", got)
	}
	if got := extFromMime("application/octet-stream"); got != ".bin" {
		t.Errorf("extFromMime(unknown) = %q, want .bin", got)
	}
}

func TestMarshalArtifactProducesValidJSON(t *testing.T) {
	artifact := domain.MergedArtifact{CleanScript: "hello", Concepts: []string{"a"}}
	data := marshalArtifact(artifact)
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("marshalArtifact produced invalid JSON: %v", err)
	}
}
