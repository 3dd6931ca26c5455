package chunkplan

import (
	"math"
	"testing"
)

func TestPlanSingleChunkWhenUnderTarget(t *testing.T) {
	plan := Plan(300, 1200, 5)
	if len(plan.Chunks) != 1 {
		t.Fatalf("len(Chunks) = %d, want 1", len(plan.Chunks))
	}
	if plan.Chunks[0].StartS != 0 || plan.Chunks[0].EndS != 300 {
		t.Fatalf("unexpected single chunk bounds: %+v", plan.Chunks[0])
	}
}

func TestPlanDenseZeroBasedIndexes(t *testing.T) {
	plan := Plan(2700, 1200, 0)
	for i, c := range plan.Chunks {
		if c.Index != i {
			t.Fatalf("Chunks[%d].Index = %d, want %d", i, c.Index, i)
		}
	}
}

func TestPlanScenarioOne(t *testing.T) {
	// 350 MB MP4, ~21.9 min estimate, target=20min (1200s), overlap=5s.
	estimated := EstimateDurationS(350 * 1024 * 1024)
	plan := Plan(estimated, 1200, 5)
	if len(plan.Chunks) != 2 {
		t.Fatalf("len(Chunks) = %d, want 2", len(plan.Chunks))
	}
	if plan.Chunks[0].StartS != 0 || plan.Chunks[0].DurationS != 1200 {
		t.Fatalf("unexpected first chunk: %+v", plan.Chunks[0])
	}
	if plan.Chunks[0].EndS != 1205 {
		t.Fatalf("first chunk end_s should include overlap: got %v want 1205", plan.Chunks[0].EndS)
	}
	if plan.Chunks[1].StartS != 1200 {
		t.Fatalf("second chunk start unaffected by overlap: got %v want 1200", plan.Chunks[1].StartS)
	}
}

func TestPlanSumOfDurationsMatchesEstimate(t *testing.T) {
	estimated := 2700.0
	target := 1200.0
	plan := Plan(estimated, target, 5)

	var sum float64
	for _, c := range plan.Chunks {
		sum += c.DurationS
	}
	if math.Abs(sum-estimated) > 1 {
		t.Fatalf("sum of durations_without_overlap = %v, want ~%v", sum, estimated)
	}
}

func TestPlanChunkCountIsCeilOfEstimateOverTarget(t *testing.T) {
	estimated := 2700.0
	target := 1200.0
	plan := Plan(estimated, target, 0)
	want := int(math.Ceil(estimated / target))
	if len(plan.Chunks) != want {
		t.Fatalf("len(Chunks) = %d, want %d", len(plan.Chunks), want)
	}
}
