package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"server/internal/analysis"
	"server/internal/credentials"
	"server/internal/domain"
)

func testPool(t *testing.T, n int) *credentials.Pool {
	t.Helper()
	secrets := make([]string, n)
	for i := range secrets {
		secrets[i] = "secret"
	}
	return credentials.NewPool(secrets, credentials.Options{PerCredCap: 2, Cooldown: time.Second})
}

func TestRunReturnsResultsSortedByChunkIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"clean_script\":\"ok\"}"}]}}]}`))
	}))
	defer srv.Close()

	client := analysis.NewClient(analysis.Options{BaseURL: srv.URL})
	pool := testPool(t, 2)
	plan := domain.ChunkPlan{Chunks: []domain.Chunk{
		{Index: 0, StartS: 0, EndS: 600},
		{Index: 1, StartS: 600, EndS: 1200},
		{Index: 2, StartS: 1200, EndS: 1800},
	}}

	result := Run(context.Background(), pool, client, plan, Options{
		FileRefs: map[string]string{"cred-a": "files/abc", "cred-b": "files/abc"},
		MimeType: "video/mp4",
		ModelID:  "test-model",
	})

	if len(result.Chunks) != 3 {
		t.Fatalf("len(Chunks) = %d, want 3", len(result.Chunks))
	}
	for i, c := range result.Chunks {
		if c.ChunkIndex != i {
			t.Fatalf("Chunks[%d].ChunkIndex = %d, want %d", i, c.ChunkIndex, i)
		}
	}
}

func TestRunSubstitutesPlaceholderOnPersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"boom"}}`))
	}))
	defer srv.Close()

	client := analysis.NewClient(analysis.Options{BaseURL: srv.URL})
	pool := testPool(t, 1)
	plan := domain.ChunkPlan{Chunks: []domain.Chunk{{Index: 0, StartS: 0, EndS: 600}}}

	var failedErr error
	result := Run(context.Background(), pool, client, plan, Options{
		FileRefs:       map[string]string{"cred-a": "files/abc"},
		MimeType:       "video/mp4",
		ModelID:        "test-model",
		AcquireTimeout: time.Second,
		OnChunkError:   func(index int, err error) { failedErr = err },
	})

	if failedErr == nil {
		t.Fatalf("expected OnChunkError to fire")
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("len(Chunks) = %d, want 1", len(result.Chunks))
	}
	placeholder, _ := result.Chunks[0].Analysis["__placeholder"].(bool)
	if !placeholder {
		t.Fatalf("expected placeholder analysis, got %#v", result.Chunks[0].Analysis)
	}
}

func TestRunEmitsProgressSnapshots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	defer srv.Close()

	client := analysis.NewClient(analysis.Options{BaseURL: srv.URL})
	pool := testPool(t, 1)
	plan := domain.ChunkPlan{Chunks: []domain.Chunk{{Index: 0, StartS: 0, EndS: 600}}}

	var snapshots []domain.ParallelProgress
	Run(context.Background(), pool, client, plan, Options{
		FileRefs:   map[string]string{"cred-a": "files/abc"},
		MimeType:   "video/mp4",
		ModelID:    "test-model",
		OnProgress: func(p domain.ParallelProgress) { snapshots = append(snapshots, p) },
	})

	if len(snapshots) == 0 {
		t.Fatalf("expected at least one progress snapshot")
	}
	last := snapshots[len(snapshots)-1]
	if last.Completed != 1 || last.OverallPercent != 100 {
		t.Fatalf("final snapshot = %+v, want Completed=1 OverallPercent=100", last)
	}
}

func TestDefaultPromptMentionsRelativeTimestamps(t *testing.T) {
	p := defaultPrompt(domain.Chunk{Index: 0, StartS: 1200, EndS: 1800})
	if !strings.Contains(p, "RELATIVE") {
		t.Fatalf("default prompt missing relative-timestamp instruction: %q", p)
	}
}
