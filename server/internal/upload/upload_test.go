package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"server/internal/analysis"
)

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-test-*.bin")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(make([]byte, size)); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return f.Name()
}

func TestUploadSingleShotBelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			w.Header().Set("X-Goog-Upload-URL", "http://"+r.Host+"/session/abc")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			w.Write([]byte(`{"file":{"uri":"files/abc","name":"files/abc"}}`))
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"state":"ACTIVE"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	path := writeTempFile(t, 1024)
	c := NewClient(analysis.NewClient(analysis.Options{BaseURL: srv.URL}))

	var lastProgress float64
	ref, err := c.Upload(context.Background(), "cred-a", path, "video.mp4", "video/mp4", func(p float64) { lastProgress = p })
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if ref != "files/abc" {
		t.Fatalf("ref = %q, want files/abc", ref)
	}
	if lastProgress != 1.0 {
		t.Fatalf("lastProgress = %v, want 1.0", lastProgress)
	}
}

func TestUploadFailsOnTerminalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			w.Header().Set("X-Goog-Upload-URL", "http://"+r.Host+"/session/abc")
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			w.Write([]byte(`{"file":{"uri":"files/abc","name":"files/abc"}}`))
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"state":"FAILED","error":{"message":"corrupt upload"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	path := writeTempFile(t, 1024)
	c := NewClient(analysis.NewClient(analysis.Options{BaseURL: srv.URL}))

	if _, err := c.Upload(context.Background(), "cred-a", path, "video.mp4", "video/mp4", nil); err == nil {
		t.Fatal("expected error on FAILED wait-ready status")
	}
}
