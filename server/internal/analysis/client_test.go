package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitiateUploadReturnsUploadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Upload-Protocol") != "resumable" {
			t.Errorf("missing resumable protocol header")
		}
		w.Header().Set("X-Goog-Upload-URL", "https://upload.example.com/session/abc")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	url, err := c.InitiateUpload(context.Background(), "cred-a", "video.mp4", "video/mp4", 1024)
	if err != nil {
		t.Fatalf("InitiateUpload returned error: %v", err)
	}
	if url != "https://upload.example.com/session/abc" {
		t.Fatalf("unexpected upload url: %q", url)
	}
}

func TestInitiateUploadMissingHeaderFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	if _, err := c.InitiateUpload(context.Background(), "cred-a", "video.mp4", "video/mp4", 1024); err == nil {
		t.Fatal("expected error when X-Goog-Upload-URL is absent")
	}
}

func TestGetFileStatusActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"ACTIVE"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	status, err := c.GetFileStatus(context.Background(), "cred-a", "files/abc")
	if err != nil {
		t.Fatalf("GetFileStatus returned error: %v", err)
	}
	if status.State != "ACTIVE" {
		t.Fatalf("State = %q, want ACTIVE", status.State)
	}
}

func TestGenerateContentRateLimitStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	_, err := c.GenerateContent(context.Background(), "cred-a", "gemini-2.5-flash", "files/abc", "video/mp4", "analyze", time.Second)
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T: %v", err, err)
	}
	if se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, want 429", se.StatusCode)
	}
}
