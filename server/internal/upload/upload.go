// Package upload implements the Upload Adapter: the streaming, bounded-
// memory policy layer over internal/analysis's resumable-upload transport.
// It decides single-shot vs. chunked transfer, drives the wait-for-ready
// poll, and classifies failures into the joberr taxonomy.
package upload

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"server/internal/analysis"
	"server/internal/domain"
	"server/internal/joberr"
)

const (
	chunkThreshold = 50 * 1024 * 1024
	chunkSize      = 64 * 1024 * 1024

	initTimeout       = 60 * time.Second
	chunkBodyTimeout  = 600 * time.Second
	statusPollTimeout = 30 * time.Second
)

// Client drives the resumable upload protocol against the Analysis Service.
type Client struct {
	analysis *analysis.Client
}

// NewClient wraps an analysis.Client with upload policy.
func NewClient(a *analysis.Client) *Client {
	return &Client{analysis: a}
}

// Upload streams path to the Analysis Service under cred and returns the
// durable file_ref once the service reports the file ACTIVE. onProgress,
// if non-nil, is called with a fraction in [0,1] as bytes are transferred.
func (c *Client) Upload(ctx context.Context, cred, path, displayName, mimeType string, onProgress func(float64)) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", joberr.New(joberr.InputInvalid, "source file not found", err)
	}
	size := info.Size()

	f, err := os.Open(path)
	if err != nil {
		return "", joberr.New(joberr.InputInvalid, "cannot open source file", err)
	}
	defer f.Close()

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	uploadURL, err := c.analysis.InitiateUpload(initCtx, cred, displayName, mimeType, size)
	cancel()
	if err != nil {
		return "", classifyTransport(err)
	}

	name, uri, err := c.transfer(ctx, uploadURL, f, size, onProgress)
	if err != nil {
		return "", err
	}

	if err := c.waitReady(ctx, cred, name, size); err != nil {
		return "", err
	}
	return uri, nil
}

func (c *Client) transfer(ctx context.Context, uploadURL string, f *os.File, size int64, onProgress func(float64)) (name, uri string, err error) {
	if size <= chunkThreshold {
		transferCtx, cancel := context.WithTimeout(ctx, chunkBodyTimeout)
		defer cancel()
		result, err := c.analysis.TransferChunk(transferCtx, uploadURL, f, 0, size, "upload, finalize")
		if err != nil {
			return "", "", classifyTransport(err)
		}
		if onProgress != nil {
			onProgress(1.0)
		}
		return result.Name, result.URI, nil
	}

	var offset int64
	for offset < size {
		remaining := size - offset
		length := int64(chunkSize)
		command := "upload"
		if remaining <= chunkSize {
			length = remaining
			command = "upload, finalize"
		}

		section := io.NewSectionReader(f, offset, length)
		transferCtx, cancel := context.WithTimeout(ctx, chunkBodyTimeout)
		result, err := c.analysis.TransferChunk(transferCtx, uploadURL, section, offset, length, command)
		cancel()
		if err != nil {
			return "", "", classifyTransport(err)
		}

		offset += length
		if onProgress != nil {
			onProgress(float64(offset) / float64(size))
		}

		if command == "upload, finalize" {
			return result.Name, result.URI, nil
		}
	}
	return "", "", joberr.New(joberr.UploadFailedTerminal, "resumable transfer ended without finalizing", nil)
}

// waitReady polls the file-status endpoint with a fixed 2s interval, up to
// min(15min, 45s + ceil(sizeMB/10) * 18s).
func (c *Client) waitReady(ctx context.Context, cred, name string, size int64) error {
	sizeMB := float64(size) / (1024 * 1024)
	maxWait := time.Duration(45)*time.Second + time.Duration(math.Ceil(sizeMB/10))*18*time.Second
	if maxWait > 15*time.Minute {
		maxWait = 15 * time.Minute
	}
	deadline := time.Now().Add(maxWait)

	for {
		pollCtx, cancel := context.WithTimeout(ctx, statusPollTimeout)
		status, err := c.analysis.GetFileStatus(pollCtx, cred, name)
		cancel()
		if err != nil {
			return classifyTransport(err)
		}

		switch status.State {
		case "ACTIVE":
			return nil
		case "FAILED":
			return joberr.New(joberr.UploadFailedTerminal, status.ErrorMessage, nil)
		}

		if time.Now().After(deadline) {
			return joberr.New(joberr.UploadTimedOut, "file did not become ready in time", nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func classifyTransport(err error) error {
	se, ok := err.(*analysis.StatusError)
	if !ok {
		return joberr.New(joberr.UploadTransient, "", err)
	}
	if se.StatusCode >= 500 || se.StatusCode == 429 {
		return joberr.New(joberr.UploadTransient, se.Message, err)
	}
	return joberr.New(joberr.UploadFailedTerminal, se.Message, err)
}

// UploadAllCredentials uploads path once per credential in creds, in
// parallel, producing a map keyed by credential ID so the scheduler can fan
// chunk analyses across credentials whose file_ref is scoped to that
// credential, per §4.7 step 2's "call the Upload Adapter in parallel"
// requirement. creds is in pool order (server/internal/credentials.Pool.Secrets);
// creds[0] is the deterministic representative credential whose progress is
// surfaced via onProgress.
func (c *Client) UploadAllCredentials(ctx context.Context, creds []domain.Credential, path, displayName, mimeType string, onProgress func(float64)) (map[string]string, error) {
	type outcome struct {
		id  string
		ref string
		err error
	}

	outcomes := make([]outcome, len(creds))
	var wg sync.WaitGroup
	for i, cred := range creds {
		wg.Add(1)
		go func(i int, cred domain.Credential) {
			defer wg.Done()
			var progress func(float64)
			if i == 0 {
				progress = onProgress
			}
			ref, err := c.Upload(ctx, cred.Secret, path, displayName, mimeType, progress)
			outcomes[i] = outcome{id: cred.ID, ref: ref, err: err}
		}(i, cred)
	}
	wg.Wait()

	refs := make(map[string]string, len(creds))
	for _, o := range outcomes {
		if o.err != nil {
			return nil, fmt.Errorf("upload for credential %s: %w", o.id, o.err)
		}
		refs[o.id] = o.ref
	}
	return refs, nil
}
