// Package analysis is the HTTP transport for the external Analysis
// Service: resumable-upload initiation, chunk transfer, file-status
// polling, and the generate-content call. It is deliberately a thin,
// policy-free client — retry/backoff/streaming-window policy lives in
// internal/upload and internal/scheduler, which both depend on it.
//
// The wire shapes and status-code handling mirror
// server/internal/providers/genai/client.go's invokeGemini: JSON body,
// ?key= query-param auth, and a geminiErrorResponse-shaped error envelope.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the external Analysis Service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient constructs an analysis Client with the spec's default base URL
// when none is supplied.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{baseURL: baseURL, httpClient: client, logger: opts.Logger}
}

// errorEnvelope mirrors the Analysis Service's JSON error body shape.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// InitiateUpload issues the resumable-upload start request and returns the
// opaque upload_uri the transfer phase must PUT to.
func (c *Client) InitiateUpload(ctx context.Context, cred, displayName, mimeType string, contentLength int64) (string, error) {
	body, _ := json.Marshal(map[string]any{"file": map[string]string{"displayName": displayName}})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.urlWithKey("/upload", cred), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build initiate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", fmt.Sprintf("%d", contentLength))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiate upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", statusError(resp)
	}
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", fmt.Errorf("analysis service: missing X-Goog-Upload-URL header")
	}
	return uploadURL, nil
}

// TransferResult is the durable file reference returned once the final
// chunk of a resumable transfer finalizes.
type TransferResult struct {
	URI  string
	Name string
}

// TransferChunk PUTs one segment of the file body to uploadURL. command is
// "upload" for all but the last segment, which uses "upload, finalize".
// On the finalizing call the response body carries {file:{uri,name}}.
func (c *Client) TransferChunk(ctx context.Context, uploadURL string, body io.Reader, offset int64, length int64, command string) (*TransferResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("build transfer request: %w", err)
	}
	req.ContentLength = length
	req.Header.Set("Content-Length", fmt.Sprintf("%d", length))
	req.Header.Set("X-Goog-Upload-Offset", fmt.Sprintf("%d", offset))
	req.Header.Set("X-Goog-Upload-Command", command)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transfer chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp)
	}
	if !strings.Contains(command, "finalize") {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var payload struct {
		File struct {
			URI  string `json:"uri"`
			Name string `json:"name"`
		} `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode transfer response: %w", err)
	}
	return &TransferResult{URI: payload.File.URI, Name: payload.File.Name}, nil
}

// FileStatus is the external service's reported processing state for an
// uploaded file.
type FileStatus struct {
	State        string
	ErrorMessage string
}

// GetFileStatus polls the file-status endpoint.
func (c *Client) GetFileStatus(ctx context.Context, cred, name string) (FileStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urlWithKey("/v1beta/"+strings.TrimPrefix(name, "/"), cred), nil)
	if err != nil {
		return FileStatus{}, fmt.Errorf("build status request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FileStatus{}, fmt.Errorf("get file status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return FileStatus{}, statusError(resp)
	}

	var payload struct {
		State string `json:"state"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FileStatus{}, fmt.Errorf("decode file status: %w", err)
	}
	return FileStatus{State: payload.State, ErrorMessage: payload.Error.Message}, nil
}

// GenerateContent issues a single generate-call for one chunk's prompt
// against fileURI, and returns the raw text of the first candidate's first
// part (the caller is responsible for fence-stripping and JSON parsing).
func (c *Client) GenerateContent(ctx context.Context, cred, modelID, fileURI, mimeType, prompt string, timeout time.Duration) (string, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload := map[string]any{
		"contents": []map[string]any{{
			"role": "user",
			"parts": []map[string]any{
				{"file_data": map[string]string{"mime_type": mimeType, "file_uri": fileURI}},
				{"text": prompt},
			},
		}},
		"generationConfig": map[string]any{
			"temperature":      0.3,
			"top_k":            32,
			"top_p":            0.95,
			"max_output_tokens": 16384,
			"response_mime_type": "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent", modelID)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.urlWithKey(path, cred), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", statusError(resp)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("analysis service: empty generate response")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (c *Client) urlWithKey(path, cred string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return c.baseURL + path + sep + "key=" + cred
}

// StatusError carries the HTTP status code alongside the decoded message so
// callers can classify rate-limit vs. transient vs. terminal failures.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis service status %d: %s", e.StatusCode, e.Message)
}

func statusError(resp *http.Response) error {
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error.Message != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: env.Error.Message}
	}
	data, _ := io.ReadAll(resp.Body)
	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
