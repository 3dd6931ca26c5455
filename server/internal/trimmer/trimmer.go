// Package trimmer defines the adapter boundary to the external Video
// Trimmer: invoked by the worker after merge with a list of segments, no
// trimming algorithm lives here. The interface and the cancellation-aware
// blocking call shape are adapted from
// server/internal/providers/video/veo.go's Generator, which already
// modeled a long-running external call that must respect ctx.Done().
package trimmer

import (
	"context"
	"fmt"
	"time"
)

// Segment is one (start,end) window the external Trimmer should keep or
// act on, expressed as "HH:MM:SS" strings per the External Interfaces.
type Segment struct {
	Start string
	End   string
}

// Trimmer blocks until the external service finishes trimming source_path
// into output_path using segments.
type Trimmer interface {
	Trim(ctx context.Context, sourcePath string, segments []Segment, outputPath string) error
}

// localTrimmer is a stand-in implementation used where no real Video
// Trimmer endpoint is configured (local dev, tests). It never touches the
// source file; it simulates the external call's latency while honoring
// cancellation, exactly as veo.go's Generate did for its synthetic asset.
type localTrimmer struct {
	simulatedDelay time.Duration
}

// NewLocalTrimmer returns a Trimmer that simulates an external trim call
// without performing real media processing.
func NewLocalTrimmer(simulatedDelay time.Duration) Trimmer {
	return &localTrimmer{simulatedDelay: simulatedDelay}
}

func (t *localTrimmer) Trim(ctx context.Context, sourcePath string, segments []Segment, outputPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("trimmer: no segments supplied")
	}
	select {
	case <-time.After(t.simulatedDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
