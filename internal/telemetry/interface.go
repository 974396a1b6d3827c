package telemetry

import (
	"context"
	"time"
)

// Recorder persists per-site run dispositions for later inspection.
type Recorder interface {
	Record(ctx context.Context, entry *RunEntry) error
	Close() error
}

// RunEntry is one site's disposition within one run.
type RunEntry struct {
	Timestamp time.Time
	Site      string
	Status    string
	Detail    string
	Samples   int
}
