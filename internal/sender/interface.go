package sender

import (
	"context"

	"github.com/shigechika/speedtestz/internal/collector"
)

// Result is the backend's verdict on a batch transmission.
type Result struct {
	Processed int
	Failed    int
	Total     int
	// Info is the backend's raw status line, for the run log.
	Info string
}

// Rejected reports whether the backend declined any sample.
func (r Result) Rejected() bool {
	return r.Failed > 0
}

// Sender transmits one batch of samples to the monitoring backend. It
// is invoked at most once per run.
type Sender interface {
	Send(ctx context.Context, batch []collector.Sample, host string) (Result, error)
}
