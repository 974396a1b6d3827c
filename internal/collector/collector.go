// Package collector accumulates per-site results into the single
// ordered sample batch sent at the end of a run.
package collector

import (
	"strconv"
	"time"

	"github.com/shigechika/speedtestz/internal/logger"
	"github.com/shigechika/speedtestz/internal/runner"
)

// Sample is one fully-qualified metric sample in a batch.
type Sample struct {
	// Key is "<metric_prefix>.<metric_name>".
	Key   string
	Value float64
	// Clock is the capture timestamp.
	Clock time.Time
}

// StringValue formats the value the way the wire protocol expects.
func (s Sample) StringValue() string {
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

// Collector builds a run's sample batch. Append-only; only successful
// outcomes contribute, skipped and failed sites are log-only.
type Collector struct {
	now     func() time.Time
	samples []Sample
	seen    map[string]bool
}

// New creates a Collector. A nil now selects the wall clock.
func New(now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}

	return &Collector{now: now, seen: make(map[string]bool)}
}

// Add folds one site outcome into the batch, preserving the recipe's
// extraction-rule order. Distinct sites use distinct prefixes by
// construction of the registry; a colliding key within one site is a
// recipe bug and is dropped with a warning rather than sent twice.
func (c *Collector) Add(siteID, metricPrefix string, outcome runner.Outcome) {
	if outcome.Status != runner.StatusSucceeded {
		return
	}

	captured := c.now()
	for _, s := range outcome.Samples {
		key := metricPrefix + "." + s.Key
		if c.seen[key] {
			logger.Warn().Str("key", key).Msg("duplicate metric key dropped")
			continue
		}
		c.seen[key] = true

		c.samples = append(c.samples, Sample{
			Key:   key,
			Value: s.Value,
			Clock: captured,
		})
	}
}

// Batch returns the accumulated samples in insertion order.
func (c *Collector) Batch() []Sample {
	return c.samples
}

// Len returns the number of accumulated samples.
func (c *Collector) Len() int {
	return len(c.samples)
}
