// Package gate implements the probability-based inclusion filter that
// decides, per run, whether a site is attempted at all.
package gate

import (
	"math/rand"
	"time"

	"github.com/shigechika/speedtestz/internal/logger"
)

// Gate throttles site execution by configured frequency.
type Gate struct {
	rng *rand.Rand
}

// New creates a Gate drawing from the given source. Pass nil for a
// time-seeded source in production; tests inject a fixed source.
func New(src rand.Source) *Gate {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}

	return &Gate{rng: rand.New(src)}
}

// ShouldRun decides whether a site is attempted this run. Explicit
// selection on the command line always wins. Otherwise one uniform draw
// in [0,100) is compared against the configured probability: 0 never
// runs, 100 always runs.
func (g *Gate) ShouldRun(siteID string, probability int, explicit bool) bool {
	if explicit {
		return true
	}

	if probability <= 0 {
		logger.Info().Str("site", siteID).Msg("Skipping: frequency is 0 (disabled)")
		return false
	}

	if probability >= 100 {
		return true
	}

	draw := g.rng.Intn(100)
	if draw < probability {
		return true
	}

	logger.Info().
		Str("site", siteID).
		Int("draw", draw).
		Int("frequency", probability).
		Msg("Skipping: throttled by frequency")

	return false
}
