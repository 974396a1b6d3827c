// Package app sequences a measurement run: frequency gate, site runner
// and result collection per site, then a single batched send. It owns
// the browser driver for the run's lifetime and guarantees its release
// on every exit path.
package app

import (
	"context"
	"time"

	"github.com/shigechika/speedtestz/internal/browser"
	"github.com/shigechika/speedtestz/internal/collector"
	"github.com/shigechika/speedtestz/internal/config"
	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/gate"
	"github.com/shigechika/speedtestz/internal/logger"
	"github.com/shigechika/speedtestz/internal/registry"
	"github.com/shigechika/speedtestz/internal/runner"
	"github.com/shigechika/speedtestz/internal/sender"
	"github.com/shigechika/speedtestz/internal/telemetry"
)

// Options wires the orchestrator's collaborators. NewDriver is invoked
// once per run; the app closes the returned driver itself.
type Options struct {
	Config    *config.Config
	Registry  *registry.Registry
	NewDriver func() (browser.Driver, error)
	Sender    sender.Sender
	Telemetry telemetry.Recorder

	// Gate defaults to a time-seeded gate; tests inject a fixed one.
	Gate *gate.Gate
	// Clock defaults to the wall clock.
	Clock runner.Clock
	// Now defaults to time.Now; stamps collected samples.
	Now func() time.Time
}

// App orchestrates one measurement run.
type App struct {
	opts Options
}

// Report summarizes a run: one outcome per attempted or skipped site,
// plus the sender's verdict.
type Report struct {
	Outcomes []runner.Outcome
	// Sent is true when a batch was transmitted (never in dry-run).
	Sent         bool
	SenderResult *sender.Result
	SenderErr    error
}

// AnyFailed reports whether any site failed.
func (r *Report) AnyFailed() bool {
	for _, out := range r.Outcomes {
		if out.Status == runner.StatusFailed {
			return true
		}
	}

	return false
}

// ExitCode maps the run to a process exit status: non-zero when any
// site failed or the send was rejected.
func (r *Report) ExitCode() int {
	if r.AnyFailed() || r.SenderErr != nil {
		return 1
	}

	return 0
}

// New creates the orchestrator.
func New(opts Options) *App {
	if opts.Gate == nil {
		opts.Gate = gate.New(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &App{opts: opts}
}

// Run executes one measurement run. Only a failure to acquire the
// driver is run-fatal; every site-level failure is isolated and the
// iteration continues.
func (a *App) Run(ctx context.Context) (*Report, error) {
	errFactory := errors.New()
	cfg := a.opts.Config

	if err := a.validateFrequencies(); err != nil {
		return nil, err
	}

	sites, err := a.selectSites()
	if err != nil {
		return nil, err
	}

	drv, err := a.opts.NewDriver()
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrBrowserLaunch, err)
	}
	defer func() {
		if closeErr := drv.Close(); closeErr != nil {
			logger.Warn().Err(closeErr).Msg("browser close failed")
		}
	}()

	snaps, err := runner.NewSnapshots(cfg.Snapshot.Enable, cfg.Snapshot.Dir)
	if err != nil {
		logger.Warn().Err(err).Msg("snapshot dir unavailable, captures disabled")
		snaps = nil
	}

	run := runner.New(drv, snaps, a.opts.Clock)
	coll := collector.New(a.opts.Now)
	report := &Report{}
	timeout := time.Duration(cfg.Timeout) * time.Second
	explicit := cfg.ExplicitSelection()

	for _, site := range sites {
		var out runner.Outcome

		if !a.opts.Gate.ShouldRun(site.ID, cfg.SiteFrequency(site.ID), explicit) {
			out = runner.Skipped(site.ID, "throttled by frequency")
		} else {
			siteCtx, cancel := context.WithTimeout(ctx, timeout)
			out = run.Run(siteCtx, site, timeout)
			cancel()
		}

		a.logOutcome(out)
		coll.Add(site.ID, site.MetricPrefix, out)
		a.recordTelemetry(ctx, out)
		report.Outcomes = append(report.Outcomes, out)

		if ctx.Err() != nil {
			logger.Info().Msg("run cancelled")
			break
		}
	}

	a.dispatch(ctx, coll, report)

	return report, nil
}

// validateFrequencies rejects frequency overrides naming unknown sites:
// a typo'd key would otherwise silently leave the real site unthrottled.
func (a *App) validateFrequencies() error {
	errFactory := errors.New()

	for id := range a.opts.Config.Frequency {
		if _, ok := a.opts.Registry.Lookup(id); !ok {
			return errFactory.WithData(errors.ErrUnknownSite, id)
		}
	}

	return nil
}

// selectSites resolves the explicit selection against the registry,
// preserving registry order. Empty selection means every site.
func (a *App) selectSites() ([]registry.Site, error) {
	errFactory := errors.New()
	cfg := a.opts.Config
	reg := a.opts.Registry

	if !cfg.ExplicitSelection() {
		return reg.Sites(), nil
	}

	wanted := make(map[string]bool, len(cfg.Sites))
	for _, id := range cfg.Sites {
		if _, ok := reg.Lookup(id); !ok {
			return nil, errFactory.WithData(errors.ErrUnknownSite, id)
		}
		wanted[id] = true
	}

	var sites []registry.Site
	for _, site := range reg.Sites() {
		if wanted[site.ID] {
			sites = append(sites, site)
		}
	}

	return sites, nil
}

// dispatch flushes the collected batch through the sender exactly once,
// or only reports it in dry-run mode.
func (a *App) dispatch(ctx context.Context, coll *collector.Collector, report *Report) {
	cfg := a.opts.Config
	batch := coll.Batch()

	if len(batch) == 0 {
		logger.Info().Msg("no samples collected, nothing to send")
		return
	}

	if cfg.DryRun {
		for _, sample := range batch {
			logger.Info().
				Str("key", sample.Key).
				Str("value", sample.StringValue()).
				Msg("dry-run: would send")
		}
		logger.Info().Int("samples", len(batch)).Msg("dry-run: data not sent")
		return
	}

	result, err := a.opts.Sender.Send(ctx, batch, cfg.Zabbix.Host)
	report.Sent = true
	report.SenderResult = &result
	report.SenderErr = err

	if err != nil {
		logger.ErrorWithCode(err).Str("info", result.Info).Msg("send failed")
		return
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("total", result.Total).
		Str("info", result.Info).
		Msg("batch sent")
}

func (a *App) logOutcome(out runner.Outcome) {
	switch out.Status {
	case runner.StatusSucceeded:
		logger.Info().
			Str("site", out.Site).
			Int("samples", len(out.Samples)).
			Msg("site succeeded")
	case runner.StatusSkipped:
		logger.Debug().
			Str("site", out.Site).
			Str("reason", out.Detail).
			Msg("site skipped")
	case runner.StatusFailed:
		logger.Error().
			Str("site", out.Site).
			Str("kind", string(out.Code)).
			Str("detail", out.Detail).
			Msg("site failed")
	}
}

func (a *App) recordTelemetry(ctx context.Context, out runner.Outcome) {
	if a.opts.Telemetry == nil {
		return
	}

	entry := &telemetry.RunEntry{
		Timestamp: a.opts.Now(),
		Site:      out.Site,
		Status:    out.Status.String(),
		Detail:    out.Detail,
		Samples:   len(out.Samples),
	}
	if out.Status == runner.StatusFailed {
		entry.Detail = string(out.Code) + " " + out.Detail
	}

	if err := a.opts.Telemetry.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Msg("telemetry record failed")
	}
}
