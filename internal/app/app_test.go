package app_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shigechika/speedtestz/internal/app"
	"github.com/shigechika/speedtestz/internal/browser"
	"github.com/shigechika/speedtestz/internal/collector"
	"github.com/shigechika/speedtestz/internal/config"
	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/registry"
	"github.com/shigechika/speedtestz/internal/runner"
	"github.com/shigechika/speedtestz/internal/sender"
	"github.com/shigechika/speedtestz/internal/telemetry"
)

// stubDriver answers every lookup with the same numeric text, so any
// recipe built on it completes and extracts immediately.
type stubDriver struct {
	failURL   string
	navigated []string
	closed    bool
}

func (d *stubDriver) Navigate(_ context.Context, url string) error {
	d.navigated = append(d.navigated, url)
	if url == d.failURL {
		return fmt.Errorf("net::ERR_CONNECTION_REFUSED")
	}
	return nil
}

func (d *stubDriver) Reload(_ context.Context) error { return nil }

func (d *stubDriver) Exists(_ browser.Selector) (bool, error) { return true, nil }

func (d *stubDriver) WaitVisible(_ context.Context, _ browser.Selector, _ time.Duration) error {
	return nil
}

func (d *stubDriver) Click(_ context.Context, _ browser.Selector, _ time.Duration) error {
	return nil
}

func (d *stubDriver) TypeText(_ context.Context, _ browser.Selector, _ string, _ time.Duration) error {
	return nil
}

func (d *stubDriver) ReadText(_ browser.Selector) (string, error) { return "42 ms", nil }

func (d *stubDriver) ReadAttribute(_ browser.Selector, _ string) (string, error) { return "", nil }

func (d *stubDriver) PageText() (string, error) { return "", nil }

func (d *stubDriver) Screenshot() ([]byte, error) { return []byte("png"), nil }

func (d *stubDriver) Close() error {
	d.closed = true
	return nil
}

type stubSender struct {
	calls   int
	batches [][]collector.Sample
	hosts   []string
	result  sender.Result
	err     error
}

func (s *stubSender) Send(_ context.Context, batch []collector.Sample, host string) (sender.Result, error) {
	s.calls++
	s.batches = append(s.batches, batch)
	s.hosts = append(s.hosts, host)
	return s.result, s.err
}

type stubRecorder struct {
	entries []*telemetry.RunEntry
}

func (r *stubRecorder) Record(_ context.Context, entry *telemetry.RunEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubRecorder) Close() error { return nil }

func testRegistry() *registry.Registry {
	site := func(id string) registry.Site {
		return registry.Site{
			ID:           id,
			URL:          "http://" + id + ".test/",
			MetricPrefix: id,
			Completion: registry.Completion{
				Kind:   registry.WhenTextHasDigits,
				Target: browser.CSS("#v"),
			},
			Extract: []registry.ExtractionRule{
				{Key: "latency", Target: browser.CSS("#v"), Mandatory: true},
			},
		}
	}

	return registry.New([]registry.Site{site("alpha"), site("beta")})
}

func testConfig() *config.Config {
	return &config.Config{
		DryRun:   true,
		Headless: true,
		Timeout:  5,
		Zabbix:   config.ZabbixConfig{Server: "127.0.0.1", Port: 10051, Host: "probe-1"},
	}
}

func newTestApp(cfg *config.Config, drv *stubDriver, snd *stubSender, rec telemetry.Recorder) *app.App {
	return app.New(app.Options{
		Config:    cfg,
		Registry:  testRegistry(),
		NewDriver: func() (browser.Driver, error) { return drv, nil },
		Sender:    snd,
		Telemetry: rec,
	})
}

func TestRunDryRunNeverSends(t *testing.T) {
	cfg := testConfig()
	cfg.Frequency = map[string]int{"beta": 0}
	drv := &stubDriver{}
	snd := &stubSender{}
	rec := &stubRecorder{}

	report, err := newTestApp(cfg, drv, snd, rec).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, runner.StatusSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, runner.StatusSkipped, report.Outcomes[1].Status)

	assert.Zero(t, snd.calls)
	assert.False(t, report.Sent)
	assert.Zero(t, report.ExitCode())
	assert.True(t, drv.closed)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "succeeded", rec.entries[0].Status)
	assert.Equal(t, "skipped", rec.entries[1].Status)
}

func TestRunSendsBatchOnce(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = false
	drv := &stubDriver{}
	snd := &stubSender{result: sender.Result{Processed: 2, Total: 2}}

	report, err := newTestApp(cfg, drv, snd, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, snd.calls)
	assert.Equal(t, "probe-1", snd.hosts[0])

	batch := snd.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "alpha.latency", batch[0].Key)
	assert.Equal(t, "beta.latency", batch[1].Key)
	assert.InDelta(t, 42, batch[0].Value, 0.001)

	assert.True(t, report.Sent)
	assert.Zero(t, report.ExitCode())
}

func TestRunIsolatesSiteFailures(t *testing.T) {
	cfg := testConfig()
	drv := &stubDriver{failURL: "http://alpha.test/"}
	snd := &stubSender{}

	report, err := newTestApp(cfg, drv, snd, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, runner.StatusFailed, report.Outcomes[0].Status)
	assert.Equal(t, errors.ErrNavigation, report.Outcomes[0].Code)
	assert.Equal(t, runner.StatusSucceeded, report.Outcomes[1].Status)

	assert.True(t, report.AnyFailed())
	assert.Equal(t, 1, report.ExitCode())
	assert.True(t, drv.closed)
}

func TestRunSenderErrorSetsExitCode(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = false
	drv := &stubDriver{}
	factory := errors.New()
	snd := &stubSender{
		result: sender.Result{Processed: 1, Failed: 1, Total: 2},
		err:    factory.New(errors.ErrSenderRejected),
	}

	report, err := newTestApp(cfg, drv, snd, nil).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Sent)
	assert.Error(t, report.SenderErr)
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunExplicitSelectionOverridesFrequency(t *testing.T) {
	cfg := testConfig()
	cfg.Frequency = map[string]int{"beta": 0}
	cfg.Sites = []string{"beta"}
	drv := &stubDriver{}
	snd := &stubSender{}

	report, err := newTestApp(cfg, drv, snd, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "beta", report.Outcomes[0].Site)
	assert.Equal(t, runner.StatusSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, []string{"http://beta.test/"}, drv.navigated)
}

func TestRunRejectsUnknownSite(t *testing.T) {
	cfg := testConfig()
	cfg.Sites = []string{"nonexistent"}
	drv := &stubDriver{}

	_, err := newTestApp(cfg, drv, &stubSender{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnknownSite, errors.CodeOf(err))
	assert.Empty(t, drv.navigated)
}

func TestRunRejectsUnknownFrequencyKey(t *testing.T) {
	cfg := testConfig()
	cfg.Frequency = map[string]int{"okla": 10}
	drv := &stubDriver{}

	_, err := newTestApp(cfg, drv, &stubSender{}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnknownSite, errors.CodeOf(err))
	assert.Empty(t, drv.navigated)
}

func TestRunDriverLaunchFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	a := app.New(app.Options{
		Config:   cfg,
		Registry: testRegistry(),
		NewDriver: func() (browser.Driver, error) {
			return nil, fmt.Errorf("chrome not found")
		},
		Sender: &stubSender{},
	})

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrBrowserLaunch, errors.CodeOf(err))
}

func TestRunStopsAfterCancellation(t *testing.T) {
	cfg := testConfig()
	drv := &stubDriver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestApp(cfg, drv, &stubSender{}, nil).Run(ctx)
	require.NoError(t, err)

	// The first site's outcome is recorded, then the loop stops.
	assert.Len(t, report.Outcomes, 1)
	assert.True(t, drv.closed)
}
