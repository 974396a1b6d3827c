// Package runner drives one site's measurement recipe through a linear
// state machine: navigate, start the test, wait for completion with a
// bounded retry loop, extract metrics. Failures are classified and
// never propagate past Run; one site's failure cannot abort the run.
package runner

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/shigechika/speedtestz/internal/browser"
	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/logger"
	"github.com/shigechika/speedtestz/internal/registry"
)

const (
	defaultStepWait          = 15 * time.Second
	defaultCompletionTimeout = 90 * time.Second
	completionPollInterval   = 2 * time.Second
	stablePollInterval       = 5 * time.Second
	retryDelay               = 3 * time.Second
	clickToggleDelay         = time.Second
)

// Runner executes site recipes against a browser driver.
type Runner struct {
	drv   browser.Driver
	snaps *Snapshots
	clock Clock
}

// New creates a Runner. A nil clock selects the wall clock.
func New(drv browser.Driver, snaps *Snapshots, clock Clock) *Runner {
	if clock == nil {
		clock = realClock{}
	}

	return &Runner{drv: drv, snaps: snaps, clock: clock}
}

// Run executes one site under the given timeout, which is a hard
// ceiling independent of the recipe's own phase timeouts. The returned
// outcome is the only way results or failures leave the runner.
func (r *Runner) Run(ctx context.Context, site registry.Site, timeout time.Duration) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = Failed(site.ID, errors.ErrInternal, fmt.Sprint(p))
		}
	}()

	deadline := r.clock.Now().Add(timeout)

	logger.Info().Str("site", site.ID).Str("url", site.URL).Msg("OPEN")

	// Navigating. Failures here are final: retrying a page whose
	// structure changed does not help.
	if err := r.drv.Navigate(ctx, site.URL); err != nil {
		r.snaps.Capture(r.drv, site.ID+"_error_nav")
		return Failed(site.ID, errors.ErrNavigation, err.Error())
	}

	attempts := site.Retry.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.Info().
				Str("site", site.ID).
				Int("attempt", attempt).
				Int("max", attempts).
				Msg("retrying")
			r.clock.Sleep(retryDelay)

			if site.Retry.Renavigate {
				if err := r.drv.Reload(ctx); err != nil {
					return Failed(site.ID, errors.ErrNavigation, err.Error())
				}
			}
		}

		// AwaitingTestStart.
		if err := r.runStartSteps(ctx, site, deadline); err != nil {
			if attempt < attempts {
				r.snaps.Capture(r.drv, fmt.Sprintf("%s_start_%d", site.ID, attempt))
				continue
			}
			return Failed(site.ID, errors.ErrStartControlMissing, err.Error())
		}

		// AwaitingCompletion.
		err := r.waitCompletion(ctx, site.Completion, deadline)
		if err == nil {
			break
		}

		if attempt < attempts && r.clock.Now().Before(deadline) {
			r.logRetryAffordance(site)
			r.snaps.Capture(r.drv, fmt.Sprintf("%s_retry_%d", site.ID, attempt))
			continue
		}

		r.snaps.Capture(r.drv, site.ID+"_timeout")
		return Failed(site.ID, errors.ErrCompletionTimeout, err.Error())
	}

	logger.Info().Str("site", site.ID).Msg("COMPLETED")

	// Extracting. The snapshot is taken before leaving the state, on
	// success and failure alike.
	samples, failedRule := r.extract(site)
	r.snaps.Capture(r.drv, site.ID)

	if failedRule != "" {
		return Failed(site.ID, errors.ErrExtraction, failedRule)
	}
	if len(samples) == 0 {
		return Failed(site.ID, errors.ErrEmptyResult, "")
	}

	return Succeeded(site.ID, samples)
}

// logRetryAffordance records whether the page shows its known retry
// affordance, to tell an on-page error from a plain timeout in the log.
func (r *Runner) logRetryAffordance(site registry.Site) {
	if site.Retry.ErrorIndicator.IsZero() {
		return
	}

	present, err := r.drv.Exists(site.Retry.ErrorIndicator)
	if err == nil && present {
		logger.Warn().Str("site", site.ID).Msg("error popup detected on page")
	}
}

func (r *Runner) runStartSteps(ctx context.Context, site registry.Site, deadline time.Time) error {
	for _, step := range site.Start {
		if err := r.runStep(ctx, site.ID, step, deadline); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) runStep(ctx context.Context, siteID string, step registry.Step, deadline time.Time) error {
	if step.Delay > 0 {
		r.clock.Sleep(step.Delay)
	}

	wait := step.Wait
	if wait <= 0 {
		wait = defaultStepWait
	}
	if remaining := deadline.Sub(r.clock.Now()); remaining < wait {
		wait = remaining
	}
	if wait <= 0 {
		return fmt.Errorf("per-site timeout exceeded before step %s", step.Target)
	}

	var err error
	switch step.Action {
	case registry.ActionClick:
		err = r.drv.Click(ctx, step.Target, wait)
		if err == nil {
			logger.Info().Str("site", siteID).Str("target", step.Target.String()).Msg("clicked")
		}
	case registry.ActionClickUntilText:
		err = r.clickUntilText(ctx, step, wait)
	case registry.ActionWaitTextStable:
		err = r.waitTextStable(step.Target, wait, deadline)
	case registry.ActionSelectServer:
		err = r.selectServer(ctx, siteID, step, wait)
	default:
		return fmt.Errorf("unknown step action %d", step.Action)
	}

	if err != nil && step.Optional && stderrors.Is(err, browser.ErrElementNotFound) {
		logger.Debug().
			Str("site", siteID).
			Str("target", step.Target.String()).
			Msg("optional step target missing")
		return nil
	}
	if err != nil && step.Optional {
		logger.Warn().Str("site", siteID).Err(err).Msg("optional step failed")
		return nil
	}

	return err
}

// clickUntilText clicks the target until its text contains the wanted
// label, e.g. cycling a size toggle to "100 MB".
func (r *Runner) clickUntilText(ctx context.Context, step registry.Step, wait time.Duration) error {
	for i := 0; i < step.MaxClicks; i++ {
		text, err := r.drv.ReadText(step.Target)
		if err != nil {
			return err
		}
		if strings.Contains(text, step.Text) {
			return nil
		}
		if err := r.drv.Click(ctx, step.Target, wait); err != nil {
			return err
		}
		r.clock.Sleep(clickToggleDelay)
	}

	return fmt.Errorf("text %q not reached after %d clicks", step.Text, step.MaxClicks)
}

// selectServer switches the page to the wanted measurement server. The
// step is a no-op when the current-server label already names it;
// otherwise the picker is opened, the server searched, and the matching
// result clicked, falling back to the first result.
func (r *Runner) selectServer(ctx context.Context, siteID string, step registry.Step, wait time.Duration) error {
	if err := r.drv.WaitVisible(ctx, step.Target, wait); err == nil {
		label, err := r.drv.ReadText(step.Target)
		if err == nil && strings.Contains(label, step.Text) {
			logger.Info().Str("site", siteID).Str("server", label).Msg("server already selected")
			return nil
		}
	}

	logger.Info().Str("site", siteID).Str("server", step.Text).Msg("switching server")

	if err := r.drv.Click(ctx, step.Picker.Open, wait); err != nil {
		return err
	}
	if err := r.drv.TypeText(ctx, step.Picker.Search, step.Text, wait); err != nil {
		return err
	}
	if err := r.drv.WaitVisible(ctx, step.Picker.Results, wait); err != nil {
		return err
	}

	match := step.Picker.Results
	if match.By == browser.ByXPath {
		match = browser.XPath(match.Value + "[contains(., '" + step.Text + "')]")
	}
	if err := r.drv.Click(ctx, match, wait); err != nil {
		if stderrors.Is(err, browser.ErrElementNotFound) {
			return r.drv.Click(ctx, step.Picker.Results, wait)
		}
		return err
	}

	return nil
}

// waitTextStable polls the target until it reports the same non-empty
// text twice in a row.
func (r *Runner) waitTextStable(sel browser.Selector, wait time.Duration, deadline time.Time) error {
	limit := r.clock.Now().Add(wait)
	if deadline.Before(limit) {
		limit = deadline
	}

	var last string
	for r.clock.Now().Before(limit) {
		text, err := r.drv.ReadText(sel)
		if err == nil {
			text = strings.TrimSpace(text)
			if text != "" && text == last {
				return nil
			}
			last = text
		} else if !stderrors.Is(err, browser.ErrElementNotFound) {
			return err
		}

		r.clock.Sleep(stablePollInterval)
	}

	return fmt.Errorf("text did not stabilize: %s", sel)
}

// waitCompletion blocks until the site's completion signal, bounded by
// both the recipe's phase timeout and the per-site deadline.
func (r *Runner) waitCompletion(ctx context.Context, c registry.Completion, deadline time.Time) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}

	limit := r.clock.Now().Add(timeout)
	if deadline.Before(limit) {
		limit = deadline
	}
	remaining := limit.Sub(r.clock.Now())
	if remaining <= 0 {
		return fmt.Errorf("per-site timeout exceeded before completion wait")
	}

	var err error
	if c.Kind == registry.WhenVisible {
		err = r.drv.WaitVisible(ctx, c.Target, remaining)
	} else {
		err = r.pollCondition(ctx, c, limit)
	}
	if err != nil {
		return err
	}

	if c.Settle > 0 {
		r.clock.Sleep(c.Settle)
	}

	return nil
}

func (r *Runner) pollCondition(ctx context.Context, c registry.Completion, limit time.Time) error {
	for r.clock.Now().Before(limit) {
		if err := ctx.Err(); err != nil {
			return err
		}

		met, err := r.conditionMet(c)
		if err != nil && !stderrors.Is(err, browser.ErrElementNotFound) {
			return err
		}
		if met {
			return nil
		}

		r.clock.Sleep(completionPollInterval)
	}

	return fmt.Errorf("completion signal not observed: %s", c.Target)
}

func (r *Runner) conditionMet(c registry.Completion) (bool, error) {
	switch c.Kind {
	case registry.WhenTextContains:
		text, err := r.drv.ReadText(c.Target)
		if err != nil {
			return false, err
		}
		return strings.Contains(text, c.Text), nil

	case registry.WhenTextHasDigits:
		text, err := r.drv.ReadText(c.Target)
		if err != nil {
			return false, err
		}
		return hasDigits(text), nil

	case registry.WhenClassRemoved:
		class, err := r.drv.ReadAttribute(c.Target, "class")
		if err != nil {
			return false, err
		}
		return !strings.Contains(class, c.Text), nil

	default:
		return false, fmt.Errorf("unknown completion kind %d", c.Kind)
	}
}

func hasDigits(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}

	return false
}
