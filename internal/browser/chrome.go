// Package browser wraps go-rod behind the Driver capability: launch
// Chrome, navigate with load-error detection, locate elements by CSS or
// XPath, wait with bounded timeouts, capture screenshots, and guarantee
// process teardown on Close.
package browser

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/logger"
)

const (
	windowWidth  = 1024
	windowHeight = 1024

	navTimeout    = 60 * time.Second
	navRetries    = 3
	navRetryDelay = 5 * time.Second
	navSettle     = 2 * time.Second
)

// ErrElementNotFound reports that a selector matched nothing. Callers
// distinguish it from driver failures to handle optional elements.
var ErrElementNotFound = stderrors.New("element not found")

// Chrome error page indicators, checked after navigation. Chrome
// renders these instead of failing the Navigate call.
var loadErrorIndicators = []string{
	"can't be reached",
	"err_",
	"dns_probe",
	"connection refused",
	"took too long",
}

// Config configures the Chrome driver.
type Config struct {
	Headless bool
}

type chromeDriver struct {
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher
}

// New launches Chrome and opens a single stealth page. The returned
// Driver owns the browser process; Close tears it down.
func New(cfg Config) (Driver, error) {
	errFactory := errors.New()

	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1024,1024")

	if cfg.Headless {
		l = l.
			Set("no-sandbox").
			Set("disable-dev-shm-usage").
			Set("disable-gpu")
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrBrowserLaunch, err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, errFactory.Wrap(errors.ErrBrowserLaunch, err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		logger.Warn().Err(err).Msg("browser: ignore cert errors failed")
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, errFactory.Wrap(errors.ErrBrowserLaunch, err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  windowWidth,
		Height: windowHeight,
	}); err != nil {
		logger.Warn().Err(err).Msg("browser: set viewport failed")
	}

	logger.Info().Bool("headless", cfg.Headless).Msg("browser: Chrome launched")

	return &chromeDriver{browser: b, page: page, lnch: l}, nil
}

// Navigate loads the URL, retrying on Chrome error pages. The state
// machine treats a navigation failure as final for the site; the
// bounded retry here only absorbs transient network hiccups.
func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	errFactory := errors.New()

	var lastErr error
	for attempt := 1; attempt <= navRetries; attempt++ {
		if attempt > 1 {
			logger.Warn().
				Str("url", url).
				Int("attempt", attempt).
				Msg("browser: retrying page load")
			sleepCtx(ctx, navRetryDelay)
		}

		if err := d.navigateOnce(ctx, url); err != nil {
			lastErr = err
			continue
		}

		loaded, err := d.loadedCleanly()
		if err != nil {
			lastErr = err
			continue
		}
		if loaded {
			return nil
		}
		lastErr = errFactory.WithData(errors.ErrNavigation, url)
	}

	return errFactory.Wrap(errors.ErrNavigation, lastErr)
}

func (d *chromeDriver) navigateOnce(ctx context.Context, url string) error {
	p := d.page.Context(ctx).Timeout(navTimeout)

	if err := p.Navigate(url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		logger.Warn().Str("url", url).Err(err).Msg("browser: wait load timeout")
	}
	sleepCtx(ctx, navSettle)

	return nil
}

// loadedCleanly reports whether the current page is real content rather
// than a Chrome error page.
func (d *chromeDriver) loadedCleanly() (bool, error) {
	text, err := d.PageText()
	if err != nil {
		return false, err
	}

	lower := strings.ToLower(text)
	for _, indicator := range loadErrorIndicators {
		if strings.Contains(lower, indicator) {
			return false, nil
		}
	}

	return true, nil
}

func (d *chromeDriver) Reload(ctx context.Context) error {
	p := d.page.Context(ctx).Timeout(navTimeout)

	if err := p.Reload(); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		logger.Warn().Err(err).Msg("browser: wait load timeout after reload")
	}
	sleepCtx(ctx, navSettle)

	return nil
}

func (d *chromeDriver) Exists(sel Selector) (bool, error) {
	switch sel.By {
	case ByXPath:
		has, _, err := d.page.HasX(sel.Value)
		return has, err
	default:
		has, _, err := d.page.Has(sel.Value)
		return has, err
	}
}

func (d *chromeDriver) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	el, err := d.find(ctx, sel, timeout)
	if err != nil {
		return err
	}

	return el.WaitVisible()
}

func (d *chromeDriver) Click(ctx context.Context, sel Selector, timeout time.Duration) error {
	el, err := d.find(ctx, sel, timeout)
	if err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return err
	}

	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (d *chromeDriver) TypeText(ctx context.Context, sel Selector, text string, timeout time.Duration) error {
	el, err := d.find(ctx, sel, timeout)
	if err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return err
	}

	return el.Input(text)
}

func (d *chromeDriver) ReadText(sel Selector) (string, error) {
	el, err := d.lookup(sel)
	if err != nil {
		return "", err
	}

	return el.Text()
}

func (d *chromeDriver) ReadAttribute(sel Selector, name string) (string, error) {
	el, err := d.lookup(sel)
	if err != nil {
		return "", err
	}

	attr, err := el.Attribute(name)
	if err != nil {
		return "", err
	}
	if attr == nil {
		return "", nil
	}

	return *attr, nil
}

func (d *chromeDriver) PageText() (string, error) {
	res, err := d.page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}

	return res.Value.Str(), nil
}

func (d *chromeDriver) Screenshot() ([]byte, error) {
	return d.page.Screenshot(true, nil)
}

func (d *chromeDriver) Close() error {
	logger.Info().Msg("browser: closing session")

	var err error
	if d.browser != nil {
		err = d.browser.Close()
		d.browser = nil
	}
	if d.lnch != nil {
		d.lnch.Cleanup()
		d.lnch = nil
	}

	return err
}

// find waits for an element to appear, bounded by timeout.
func (d *chromeDriver) find(ctx context.Context, sel Selector, timeout time.Duration) (*rod.Element, error) {
	p := d.page.Context(ctx).Timeout(timeout)

	var el *rod.Element
	var err error
	switch sel.By {
	case ByXPath:
		el, err = p.ElementX(sel.Value)
	default:
		el, err = p.Element(sel.Value)
	}
	if err != nil {
		return nil, ErrElementNotFound
	}

	return el, nil
}

// lookup finds an element without waiting.
func (d *chromeDriver) lookup(sel Selector) (*rod.Element, error) {
	var has bool
	var el *rod.Element
	var err error
	switch sel.By {
	case ByXPath:
		has, el, err = d.page.HasX(sel.Value)
	default:
		has, el, err = d.page.Has(sel.Value)
	}
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, ErrElementNotFound
	}

	return el, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
