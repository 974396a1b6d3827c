package browser

import (
	"context"
	"time"
)

// Driver is the browser capability consumed by the site runner. It is
// owned exclusively by the orchestrator for the lifetime of one run;
// all waits carry explicit ceilings so a hung page cannot stall the
// process indefinitely.
type Driver interface {
	// Navigate loads a URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current page.
	Reload(ctx context.Context) error

	// Exists reports whether an element matching the selector is
	// currently present, without waiting.
	Exists(sel Selector) (bool, error)

	// WaitVisible blocks until the element is present and visible, or
	// the timeout elapses.
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error

	// Click waits for the element to appear within the timeout and
	// clicks it.
	Click(ctx context.Context, sel Selector, timeout time.Duration) error

	// TypeText waits for the element, clears it and types text into it.
	TypeText(ctx context.Context, sel Selector, text string, timeout time.Duration) error

	// ReadText returns the visible text of the first matching element.
	ReadText(sel Selector) (string, error)

	// ReadAttribute returns the named attribute of the first matching
	// element, or "" when the attribute is absent.
	ReadAttribute(sel Selector, name string) (string, error)

	// PageText returns the visible text of the whole page. Used for
	// load-error detection after navigation.
	PageText() (string, error)

	// Screenshot captures a full-page PNG image.
	Screenshot() ([]byte, error)

	// Close tears down the page and the underlying browser process.
	Close() error
}
