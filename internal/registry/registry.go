// Package registry holds the fixed mapping from site identifier to its
// measurement recipe. Recipes are tagged rule values, not per-site
// types: each site's idiosyncrasies stay local and independently
// testable. The registry is built once at startup and never mutated.
package registry

import (
	"time"

	"github.com/shigechika/speedtestz/internal/browser"
)

// Action identifies a start-phase step kind.
type Action int

const (
	// ActionClick locates the target and clicks it.
	ActionClick Action = iota
	// ActionClickUntilText clicks the target repeatedly until its text
	// contains Text, up to MaxClicks times.
	ActionClickUntilText
	// ActionWaitTextStable polls the target until its text holds the
	// same non-empty value twice in a row.
	ActionWaitTextStable
	// ActionSelectServer switches the page to the measurement server
	// named in Text: a no-op when the Target label already shows it,
	// otherwise the Picker controls are driven to search and select.
	ActionSelectServer
)

// ServerPicker holds the controls of a page's server-selection dialog,
// used by ActionSelectServer.
type ServerPicker struct {
	// Open reveals the picker.
	Open browser.Selector
	// Search is the server search input.
	Search browser.Selector
	// Results matches the result links. The entry whose text contains
	// the wanted server is clicked, falling back to the first entry.
	Results browser.Selector
}

// Step is one action in a site's start phase, executed in order before
// completion polling begins.
type Step struct {
	Action    Action
	Target    browser.Selector
	Text      string
	MaxClicks int
	// Delay is slept before attempting the step (page settle time).
	Delay time.Duration
	// Wait bounds the element lookup. Zero means the runner default.
	Wait time.Duration
	// Optional steps are skipped silently when the element is missing;
	// a missing mandatory step fails the site.
	Optional bool
	// Picker is consulted by ActionSelectServer only.
	Picker ServerPicker
}

// CompletionKind identifies how a site signals that the test finished.
type CompletionKind int

const (
	// WhenVisible waits for the target element to appear.
	WhenVisible CompletionKind = iota
	// WhenTextContains waits for the target's text to contain Text.
	WhenTextContains
	// WhenTextHasDigits waits for the target's text to contain a digit.
	WhenTextHasDigits
	// WhenClassRemoved waits for the target's class attribute to no
	// longer contain Text.
	WhenClassRemoved
)

// Completion describes a site's test-finished signal.
type Completion struct {
	Kind   CompletionKind
	Target browser.Selector
	Text   string
	// Timeout bounds one completion attempt. Zero means the runner
	// default. The orchestrator's per-site timeout caps it regardless.
	Timeout time.Duration
	// Settle is slept after the signal, before extraction, to let the
	// page finish rendering final values.
	Settle time.Duration
}

// RetryPolicy bounds the completion-wait retry loop.
type RetryPolicy struct {
	// MaxAttempts is the number of completion attempts. Zero and one
	// both mean a single attempt.
	MaxAttempts int
	// Renavigate reloads the page and re-runs the start steps between
	// attempts instead of just re-polling.
	Renavigate bool
	// ErrorIndicator, when set, marks the page's retry affordance: if
	// it is present after a failed attempt the site is retried rather
	// than failed outright.
	ErrorIndicator browser.Selector
}

// Attempts normalizes MaxAttempts.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}

// ExtractionRule yields one metric from the completed page.
type ExtractionRule struct {
	// Key is the metric name below the site's prefix.
	Key    string
	Target browser.Selector
	// Mandatory rules abort the site when the value is missing or not
	// numeric; optional rules simply omit the metric.
	Mandatory bool
}

// Site is one measurable target. Immutable once the registry is built.
type Site struct {
	ID           string
	URL          string
	MetricPrefix string
	// Start holds the steps driving the page to a running test. Empty
	// means the test starts automatically on page load.
	Start      []Step
	Completion Completion
	Retry      RetryPolicy
	Extract    []ExtractionRule
}

// Registry is the fixed, ordered set of site descriptors.
type Registry struct {
	sites []Site
	byID  map[string]int
}

// New builds a registry from descriptors, preserving order. Duplicate
// IDs or metric prefixes panic: descriptors are static program data and
// a collision is a programming error, not a runtime condition.
func New(sites []Site) *Registry {
	byID := make(map[string]int, len(sites))
	prefixes := make(map[string]bool, len(sites))

	for i, s := range sites {
		if _, dup := byID[s.ID]; dup {
			panic("registry: duplicate site ID " + s.ID)
		}
		if prefixes[s.MetricPrefix] {
			panic("registry: duplicate metric prefix " + s.MetricPrefix)
		}
		byID[s.ID] = i
		prefixes[s.MetricPrefix] = true
	}

	return &Registry{sites: sites, byID: byID}
}

// Sites returns the descriptors in registration order.
func (r *Registry) Sites() []Site {
	return r.sites
}

// Lookup returns the descriptor for a site ID.
func (r *Registry) Lookup(id string) (Site, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Site{}, false
	}

	return r.sites[i], true
}

// IDs returns all site IDs in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.sites))
	for i, s := range r.sites {
		ids[i] = s.ID
	}

	return ids
}
