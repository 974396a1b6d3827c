package registry

import (
	"time"

	"github.com/shigechika/speedtestz/internal/browser"
)

// Option adjusts the built-in recipes before the registry is sealed.
type Option func(sites []Site)

// WithOoklaServer inserts a server-selection step into the ookla recipe
// so the test runs against the named server instead of the page's
// automatic pick. An empty name leaves the recipe unchanged.
func WithOoklaServer(server string) Option {
	return func(sites []Site) {
		if server == "" {
			return
		}

		step := Step{
			Action:   ActionSelectServer,
			Target:   browser.CSS(".hostUrl"),
			Text:     server,
			Wait:     10 * time.Second,
			Optional: true, // best effort: the default server still measures
			Picker: ServerPicker{
				Open:    browser.XPath("//a[contains(text(), 'Change Server')]"),
				Search:  browser.CSS("#host-search"),
				Results: browser.XPath(`//*[@id="find-servers"]//ul/li/a`),
			},
		}

		for i := range sites {
			if sites[i].ID != "ookla" {
				continue
			}
			// After the cookie consent, before the start click.
			start := sites[i].Start
			sites[i].Start = append(start[:1:1], append([]Step{step}, start[1:]...)...)
		}
	}
}

// Builtin returns the registry of supported speed test sites, in fixed
// run order. Selectors are hand-maintained against the live pages; a
// structural change on a site surfaces as a per-site failure.
func Builtin(opts ...Option) *Registry {
	sites := builtinSites()
	for _, opt := range opts {
		opt(sites)
	}

	return New(sites)
}

func builtinSites() []Site {
	return []Site{
		{
			ID:           "cloudflare",
			URL:          "https://speed.cloudflare.com/",
			MetricPrefix: "cloudflare",
			Start: []Step{
				{
					Action:   ActionClick,
					Target:   browser.XPath("//button[contains(., 'Start')]"),
					Delay:    5 * time.Second,
					Wait:     10 * time.Second,
					Optional: true, // newer page versions start automatically
				},
			},
			Completion: Completion{
				Kind:    WhenVisible,
				Target:  browser.XPath("//div[contains(text(), 'Video Streaming')]"),
				Timeout: 90 * time.Second,
				Settle:  3 * time.Second,
			},
			Extract: []ExtractionRule{
				{Key: "download", Target: browser.XPath("//div[text()='Download']/.."), Mandatory: true},
				{Key: "upload", Target: browser.XPath("//div[text()='Upload']/..")},
				{Key: "latency", Target: browser.XPath("//div[text()='Latency']/..")},
				{Key: "jitter", Target: browser.XPath("//div[text()='Jitter']/..")},
			},
		},
		{
			ID:           "netflix",
			URL:          "https://fast.com/",
			MetricPrefix: "netflix",
			Start: []Step{
				{
					Action: ActionClick,
					Target: browser.CSS("#show-more-details-link"),
					Wait:   45 * time.Second,
				},
			},
			Completion: Completion{
				Kind:    WhenVisible,
				Target:  browser.CSS("#speed-progress-indicator.succeeded"),
				Timeout: 90 * time.Second,
				Settle:  time.Second,
			},
			Extract: []ExtractionRule{
				{Key: "download", Target: browser.CSS("#speed-value"), Mandatory: true},
				{Key: "upload", Target: browser.CSS("#upload-value")},
				{Key: "latency", Target: browser.CSS("#latency-value")},
			},
		},
		{
			ID: "google",
			// speed.googlefiber.net is HTTP only
			URL:          "http://speed.googlefiber.net/",
			MetricPrefix: "google",
			Start: []Step{
				{
					Action: ActionClick,
					Target: browser.CSS("#run-test"),
					Delay:  3 * time.Second,
				},
				{
					Action:   ActionClick,
					Target:   browser.CSS(".actionButton-confirmSpeedtest"),
					Wait:     5 * time.Second,
					Optional: true, // confirmation popup does not always appear
				},
			},
			Completion: Completion{
				Kind:    WhenTextHasDigits,
				Target:  browser.CSS("span[name='downloadSpeedMbps']"),
				Timeout: 60 * time.Second,
				Settle:  3 * time.Second,
			},
			Extract: []ExtractionRule{
				{Key: "download", Target: browser.CSS("span[name='downloadSpeedMbps']"), Mandatory: true},
				{Key: "upload", Target: browser.CSS("span[name='uploadSpeedMbps']")},
				{Key: "ping", Target: browser.CSS("span[name='ping']")},
			},
		},
		{
			ID:           "ookla",
			URL:          "https://www.speedtest.net/",
			MetricPrefix: "ookla",
			Start: []Step{
				{
					Action:   ActionClick,
					Target:   browser.CSS("#onetrust-accept-btn-handler"),
					Wait:     10 * time.Second,
					Optional: true, // cookie consent, first visit only
				},
				{
					Action: ActionClick,
					Target: browser.CSS(".start-text"),
				},
			},
			Completion: Completion{
				Kind:    WhenTextHasDigits,
				Target:  browser.CSS(".result-data-large.download-speed"),
				Timeout: 90 * time.Second,
				Settle:  2 * time.Second,
			},
			Retry: RetryPolicy{
				MaxAttempts:    3,
				Renavigate:     true,
				ErrorIndicator: browser.CSS(".error-container, .notification-error"),
			},
			Extract: []ExtractionRule{
				{Key: "download", Target: browser.CSS(".download-speed"), Mandatory: true},
				{Key: "upload", Target: browser.CSS(".upload-speed")},
				{Key: "ping", Target: browser.CSS(".ping-speed")},
			},
		},
		{
			ID:           "boxtest",
			URL:          "https://www.box-test.com/",
			MetricPrefix: "boxtest",
			Start: []Step{
				{
					Action:    ActionClickUntilText,
					Target:    browser.XPath("//button[contains(., 'MB')]"),
					Text:      "100 MB",
					MaxClicks: 5,
					Delay:     time.Second,
				},
				{
					Action:   ActionWaitTextStable,
					Target:   boxtestLatency,
					Wait:     60 * time.Second,
					Optional: true, // latency chart may be slow to settle
				},
				{
					Action: ActionClick,
					Target: browser.XPath("//button[contains(text(), 'Go!')]"),
				},
			},
			Completion: Completion{
				Kind:    WhenTextHasDigits,
				Target:  browser.XPath(boxtestRow + "/td[5]"),
				Timeout: 90 * time.Second,
			},
			Extract: []ExtractionRule{
				{Key: "DownloadSpeed", Target: browser.XPath(boxtestRow + "/td[2]"), Mandatory: true},
				{Key: "DownloadDuration", Target: browser.XPath(boxtestRow + "/td[3]")},
				{Key: "DownloadRTT", Target: browser.XPath(boxtestRow + "/td[4]")},
				{Key: "UploadSpeed", Target: browser.XPath(boxtestRow + "/td[5]")},
				{Key: "UploadDuration", Target: browser.XPath(boxtestRow + "/td[6]")},
				{Key: "UploadRTT", Target: browser.XPath(boxtestRow + "/td[7]")},
				{Key: "latency", Target: boxtestLatency},
			},
		},
		{
			ID:           "mlab",
			URL:          "https://speed.measurementlab.net/",
			MetricPrefix: "mlab",
			Start: []Step{
				{
					Action:   ActionClick,
					Target:   browser.CSS("#demo-human"),
					Wait:     15 * time.Second,
					Optional: true, // consent checkbox
				},
				{
					Action: ActionClick,
					Target: browser.CSS("a.startButton"),
				},
			},
			Completion: Completion{
				Kind:    WhenVisible,
				Target:  browser.XPath("//span[contains(text(), 'Again')]"),
				Timeout: 90 * time.Second,
			},
			Extract: []ExtractionRule{
				{Key: "download", Target: browser.XPath(mlabTable + "/tr[3]/td[3]/strong"), Mandatory: true},
				{Key: "upload", Target: browser.XPath(mlabTable + "/tr[4]/td[3]/strong")},
				{Key: "latency", Target: browser.XPath(mlabTable + "/tr[5]/td[3]/strong")},
				{Key: "retrans", Target: browser.XPath(mlabTable + "/tr[6]/td[3]/strong")},
			},
		},
		{
			ID:           "usen",
			URL:          "https://speedtest.gate02.ne.jp/",
			MetricPrefix: "usen",
			Start: []Step{
				{
					Action: ActionClick,
					Target: browser.CSS(".speedtest_start .btn-start"),
				},
			},
			Completion: Completion{
				Kind:    WhenClassRemoved,
				Target:  browser.CSS("body"),
				Text:    "speedtest_wait",
				Timeout: 120 * time.Second,
				Settle:  2 * time.Second,
			},
			Extract: []ExtractionRule{
				{Key: "download", Target: browser.CSS("#dlText"), Mandatory: true},
				{Key: "upload", Target: browser.CSS("#ulText")},
				{Key: "ping", Target: browser.CSS("#pingText")},
				{Key: "jitter", Target: browser.CSS("#jitText")},
			},
		},
		{
			ID:           "inonius",
			URL:          "https://inonius.net/speedtest/",
			MetricPrefix: "inonius",
			Start: []Step{
				{
					Action: ActionClick,
					Target: browser.XPath("/html/body/div/astro-island/dialog/div/div/form/button[2]"),
				},
			},
			Completion: Completion{
				Kind:    WhenTextContains,
				Target:  browser.XPath("/html/body/div/astro-island/div/div[3]/div/span"),
				Text:    "Test completed!",
				Timeout: 90 * time.Second,
			},
			// Dual-stack results: either family may be absent on a
			// single-stack line, so no rule is mandatory here.
			Extract: []ExtractionRule{
				{Key: "IPv6_RTT", Target: browser.XPath(inoniusV6 + "/div[2]/div[1]/div/span[1]")},
				{Key: "IPv6_JIT", Target: browser.XPath(inoniusV6 + "/div[2]/div[2]/div/span[1]")},
				{Key: "IPv6_DL", Target: browser.XPath(inoniusV6 + "/div[1]/div[1]/div/div/span[1]")},
				{Key: "IPv6_UL", Target: browser.XPath(inoniusV6 + "/div[1]/div[2]/div/div/span[1]")},
				{Key: "IPv6_MSS", Target: browser.XPath("/html/body/div/astro-island/div/div[2]/div/div[2]/p")},
				{Key: "IPv4_RTT", Target: browser.XPath(inoniusV4 + "/div[2]/div[1]/div/span[1]")},
				{Key: "IPv4_JIT", Target: browser.XPath(inoniusV4 + "/div[2]/div[2]/div/span[1]")},
				{Key: "IPv4_DL", Target: browser.XPath(inoniusV4 + "/div[1]/div[1]/div/div/span[1]")},
				{Key: "IPv4_UL", Target: browser.XPath(inoniusV4 + "/div[1]/div[2]/div/div/span[1]")},
				{Key: "IPv4_MSS", Target: browser.XPath("/html/body/div/astro-island/div/div[1]/div/div[2]/p[1]")},
			},
		},
	}
}

const (
	boxtestRow = "//div[@id='pop-test-manager']//table/tbody/tr"
	mlabTable  = `//*[@id="measurementSpace"]//table/tbody`
	inoniusV6  = "/html/body/div/astro-island/div/div[2]/div/div[1]"
	inoniusV4  = "/html/body/div/astro-island/div/div[1]/div/div[1]"
)

var boxtestLatency = browser.XPath(
	"//div[contains(text(), 'Average latency to Box')]" +
		"/ancestor::div[contains(@class, 'card')]" +
		"//*[local-name()='tspan' and contains(., 'Avg:')]")
