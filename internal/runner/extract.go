package runner

import (
	stderrors "errors"
	"regexp"
	"strconv"

	"github.com/shigechika/speedtestz/internal/browser"
	"github.com/shigechika/speedtestz/internal/logger"
	"github.com/shigechika/speedtestz/internal/registry"
)

// numberPattern matches the first decimal number in an element's text.
// Values stay in site-native units; unit conversion is a backend concern.
var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// extract applies the site's extraction rules in order. It returns the
// collected samples and, when a mandatory rule could not produce a
// value, the key of that rule.
func (r *Runner) extract(site registry.Site) ([]Sample, string) {
	samples := make([]Sample, 0, len(site.Extract))

	for _, rule := range site.Extract {
		value, ok := r.extractRule(site.ID, rule)
		if !ok {
			if rule.Mandatory {
				return nil, rule.Key
			}
			continue
		}

		samples = append(samples, Sample{Key: rule.Key, Value: value})
	}

	return samples, ""
}

func (r *Runner) extractRule(siteID string, rule registry.ExtractionRule) (float64, bool) {
	text, err := r.drv.ReadText(rule.Target)
	if err != nil {
		if !stderrors.Is(err, browser.ErrElementNotFound) {
			logger.Warn().
				Str("site", siteID).
				Str("key", rule.Key).
				Err(err).
				Msg("extraction read failed")
		} else {
			logger.Debug().
				Str("site", siteID).
				Str("key", rule.Key).
				Msg("element not found")
		}
		return 0, false
	}

	match := numberPattern.FindString(text)
	if match == "" {
		logger.Debug().
			Str("site", siteID).
			Str("key", rule.Key).
			Str("text", text).
			Msg("no numeric value in text")
		return 0, false
	}

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	logger.Debug().
		Str("site", siteID).
		Str("key", rule.Key).
		Float64("value", value).
		Msg("extracted")

	return value, true
}
