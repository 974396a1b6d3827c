package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shigechika/speedtestz/internal/registry"
)

func TestBuiltinSitesAndOrder(t *testing.T) {
	reg := registry.Builtin()

	assert.Equal(t, []string{
		"cloudflare", "netflix", "google", "ookla",
		"boxtest", "mlab", "usen", "inonius",
	}, reg.IDs())
}

func TestBuiltinSitesAreWellFormed(t *testing.T) {
	for _, site := range registry.Builtin().Sites() {
		site := site
		t.Run(site.ID, func(t *testing.T) {
			assert.NotEmpty(t, site.URL)
			assert.NotEmpty(t, site.MetricPrefix)
			require.NotEmpty(t, site.Extract)
			assert.False(t, site.Completion.Target.IsZero())

			keys := make(map[string]bool, len(site.Extract))
			for _, rule := range site.Extract {
				assert.False(t, rule.Target.IsZero(), "rule %s has no target", rule.Key)
				assert.False(t, keys[rule.Key], "duplicate key %s", rule.Key)
				keys[rule.Key] = true
			}
		})
	}
}

func TestLookup(t *testing.T) {
	reg := registry.Builtin()

	site, ok := reg.Lookup("ookla")
	require.True(t, ok)
	assert.Equal(t, "https://www.speedtest.net/", site.URL)
	assert.Equal(t, 3, site.Retry.MaxAttempts)
	assert.True(t, site.Retry.Renavigate)

	_, ok = reg.Lookup("nonexistent")
	assert.False(t, ok)
}

func TestWithOoklaServer(t *testing.T) {
	site, ok := registry.Builtin(registry.WithOoklaServer("tokyo")).Lookup("ookla")
	require.True(t, ok)
	require.Len(t, site.Start, 3)

	step := site.Start[1] // after the cookie consent, before the start click
	assert.Equal(t, registry.ActionSelectServer, step.Action)
	assert.Equal(t, "tokyo", step.Text)
	assert.True(t, step.Optional)
	assert.False(t, step.Picker.Open.IsZero())
	assert.False(t, step.Picker.Search.IsZero())
	assert.False(t, step.Picker.Results.IsZero())

	// Other recipes are untouched.
	netflix, ok := registry.Builtin(registry.WithOoklaServer("tokyo")).Lookup("netflix")
	require.True(t, ok)
	assert.Len(t, netflix.Start, 1)
}

func TestWithOoklaServerEmptyIsNoOp(t *testing.T) {
	plain, ok := registry.Builtin().Lookup("ookla")
	require.True(t, ok)
	configured, ok := registry.Builtin(registry.WithOoklaServer("")).Lookup("ookla")
	require.True(t, ok)

	assert.Equal(t, len(plain.Start), len(configured.Start))
}

func TestNewPanicsOnDuplicateID(t *testing.T) {
	sites := []registry.Site{
		{ID: "a", MetricPrefix: "a"},
		{ID: "a", MetricPrefix: "b"},
	}

	assert.Panics(t, func() { registry.New(sites) })
}

func TestNewPanicsOnDuplicateMetricPrefix(t *testing.T) {
	sites := []registry.Site{
		{ID: "a", MetricPrefix: "p"},
		{ID: "b", MetricPrefix: "p"},
	}

	assert.Panics(t, func() { registry.New(sites) })
}

func TestRetryPolicyAttempts(t *testing.T) {
	assert.Equal(t, 1, registry.RetryPolicy{}.Attempts())
	assert.Equal(t, 1, registry.RetryPolicy{MaxAttempts: 1}.Attempts())
	assert.Equal(t, 3, registry.RetryPolicy{MaxAttempts: 3}.Attempts())
}
