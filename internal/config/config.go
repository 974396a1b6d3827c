// Package config loads the run configuration from defaults, an optional
// TOML file and command line flags. The resulting Config is immutable
// for the duration of a run.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shigechika/speedtestz/internal/errors"
)

const (
	configName = "speedtestz"
	configType = "toml"

	DefaultTimeout     = 90
	DefaultZabbixPort  = 10051
	DefaultZabbixHost  = "speedtest-agent"
	DefaultSnapshotDir = "./snapshots"
	DefaultTelemetryDB = "/var/lib/speedtestz/telemetry.db"
)

type ZabbixConfig struct {
	Server string `mapstructure:"server"`
	Port   int    `mapstructure:"port"`
	Host   string `mapstructure:"host"`
}

type SnapshotConfig struct {
	Enable bool   `mapstructure:"enable"`
	Dir    string `mapstructure:"dir"`
}

type TelemetryConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Database string `mapstructure:"database"`
}

type Config struct {
	DryRun      bool   `mapstructure:"dryrun"`
	Headless    bool   `mapstructure:"headless"`
	Timeout     int    `mapstructure:"timeout"`
	OoklaServer string `mapstructure:"ookla_server"`
	Debug       bool   `mapstructure:"debug"`
	Quiet       bool   `mapstructure:"quiet"`

	Zabbix    ZabbixConfig    `mapstructure:"zabbix"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Frequency maps a site ID to its inclusion probability in percent.
	// Sites without an entry run every time.
	Frequency map[string]int `mapstructure:"frequency"`

	// Sites holds the explicit site selection from positional arguments.
	// Empty means all registered sites.
	Sites []string `mapstructure:"-"`

	ListSites bool `mapstructure:"-"`
}

// Load builds the configuration from defaults, the config file and the
// given command line arguments (typically os.Args[1:]).
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	dryRun := fs.BoolP("dry-run", "n", false, "test run (do not send data to Zabbix)")
	headed := fs.Bool("headed", false, "run Chrome with GUI (non-headless)")
	timeout := fs.Int("timeout", 0, "per-site timeout in seconds")
	listSites := fs.Bool("list-sites", false, "list available test sites and exit")
	debug := fs.BoolP("debug", "d", false, "enable debug output")
	quiet := fs.BoolP("quiet", "q", false, "only log warnings and errors")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	v.SetDefault("dryrun", true)
	v.SetDefault("headless", true)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("zabbix.server", "127.0.0.1")
	v.SetDefault("zabbix.port", DefaultZabbixPort)
	v.SetDefault("zabbix.host", DefaultZabbixHost)
	v.SetDefault("snapshot.enable", false)
	v.SetDefault("snapshot.dir", DefaultSnapshotDir)
	v.SetDefault("telemetry.enable", false)
	v.SetDefault("telemetry.database", DefaultTelemetryDB)

	if path := findConfigFile(*configPath); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	// Flags override file values.
	if *dryRun {
		cfg.DryRun = true
	}
	if *headed {
		cfg.Headless = false
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	cfg.Debug = cfg.Debug || *debug
	cfg.Quiet = cfg.Quiet || *quiet
	cfg.ListSites = *listSites
	cfg.Sites = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges. Site names are validated against the
// registry by the caller.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Timeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidTimeout, c.Timeout)
	}

	for site, freq := range c.Frequency {
		if freq < 0 || freq > 100 {
			return errFactory.WithMessage(errors.ErrInvalidConfig,
				"frequency for "+site+" must be between 0 and 100")
		}
	}

	return nil
}

// SiteFrequency returns the configured inclusion probability for a site,
// defaulting to 100 (always run).
func (c *Config) SiteFrequency(siteID string) int {
	if freq, ok := c.Frequency[siteID]; ok {
		return freq
	}

	return 100
}

// ExplicitSelection reports whether sites were named on the command line.
func (c *Config) ExplicitSelection() bool {
	return len(c.Sites) > 0
}

// findConfigFile resolves the config file path. Lookup order: explicit
// path (flag), SPEEDTESTZ_CONFIG, working directory, XDG config dir,
// /etc. Returns "" when no file exists; defaults then apply.
func findConfigFile(cliPath string) string {
	if cliPath != "" {
		return cliPath
	}

	if envPath := os.Getenv("SPEEDTESTZ_CONFIG"); envPath != "" {
		return envPath
	}

	name := configName + "." + configType
	candidates := []string{name}

	xdg := os.Getenv("XDG_CONFIG_HOME")
	if xdg == "" {
		if home, err := os.UserHomeDir(); err == nil {
			xdg = filepath.Join(home, ".config")
		}
	}
	if xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, configName, name))
	}
	candidates = append(candidates, filepath.Join("/etc", name))

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}

	return ""
}
