package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    []Source   `yaml:"sources"`
	Collector  Collector  `yaml:"collector"`
	Classifier Classifier `yaml:"classifier"`
	Enrichment Enrichment `yaml:"enrichment"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

// Source configures a single upstream news source. Type is "feed" for
// RSS/Atom documents or "bulk-event" for the GDELT DOC API.
type Source struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	Query    string `yaml:"query"`
	Interval string `yaml:"interval"`
	Enabled  bool   `yaml:"enabled"`
	MaxItems int    `yaml:"max_items"`
}

// IntervalDuration parses the source polling interval, falling back to
// the collector-wide default when unset or invalid.
func (s Source) IntervalDuration(fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s.Interval); err == nil && d > 0 {
		return d
	}
	return fallback
}

type Collector struct {
	DefaultInterval string `yaml:"default_interval"`
	FetchTimeout    string `yaml:"fetch_timeout"`
	RetryAttempts   int    `yaml:"retry_attempts"`
	RetryBackoff    string `yaml:"retry_backoff"`
	RateLimit       string `yaml:"rate_limit"`
	MaxInFlight     int    `yaml:"max_in_flight"`
	PersistAttempts int    `yaml:"persist_attempts"`
	GDELTPageSize   int    `yaml:"gdelt_page_size"`
	GDELTMaxPages   int    `yaml:"gdelt_max_pages"`
	GDELTLookback   string `yaml:"gdelt_lookback"`
}

func (c Collector) DefaultIntervalDuration() time.Duration {
	return duration(c.DefaultInterval, 15*time.Minute)
}

func (c Collector) FetchTimeoutDuration() time.Duration {
	return duration(c.FetchTimeout, 30*time.Second)
}

func (c Collector) RetryBackoffDuration() time.Duration {
	return duration(c.RetryBackoff, 2*time.Second)
}

func (c Collector) RateLimitDuration() time.Duration {
	return duration(c.RateLimit, time.Second)
}

func (c Collector) GDELTLookbackDuration() time.Duration {
	return duration(c.GDELTLookback, 24*time.Hour)
}

type Classifier struct {
	SpecificityThreshold float64    `yaml:"specificity_threshold"`
	MinRuleScore         float64    `yaml:"min_rule_score"`
	ModelWeight          float64    `yaml:"model_weight"`
	Model                Model      `yaml:"model"`
	Categories           []Category `yaml:"categories"`
}

// Model configures the external inference provider the classifier falls
// back to when the rule stage is inconclusive.
type Model struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	APIKeyEnv     string `yaml:"api_key_env"`
	Timeout       string `yaml:"timeout"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

func (m Model) TimeoutDuration() time.Duration {
	return duration(m.Timeout, 15*time.Second)
}

type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Enrichment struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
	Limit   int    `yaml:"limit"`
}

func (e Enrichment) TimeoutDuration() time.Duration {
	return duration(e.Timeout, 15*time.Second)
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for newspipe.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newspipe")
}

// DataDir returns the XDG data directory for newspipe.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newspipe")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/newspipe/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newspipe init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Collector: Collector{
			DefaultInterval: "15m",
			FetchTimeout:    "30s",
			RetryAttempts:   3,
			RetryBackoff:    "2s",
			RateLimit:       "1s",
			MaxInFlight:     64,
			PersistAttempts: 3,
			GDELTPageSize:   250,
			GDELTMaxPages:   4,
			GDELTLookback:   "24h",
		},
		Classifier: Classifier{
			SpecificityThreshold: 0.6,
			MinRuleScore:         0.3,
			ModelWeight:          0.7,
			Model: Model{
				Endpoint:      "http://localhost:8501/classify",
				APIKeyEnv:     "NEWSPIPE_MODEL_KEY",
				Timeout:       "15s",
				MaxConcurrent: 4,
			},
		},
		Enrichment: Enrichment{
			Timeout: "15s",
			Limit:   50,
		},
		Server:  Server{Port: 8080},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i, src := range cfg.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if src.Type != "feed" && src.Type != "bulk-event" {
			return nil, fmt.Errorf("source %q: unknown type %q", src.Name, src.Type)
		}
		if src.Type == "feed" && src.URL == "" {
			return nil, fmt.Errorf("source %q: url is required for feed sources", src.Name)
		}
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func duration(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
