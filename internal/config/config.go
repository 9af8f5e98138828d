// Package config reads the formwalk configuration from a yaml file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/goodsign/monday"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/form"
	"github.com/jakopako/formwalk/internal/log"
	"github.com/jakopako/formwalk/internal/schedule"
)

// DefaultTargetURL is the form that is submitted when none is configured.
const DefaultTargetURL = "https://docs.google.com/forms/d/e/1FAIpQLScotL4FO3z3WV-ptNIeEDZvPjRj4VMWsr1iOaPvJWJ-lrMJlA/viewform"

// TargetConfig is the form to submit and the values it is filled with.
type TargetConfig struct {
	URL  string            `yaml:"url" env:"FORMWALK_URL"`
	Data map[string]string `yaml:"data"`
}

type ScheduleConfig struct {
	IntervalMinutes int           `yaml:"interval_minutes" env:"FORMWALK_INTERVAL" env-default:"10"`
	RecreateDelay   time.Duration `yaml:"recreate_delay" env-default:"5s"`
}

func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Config defines the overall structure of the formwalk configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Target   TargetConfig           `yaml:"target"`
	Schedule ScheduleConfig         `yaml:"schedule"`
	Browser  browser.Config         `yaml:"browser"`
	Form     form.Config            `yaml:"form"`
	Log      log.FileConfig         `yaml:"log"`
	Metrics  schedule.MetricsConfig `yaml:"metrics"`
	Locale   string                 `yaml:"locale" env:"FORMWALK_LOCALE" env-default:"ru_RU"`
}

// NewConfig reads the configuration at configPath. If the file does not
// exist only environment variables and defaults are used.
func NewConfig(configPath string) (*Config, error) {
	var config Config

	_, err := os.Stat(configPath)
	switch {
	case configPath != "" && err == nil:
		if err := cleanenv.ReadConfig(configPath, &config); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	case configPath == "" || errors.Is(err, fs.ErrNotExist):
		slog.Debug(fmt.Sprintf("no config file at %q, using environment and defaults", configPath))
		if err := cleanenv.ReadEnv(&config); err != nil {
			return nil, fmt.Errorf("error reading environment: %w", err)
		}
	default:
		return nil, err
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SetDefaults fills in the values that cannot be expressed as struct tag defaults.
func (c *Config) SetDefaults() {
	if c.Target.URL == "" {
		c.Target.URL = DefaultTargetURL
	}
	if c.Locale == "" {
		c.Locale = string(monday.LocaleRuRU)
	}
	c.Browser.SetDefaults()
	c.Form.SetDefaults()
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.URL)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid target url %q: scheme must be http or https", c.Target.URL)
	}
	if c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be positive, got %d", c.Schedule.IntervalMinutes)
	}
	switch c.Browser.Type {
	case browser.CHROMEDP_BACKEND_TYPE, browser.ROD_BACKEND_TYPE:
	default:
		return fmt.Errorf("browser type '%s' not implemented", c.Browser.Type)
	}
	return nil
}
