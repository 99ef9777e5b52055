package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is the prefix of every environment variable read by Load
const Prefix = "HSAUTO"

// VSphere holds the vCenter/ESXi connection settings
type VSphere struct {
	Host       string `envconfig:"HOST"`
	User       string `envconfig:"USER" default:"root"`
	Password   string `envconfig:"PASSWORD"`
	Datacenter string `envconfig:"DATACENTER"`
	Insecure   bool   `envconfig:"INSECURE" default:"true"`
}

// Validate checks the settings needed to log in
func (v VSphere) Validate() error {
	if v.Host == "" {
		return fmt.Errorf("vsphere host not provided as env var: %s_VSPHERE_HOST", Prefix)
	}
	if v.Password == "" {
		return fmt.Errorf("vsphere password not provided as env var: %s_VSPHERE_PASSWORD", Prefix)
	}
	return nil
}

// SSH holds the settings of the ssh console driver
type SSH struct {
	User     string `envconfig:"USER" default:"root"`
	Password string `envconfig:"PASSWORD"`
	KeyPath  string `envconfig:"KEY_PATH"`
	Port     int    `envconfig:"PORT" default:"22"`
	// ConsoleCommand prints the console frame on the target
	ConsoleCommand  string        `envconfig:"CONSOLE_COMMAND" default:"tail -n 200 /var/log/hsinstall/console.log"`
	Timeout         time.Duration `envconfig:"TIMEOUT" default:"1m"`
	TimeBeforeRetry time.Duration `envconfig:"TIME_BEFORE_RETRY" default:"10s"`
}

// Validate checks that one auth method is configured and the retry
// settings bound the address probe
func (s SSH) Validate() error {
	if s.Password == "" && s.KeyPath == "" {
		return fmt.Errorf("ssh needs %s_SSH_PASSWORD or %s_SSH_KEY_PATH", Prefix, Prefix)
	}
	if s.Port <= 0 {
		return fmt.Errorf("invalid ssh port %d", s.Port)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("%s_SSH_TIMEOUT must be positive, got %v", Prefix, s.Timeout)
	}
	if s.TimeBeforeRetry < 0 {
		return fmt.Errorf("%s_SSH_TIME_BEFORE_RETRY must not be negative, got %v", Prefix, s.TimeBeforeRetry)
	}
	return nil
}

// SMTP holds the settings used to mail run reports. Reports are mailed only
// when Host and To are set.
type SMTP struct {
	Host     string   `envconfig:"HOST"`
	Port     int      `envconfig:"PORT" default:"25"`
	User     string   `envconfig:"USER"`
	Password string   `envconfig:"PASSWORD"`
	From     string   `envconfig:"FROM" default:"hsauto@localhost"`
	To       []string `envconfig:"TO"`
}

// Enabled returns true if reports should be mailed
func (s SMTP) Enabled() bool {
	return s.Host != "" && len(s.To) > 0
}

// Config is the full harness configuration
type Config struct {
	VSphere  VSphere `envconfig:"VSPHERE"`
	SSH      SSH     `envconfig:"SSH"`
	SMTP     SMTP    `envconfig:"SMTP"`
	LogLevel string  `envconfig:"LOG_LEVEL" default:"info"`
	LogDir   string  `envconfig:"LOG_DIR"`
	// MetricsFile receives the run metrics in Prometheus text format
	MetricsFile string `envconfig:"METRICS_FILE"`
	// LockDir holds the per-target lock files. Empty means the system temp dir.
	LockDir string `envconfig:"LOCK_DIR"`
}

// Load reads the configuration from HSAUTO_* environment variables
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}
	return &c, nil
}
