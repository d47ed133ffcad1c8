package server

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that parses from strings like "90s" or "5m"
// in both YAML and environment values.
type Duration time.Duration

// Std converts to a plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds server configuration. Values resolve in layers: defaults,
// then the optional YAML file, then ROSTER_* environment variables.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"ROSTER_LISTEN_ADDR"`   // TCP/TLS bind address
	MetricsAddr string `yaml:"metrics_addr" env:"ROSTER_METRICS_ADDR"` // HTTP bind for /metrics (empty = disabled)
	DBPath      string `yaml:"db_path" env:"ROSTER_DB_PATH"`           // SQLite database path
	CertFile    string `yaml:"cert_file" env:"ROSTER_CERT_FILE"`       // TLS certificate file path
	KeyFile     string `yaml:"key_file" env:"ROSTER_KEY_FILE"`         // TLS private key file path
	DataDir     string `yaml:"data_dir" env:"ROSTER_DATA_DIR"`         // directory for generated certs and data

	// IdleTimeout is the inactivity window after which a session is
	// force-logged-out. Zero or negative disables eviction.
	IdleTimeout Duration `yaml:"idle_timeout" env:"ROSTER_IDLE_TIMEOUT"`

	// Login throttle, applied per remote host.
	LoginBurst int     `yaml:"login_burst" env:"ROSTER_LOGIN_BURST"` // burst size
	LoginRate  float64 `yaml:"login_rate" env:"ROSTER_LOGIN_RATE"`   // sustained attempts/sec
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  ":9400",
		MetricsAddr: ":9401",
		DBPath:      "roster.db",
		DataDir:     ".",
		IdleTimeout: Duration(5 * time.Minute),
		LoginBurst:  5,
		LoginRate:   1.0,
	}
}

// LoadConfig resolves configuration from defaults, the YAML file at path
// (skipped when path is empty), and environment overrides, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ListenAddr == "" {
		return cfg, fmt.Errorf("listen_addr must not be empty")
	}
	if cfg.LoginBurst < 1 {
		cfg.LoginBurst = 1
	}
	return cfg, nil
}
