// Package config loads service configuration from defaults, an optional YAML
// file and ESCALATOR_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore: ESCALATOR_SMTP__HOST.
const EnvPrefix = "ESCALATOR_"

// ConfigFileEnv names the variable holding the config file path.
const ConfigFileEnv = "CONFIG_FILE"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the root service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	CORS       CORSConfig       `koanf:"cors"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	SMTP       SMTPConfig       `koanf:"smtp"`
	Escalation EscalationConfig `koanf:"escalation"`
}

// ServerConfig configures the HTTP API and metrics listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
}

// CORSConfig configures cross-origin requests.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// DatabaseConfig configures the incident store.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SMTPConfig configures the mailer.
type SMTPConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Host        string  `koanf:"host"`
	Port        int     `koanf:"port"`
	User        string  `koanf:"user"`
	Password    string  `koanf:"password"`
	FromAddress string  `koanf:"from_address"`
	TLS         bool    `koanf:"tls"`
	RateLimit   float64 `koanf:"rate_limit"`
}

// EscalationConfig configures the overdue scheduler and email composer.
type EscalationConfig struct {
	NumWorkers   int               `koanf:"num_workers"`
	FireTimeout  time.Duration     `koanf:"fire_timeout"`
	Subject      string            `koanf:"subject"`
	TemplateName string            `koanf:"template_name"`
	Templates    map[string]string `koanf:"templates"`
	TemplatesDir string            `koanf:"templates_dir"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			URL:             "sqlite:///./incidents.db",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		SMTP: SMTPConfig{
			Enabled: false,
		},
		Escalation: EscalationConfig{
			NumWorkers:  5,
			FireTimeout: time.Minute,
			Templates:   map[string]string{},
		},
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted; a missing path means defaults and environment only.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.loadTemplates(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps ESCALATOR_SMTP__FROM_ADDRESS to smtp.from_address.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// loadTemplates reads every *.tmpl file in TemplatesDir into Templates keyed
// by file name without extension. Inline templates win over files.
func (c *Config) loadTemplates() error {
	if c.Escalation.TemplatesDir == "" {
		return nil
	}

	paths, err := filepath.Glob(filepath.Join(c.Escalation.TemplatesDir, "*.tmpl"))
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}

	if c.Escalation.Templates == nil {
		c.Escalation.Templates = make(map[string]string, len(paths))
	}

	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if _, ok := c.Escalation.Templates[name]; ok {
			continue
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}
		c.Escalation.Templates[name] = string(content)
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Database.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("database.connect_timeout must be positive"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp.host is required when smtp is enabled"))
		}
		if c.SMTP.FromAddress == "" {
			errs = append(errs, errors.New("smtp.from_address is required when smtp is enabled"))
		}
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp.port out of range: %d", c.SMTP.Port))
	}
	if c.SMTP.RateLimit < 0 {
		errs = append(errs, errors.New("smtp.rate_limit must not be negative"))
	}

	if c.Escalation.NumWorkers < 0 {
		errs = append(errs, errors.New("escalation.num_workers must not be negative"))
	}
	if c.Escalation.FireTimeout < 0 {
		errs = append(errs, errors.New("escalation.fire_timeout must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
