package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full connector configuration.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr"`
	SpecsFile  string         `mapstructure:"specs_file"`
	AWS        AWSConfig      `mapstructure:"aws"`
	Probe      ProbeConfig    `mapstructure:"probe"`
	Exports    ExportsConfig  `mapstructure:"exports"`
	Schedule   ScheduleConfig `mapstructure:"schedule"`
	Events     EventsConfig   `mapstructure:"events"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	Server     ServerConfig   `mapstructure:"server"`
}

// AWSConfig selects the provider region. An empty region defers to the
// SDK's ambient resolution chain (env, shared config, instance metadata).
type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// ProbeConfig bounds the remote-command result polling performed during
// hostname and serial resolution. The defaults reproduce the connector's
// historical behavior: settle two seconds after dispatch, poll once.
type ProbeConfig struct {
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPolls     uint          `mapstructure:"max_polls"`
}

// ExportsConfig controls where CSV exports are written.
type ExportsConfig struct {
	Directory      string `mapstructure:"directory"`
	HardwarePrefix string `mapstructure:"hardware_prefix"`
	SoftwarePrefix string `mapstructure:"software_prefix"`
	MinFreeMB      uint64 `mapstructure:"min_free_mb"`
}

// ScheduleConfig enables periodic unattended exports.
type ScheduleConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Kind     string        `mapstructure:"kind"`
}

// EventsConfig enables NATS notifications after completed exports.
type EventsConfig struct {
	Enabled       bool       `mapstructure:"enabled"`
	URLs          []string   `mapstructure:"urls"`
	SubjectPrefix string     `mapstructure:"subject_prefix"`
	Auth          AuthConfig `mapstructure:"auth"`
	TLS           TLSConfig  `mapstructure:"tls"`
}

// AuthConfig holds NATS authentication settings.
type AuthConfig struct {
	Type     string `mapstructure:"type"`
	Token    string `mapstructure:"token"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// TLSConfig holds NATS TLS settings.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ServerConfig holds HTTP server timeouts. The write timeout must cover a
// full bulk export, which blocks on provider round-trips per instance.
type ServerConfig struct {
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Load reads the configuration file at path, applies defaults, and
// validates the result. An empty path runs on defaults alone; a non-empty
// path must name a readable file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("specs_file", "")

	v.SetDefault("aws.region", "")

	v.SetDefault("probe.settle_delay", 2*time.Second)
	v.SetDefault("probe.poll_interval", 2*time.Second)
	v.SetDefault("probe.max_polls", 1)

	v.SetDefault("exports.directory", ".")
	v.SetDefault("exports.hardware_prefix", "aws_hardware")
	v.SetDefault("exports.software_prefix", "aws_software")
	v.SetDefault("exports.min_free_mb", 0)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval", 6*time.Hour)
	v.SetDefault("schedule.kind", "all")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.urls", []string{"nats://localhost:4222"})
	v.SetDefault("events.subject_prefix", "inventory")
	v.SetDefault("events.auth.type", "none")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "aws_inventory.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
}

func validate(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	if err := validateProbe(&cfg.Probe); err != nil {
		return err
	}
	if err := validateExports(&cfg.Exports); err != nil {
		return err
	}
	if err := validateSchedule(&cfg.Schedule); err != nil {
		return err
	}
	if err := validateEvents(&cfg.Events); err != nil {
		return err
	}
	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	return nil
}

func validateProbe(p *ProbeConfig) error {
	if p.SettleDelay < 0 {
		return fmt.Errorf("probe settle_delay cannot be negative")
	}
	if p.SettleDelay > 5*time.Minute {
		return fmt.Errorf("probe settle_delay must not exceed 5 minutes")
	}
	if p.PollInterval <= 0 {
		return fmt.Errorf("probe poll_interval must be positive")
	}
	if p.MaxPolls < 1 {
		return fmt.Errorf("probe max_polls must be at least 1")
	}
	if p.MaxPolls > 60 {
		return fmt.Errorf("probe max_polls must not exceed 60")
	}
	return nil
}

func validateExports(e *ExportsConfig) error {
	if e.Directory == "" {
		return fmt.Errorf("exports directory is required")
	}
	for _, prefix := range []string{e.HardwarePrefix, e.SoftwarePrefix} {
		if prefix == "" {
			return fmt.Errorf("export file prefixes are required")
		}
		if strings.ContainsAny(prefix, `/\`) {
			return fmt.Errorf("export file prefix %q must not contain path separators", prefix)
		}
	}
	return nil
}

func validateSchedule(s *ScheduleConfig) error {
	if !s.Enabled {
		return nil
	}
	if s.Interval < time.Minute {
		return fmt.Errorf("schedule interval must be at least 1 minute")
	}
	switch s.Kind {
	case "hardware", "software", "all":
	default:
		return fmt.Errorf("invalid schedule kind %q (must be hardware, software, or all)", s.Kind)
	}
	return nil
}

func validateEvents(e *EventsConfig) error {
	if !e.Enabled {
		return nil
	}
	if len(e.URLs) == 0 {
		return fmt.Errorf("events urls are required when events are enabled")
	}
	if e.SubjectPrefix == "" {
		return fmt.Errorf("events subject_prefix is required when events are enabled")
	}
	if err := validateSubjectPrefix(e.SubjectPrefix); err != nil {
		return err
	}
	if err := validateAuth(&e.Auth); err != nil {
		return err
	}
	return validateTLS(&e.TLS)
}

// validateSubjectPrefix checks that the prefix forms valid NATS subject
// tokens: dot-separated, each token limited to alphanumerics, dashes, and
// underscores.
func validateSubjectPrefix(prefix string) error {
	if len(prefix) > 50 {
		return fmt.Errorf("events subject_prefix must not exceed 50 characters")
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("events subject_prefix cannot start or end with a dot")
	}
	if strings.Contains(prefix, "..") {
		return fmt.Errorf("events subject_prefix: consecutive dots not allowed")
	}
	for _, token := range strings.Split(prefix, ".") {
		for _, r := range token {
			valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || r == '-' || r == '_'
			if !valid {
				return fmt.Errorf("events subject_prefix token %q contains invalid characters", token)
			}
		}
	}
	return nil
}

func validateAuth(a *AuthConfig) error {
	switch a.Type {
	case "none", "":
	case "token":
		if a.Token == "" {
			return fmt.Errorf("events auth: token is required for token auth")
		}
	case "userpass":
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("events auth: username and password are required for userpass auth")
		}
	default:
		return fmt.Errorf("events auth: invalid auth type %q", a.Type)
	}
	return nil
}

func validateTLS(t *TLSConfig) error {
	if !t.Enabled {
		return nil
	}
	if t.CertFile != "" && t.KeyFile == "" {
		return fmt.Errorf("events tls: key_file is required when cert_file is set")
	}
	if t.KeyFile != "" && t.CertFile == "" {
		return fmt.Errorf("events tls: cert_file is required when key_file is set")
	}
	if t.CertFile != "" {
		if _, err := os.Stat(t.CertFile); err != nil {
			return fmt.Errorf("events tls: certificate file not found: %s", t.CertFile)
		}
	}
	if t.KeyFile != "" {
		if _, err := os.Stat(t.KeyFile); err != nil {
			return fmt.Errorf("events tls: key file not found: %s", t.KeyFile)
		}
	}
	if t.CAFile != "" {
		if _, err := os.Stat(t.CAFile); err != nil {
			return fmt.Errorf("events tls: CA file not found: %s", t.CAFile)
		}
	}
	return nil
}

func validateLogging(l *LoggingConfig) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", l.Level)
	}
	if l.File == "" {
		return fmt.Errorf("logging file is required")
	}
	if l.MaxSizeMB < 1 {
		return fmt.Errorf("logging max_size_mb must be at least 1")
	}
	if l.MaxBackups < 0 {
		return fmt.Errorf("logging max_backups cannot be negative")
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.ReadTimeout <= 0 || s.WriteTimeout <= 0 || s.IdleTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	return nil
}
