package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// validConfig returns a configuration that passes validation; tests mutate
// single fields from this baseline.
func validConfig() *Config {
	return &Config{
		ListenAddr: ":8000",
		AWS:        AWSConfig{Region: "us-east-1"},
		Probe: ProbeConfig{
			SettleDelay:  2 * time.Second,
			PollInterval: 2 * time.Second,
			MaxPolls:     1,
		},
		Exports: ExportsConfig{
			Directory:      ".",
			HardwarePrefix: "aws_hardware",
			SoftwarePrefix: "aws_software",
		},
		Schedule: ScheduleConfig{
			Enabled:  false,
			Interval: 6 * time.Hour,
			Kind:     "all",
		},
		Events: EventsConfig{
			Enabled:       false,
			URLs:          []string{"nats://localhost:4222"},
			SubjectPrefix: "inventory",
			Auth:          AuthConfig{Type: "none"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "test.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Server: ServerConfig{
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// TestLoadDefaults tests that loading with no config file produces the
// documented defaults
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":8000")
	}
	if cfg.Probe.SettleDelay != 2*time.Second {
		t.Errorf("Probe.SettleDelay = %v, want 2s", cfg.Probe.SettleDelay)
	}
	if cfg.Probe.MaxPolls != 1 {
		t.Errorf("Probe.MaxPolls = %d, want 1", cfg.Probe.MaxPolls)
	}
	if cfg.Exports.Directory != "." {
		t.Errorf("Exports.Directory = %q, want %q", cfg.Exports.Directory, ".")
	}
	if cfg.Exports.HardwarePrefix != "aws_hardware" {
		t.Errorf("Exports.HardwarePrefix = %q, want %q", cfg.Exports.HardwarePrefix, "aws_hardware")
	}
	if cfg.Exports.SoftwarePrefix != "aws_software" {
		t.Errorf("Exports.SoftwarePrefix = %q, want %q", cfg.Exports.SoftwarePrefix, "aws_software")
	}
	if cfg.Logging.File != "aws_inventory.log" {
		t.Errorf("Logging.File = %q, want %q", cfg.Logging.File, "aws_inventory.log")
	}
	if cfg.Schedule.Enabled {
		t.Error("Schedule.Enabled = true, want false by default")
	}
	if cfg.Events.Enabled {
		t.Error("Events.Enabled = true, want false by default")
	}
}

// TestLoadFile tests loading and overriding from a YAML file
func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	content := []byte(`
listen_addr: ":9100"
aws:
  region: eu-west-1
probe:
  settle_delay: 1s
  max_polls: 5
exports:
  directory: ` + tmpDir + `
logging:
  level: debug
  file: connector.log
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ListenAddr != ":9100" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9100")
	}
	if cfg.AWS.Region != "eu-west-1" {
		t.Errorf("AWS.Region = %q, want %q", cfg.AWS.Region, "eu-west-1")
	}
	if cfg.Probe.SettleDelay != time.Second {
		t.Errorf("Probe.SettleDelay = %v, want 1s", cfg.Probe.SettleDelay)
	}
	if cfg.Probe.MaxPolls != 5 {
		t.Errorf("Probe.MaxPolls = %d, want 5", cfg.Probe.MaxPolls)
	}
	if cfg.Exports.Directory != tmpDir {
		t.Errorf("Exports.Directory = %q, want %q", cfg.Exports.Directory, tmpDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}

	// Untouched keys keep their defaults.
	if cfg.Probe.PollInterval != 2*time.Second {
		t.Errorf("Probe.PollInterval = %v, want default 2s", cfg.Probe.PollInterval)
	}
}

// TestLoadMissingFile tests that a named but absent file is an error
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() with missing file: expected error, got nil")
	}
}

// TestValidateProbe tests probe policy validation
func TestValidateProbe(t *testing.T) {
	tests := []struct {
		name    string
		probe   ProbeConfig
		wantErr bool
		errText string
	}{
		{
			name:    "historical defaults",
			probe:   ProbeConfig{SettleDelay: 2 * time.Second, PollInterval: 2 * time.Second, MaxPolls: 1},
			wantErr: false,
		},
		{
			name:    "bounded loop",
			probe:   ProbeConfig{SettleDelay: time.Second, PollInterval: 500 * time.Millisecond, MaxPolls: 10},
			wantErr: false,
		},
		{
			name:    "zero settle delay",
			probe:   ProbeConfig{SettleDelay: 0, PollInterval: time.Second, MaxPolls: 1},
			wantErr: false,
		},
		{
			name:    "negative settle delay",
			probe:   ProbeConfig{SettleDelay: -time.Second, PollInterval: time.Second, MaxPolls: 1},
			wantErr: true,
			errText: "cannot be negative",
		},
		{
			name:    "settle delay too long",
			probe:   ProbeConfig{SettleDelay: 10 * time.Minute, PollInterval: time.Second, MaxPolls: 1},
			wantErr: true,
			errText: "must not exceed 5 minutes",
		},
		{
			name:    "zero poll interval",
			probe:   ProbeConfig{SettleDelay: time.Second, PollInterval: 0, MaxPolls: 1},
			wantErr: true,
			errText: "must be positive",
		},
		{
			name:    "zero max polls",
			probe:   ProbeConfig{SettleDelay: time.Second, PollInterval: time.Second, MaxPolls: 0},
			wantErr: true,
			errText: "at least 1",
		},
		{
			name:    "max polls too large",
			probe:   ProbeConfig{SettleDelay: time.Second, PollInterval: time.Second, MaxPolls: 100},
			wantErr: true,
			errText: "must not exceed 60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Probe = tt.probe

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateExports tests export path validation
func TestValidateExports(t *testing.T) {
	tests := []struct {
		name    string
		exports ExportsConfig
		wantErr bool
		errText string
	}{
		{
			name:    "defaults",
			exports: ExportsConfig{Directory: ".", HardwarePrefix: "aws_hardware", SoftwarePrefix: "aws_software"},
			wantErr: false,
		},
		{
			name:    "absolute directory",
			exports: ExportsConfig{Directory: "/var/lib/aws-inventory", HardwarePrefix: "hw", SoftwarePrefix: "sw"},
			wantErr: false,
		},
		{
			name:    "empty directory",
			exports: ExportsConfig{Directory: "", HardwarePrefix: "hw", SoftwarePrefix: "sw"},
			wantErr: true,
			errText: "directory is required",
		},
		{
			name:    "empty prefix",
			exports: ExportsConfig{Directory: ".", HardwarePrefix: "", SoftwarePrefix: "sw"},
			wantErr: true,
			errText: "prefixes are required",
		},
		{
			name:    "prefix with path separator",
			exports: ExportsConfig{Directory: ".", HardwarePrefix: "../hw", SoftwarePrefix: "sw"},
			wantErr: true,
			errText: "must not contain path separators",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Exports = tt.exports

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateSchedule tests schedule validation
func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule ScheduleConfig
		wantErr  bool
		errText  string
	}{
		{
			name:     "disabled ignores other fields",
			schedule: ScheduleConfig{Enabled: false, Interval: 0, Kind: "bogus"},
			wantErr:  false,
		},
		{
			name:     "enabled hardware",
			schedule: ScheduleConfig{Enabled: true, Interval: time.Hour, Kind: "hardware"},
			wantErr:  false,
		},
		{
			name:     "enabled software",
			schedule: ScheduleConfig{Enabled: true, Interval: time.Hour, Kind: "software"},
			wantErr:  false,
		},
		{
			name:     "enabled all",
			schedule: ScheduleConfig{Enabled: true, Interval: time.Minute, Kind: "all"},
			wantErr:  false,
		},
		{
			name:     "interval too short",
			schedule: ScheduleConfig{Enabled: true, Interval: 30 * time.Second, Kind: "all"},
			wantErr:  true,
			errText:  "at least 1 minute",
		},
		{
			name:     "invalid kind",
			schedule: ScheduleConfig{Enabled: true, Interval: time.Hour, Kind: "everything"},
			wantErr:  true,
			errText:  "invalid schedule kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Schedule = tt.schedule

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateEventsAuth tests NATS authentication validation
func TestValidateEventsAuth(t *testing.T) {
	tests := []struct {
		name    string
		auth    AuthConfig
		wantErr bool
		errText string
	}{
		// Valid configurations
		{
			name:    "none auth",
			auth:    AuthConfig{Type: "none"},
			wantErr: false,
		},
		{
			name:    "token auth",
			auth:    AuthConfig{Type: "token", Token: "secret-token"},
			wantErr: false,
		},
		{
			name:    "userpass auth",
			auth:    AuthConfig{Type: "userpass", Username: "user", Password: "pass"},
			wantErr: false,
		},

		// Invalid configurations
		{
			name:    "invalid type",
			auth:    AuthConfig{Type: "invalid"},
			wantErr: true,
			errText: "invalid auth type",
		},
		{
			name:    "token missing",
			auth:    AuthConfig{Type: "token"},
			wantErr: true,
			errText: "token is required",
		},
		{
			name:    "userpass missing username",
			auth:    AuthConfig{Type: "userpass", Password: "pass"},
			wantErr: true,
			errText: "username and password are required",
		},
		{
			name:    "userpass missing password",
			auth:    AuthConfig{Type: "userpass", Username: "user"},
			wantErr: true,
			errText: "username and password are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Events.Enabled = true
			cfg.Events.Auth = tt.auth

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateSubjectPrefix tests subject prefix validation
func TestValidateSubjectPrefix(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		wantErr bool
		errText string
	}{
		// Valid prefixes
		{
			name:    "simple prefix",
			prefix:  "inventory",
			wantErr: false,
		},
		{
			name:    "with dash",
			prefix:  "aws-inventory",
			wantErr: false,
		},
		{
			name:    "with underscore",
			prefix:  "aws_inventory",
			wantErr: false,
		},
		{
			name:    "hierarchical two levels",
			prefix:  "production.inventory",
			wantErr: false,
		},
		{
			name:    "hierarchical three levels",
			prefix:  "us-east-1.production.inventory",
			wantErr: false,
		},
		{
			name:    "with numbers",
			prefix:  "region1.env2.inventory3",
			wantErr: false,
		},

		// Invalid prefixes
		{
			name:    "leading dot",
			prefix:  ".inventory",
			wantErr: true,
			errText: "cannot start or end with a dot",
		},
		{
			name:    "trailing dot",
			prefix:  "inventory.",
			wantErr: true,
			errText: "cannot start or end with a dot",
		},
		{
			name:    "consecutive dots",
			prefix:  "region..inventory",
			wantErr: true,
			errText: "consecutive dots not allowed",
		},
		{
			name:    "special characters in token",
			prefix:  "region@dev.inventory",
			wantErr: true,
			errText: "contains invalid characters",
		},
		{
			name:    "spaces",
			prefix:  "my region.inventory",
			wantErr: true,
			errText: "contains invalid characters",
		},
		{
			name:    "wildcard",
			prefix:  "region.*.inventory",
			wantErr: true,
			errText: "contains invalid characters",
		},
		{
			name:    "too long",
			prefix:  "this-is-a-very-long-prefix-that-exceeds-the-maximum-allowed-length",
			wantErr: true,
			errText: "must not exceed 50 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSubjectPrefix(tt.prefix)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSubjectPrefix() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validateSubjectPrefix() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateEventsTLS tests TLS configuration validation
func TestValidateEventsTLS(t *testing.T) {
	// Create temporary test files
	tmpDir := t.TempDir()
	certFile := filepath.Join(tmpDir, "cert.pem")
	keyFile := filepath.Join(tmpDir, "key.pem")
	caFile := filepath.Join(tmpDir, "ca.pem")

	os.WriteFile(certFile, []byte("cert"), 0644)
	os.WriteFile(keyFile, []byte("key"), 0644)
	os.WriteFile(caFile, []byte("ca"), 0644)

	tests := []struct {
		name    string
		tls     TLSConfig
		wantErr bool
		errText string
	}{
		// Valid configurations
		{
			name:    "TLS disabled",
			tls:     TLSConfig{Enabled: false},
			wantErr: false,
		},
		{
			name:    "TLS enabled with no files",
			tls:     TLSConfig{Enabled: true},
			wantErr: false,
		},
		{
			name:    "TLS with CA only",
			tls:     TLSConfig{Enabled: true, CAFile: caFile},
			wantErr: false,
		},
		{
			name:    "TLS with client cert and key",
			tls:     TLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
			wantErr: false,
		},

		// Invalid configurations
		{
			name:    "cert without key",
			tls:     TLSConfig{Enabled: true, CertFile: certFile},
			wantErr: true,
			errText: "key_file is required",
		},
		{
			name:    "key without cert",
			tls:     TLSConfig{Enabled: true, KeyFile: keyFile},
			wantErr: true,
			errText: "cert_file is required",
		},
		{
			name:    "cert file not found",
			tls:     TLSConfig{Enabled: true, CertFile: "/nonexistent/cert.pem", KeyFile: keyFile},
			wantErr: true,
			errText: "certificate file not found",
		},
		{
			name:    "CA file not found",
			tls:     TLSConfig{Enabled: true, CAFile: "/nonexistent/ca.pem"},
			wantErr: true,
			errText: "CA file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Events.Enabled = true
			cfg.Events.TLS = tt.tls

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateLogging tests logging validation
func TestValidateLogging(t *testing.T) {
	tests := []struct {
		name    string
		logging LoggingConfig
		wantErr bool
		errText string
	}{
		{
			name:    "info level",
			logging: LoggingConfig{Level: "info", File: "test.log", MaxSizeMB: 100, MaxBackups: 3},
			wantErr: false,
		},
		{
			name:    "debug level",
			logging: LoggingConfig{Level: "debug", File: "test.log", MaxSizeMB: 100, MaxBackups: 3},
			wantErr: false,
		},
		{
			name:    "invalid level",
			logging: LoggingConfig{Level: "trace", File: "test.log", MaxSizeMB: 100, MaxBackups: 3},
			wantErr: true,
			errText: "invalid log level",
		},
		{
			name:    "empty file",
			logging: LoggingConfig{Level: "info", File: "", MaxSizeMB: 100, MaxBackups: 3},
			wantErr: true,
			errText: "logging file is required",
		},
		{
			name:    "zero max size",
			logging: LoggingConfig{Level: "info", File: "test.log", MaxSizeMB: 0, MaxBackups: 3},
			wantErr: true,
			errText: "at least 1",
		},
		{
			name:    "negative backups",
			logging: LoggingConfig{Level: "info", File: "test.log", MaxSizeMB: 100, MaxBackups: -1},
			wantErr: true,
			errText: "cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logging = tt.logging

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if indexOf(err.Error(), tt.errText) < 0 {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// Helper function
func indexOf(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
