package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/migadu/sera/helpers"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Output string `toml:"output"` // "stderr", "stdout", "syslog", or a file path
	Format string `toml:"format"` // "json" or "console"
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
}

// DatabaseEndpointConfig holds configuration for a single database endpoint.
type DatabaseEndpointConfig struct {
	Host            string `toml:"host"`
	Port            string `toml:"port"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Name            string `toml:"name"`
	TLSMode         bool   `toml:"tls"`
	MaxConns        int    `toml:"max_conns"`
	MinConns        int    `toml:"min_conns"`
	MaxConnLifetime string `toml:"max_conn_lifetime"`
	MaxConnIdleTime string `toml:"max_conn_idle_time"`
}

// GetMaxConnLifetime parses the max connection lifetime duration.
func (e *DatabaseEndpointConfig) GetMaxConnLifetime() (time.Duration, error) {
	if e.MaxConnLifetime == "" {
		return time.Hour, nil
	}
	return helpers.ParseDuration(e.MaxConnLifetime)
}

// GetMaxConnIdleTime parses the max connection idle time duration.
func (e *DatabaseEndpointConfig) GetMaxConnIdleTime() (time.Duration, error) {
	if e.MaxConnIdleTime == "" {
		return 30 * time.Minute, nil
	}
	return helpers.ParseDuration(e.MaxConnIdleTime)
}

// DatabaseConfig holds database configuration with optional read/write split.
type DatabaseConfig struct {
	LogQueries bool                    `toml:"log_queries"`
	Write      *DatabaseEndpointConfig `toml:"write"`
	Read       *DatabaseEndpointConfig `toml:"read"` // optional read replica
}

// EngineConfig drives the sweep orchestrator and the delay scheduler.
type EngineConfig struct {
	SweepInterval      string `toml:"sweep_interval"`      // tick interval (default "2m")
	CandidateBatchSize int    `toml:"candidate_batch_size"` // max messages fetched per rule per tick
	ProcessingTimeout  string `toml:"processing_timeout"`  // staleness timeout for orphaned Processing rows
	LogRetention       string `toml:"log_retention"`       // purge window for reply logs
	PurgeInterval      string `toml:"purge_interval"`      // how often the purge pass runs
}

// GetSweepInterval parses the sweep tick interval.
func (e *EngineConfig) GetSweepInterval() (time.Duration, error) {
	if e.SweepInterval == "" {
		return 2 * time.Minute, nil
	}
	return helpers.ParseDuration(e.SweepInterval)
}

// GetProcessingTimeout parses the staleness timeout after which an orphaned
// Processing ledger row is reaped to Failed.
func (e *EngineConfig) GetProcessingTimeout() (time.Duration, error) {
	if e.ProcessingTimeout == "" {
		return 15 * time.Minute, nil
	}
	return helpers.ParseDuration(e.ProcessingTimeout)
}

// GetLogRetention parses the reply log retention window.
func (e *EngineConfig) GetLogRetention() (time.Duration, error) {
	if e.LogRetention == "" {
		return 90 * 24 * time.Hour, nil
	}
	return helpers.ParseDuration(e.LogRetention)
}

// GetPurgeInterval parses the purge pass interval.
func (e *EngineConfig) GetPurgeInterval() (time.Duration, error) {
	if e.PurgeInterval == "" {
		return 24 * time.Hour, nil
	}
	return helpers.ParseDuration(e.PurgeInterval)
}

// GetCandidateBatchSize returns the per-rule candidate fetch limit.
func (e *EngineConfig) GetCandidateBatchSize() int {
	if e.CandidateBatchSize <= 0 {
		return 200
	}
	return e.CandidateBatchSize
}

// MailerConfig configures the outbound SMTP relay.
type MailerConfig struct {
	Host        string `toml:"host"`     // relay host:port
	Username    string `toml:"username"` // SASL PLAIN credentials (optional)
	Password    string `toml:"password"`
	UseTLS      bool   `toml:"tls"`          // direct TLS connection
	UseStartTLS bool   `toml:"starttls"`     // STARTTLS upgrade
	TLSVerify   *bool  `toml:"tls_verify"`   // verify relay certificate (default true)
	Hostname    string `toml:"hostname"`     // local hostname for Message-ID generation
	SendTimeout string `toml:"send_timeout"` // per-send dial/submit timeout
}

// GetTLSVerify reports whether relay certificates are verified.
func (m *MailerConfig) GetTLSVerify() bool {
	if m.TLSVerify == nil {
		return true
	}
	return *m.TLSVerify
}

// GetSendTimeout parses the per-send timeout.
func (m *MailerConfig) GetSendTimeout() (time.Duration, error) {
	if m.SendTimeout == "" {
		return 30 * time.Second, nil
	}
	return helpers.ParseDuration(m.SendTimeout)
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"` // default ":9090"
	Path    string `toml:"path"` // default "/metrics"
}

// GetAddr returns the metrics listen address.
func (m *MetricsConfig) GetAddr() string {
	if m.Addr == "" {
		return ":9090"
	}
	return m.Addr
}

// GetPath returns the metrics HTTP path.
func (m *MetricsConfig) GetPath() string {
	if m.Path == "" {
		return "/metrics"
	}
	return m.Path
}

// Config holds all configuration for the application.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Database DatabaseConfig `toml:"database"`
	Engine   EngineConfig   `toml:"engine"`
	Mailer   MailerConfig   `toml:"mailer"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// NewDefaultConfig returns a configuration with application defaults applied.
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",
			Format: "console",
			Level:  "info",
		},
		Database: DatabaseConfig{
			Write: &DatabaseEndpointConfig{
				Host: "localhost",
				Port: "5432",
				User: "postgres",
				Name: "sera_db",
			},
		},
	}
}

// Load reads a TOML configuration file over the defaults. A missing file is
// not an error; defaults plus flags then apply.
func Load(path string, cfg *Config) (found bool, err error) {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return true, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Database.Write == nil {
		return fmt.Errorf("database: write endpoint is required")
	}
	if c.Database.Write.Host == "" {
		return fmt.Errorf("database: write host is required")
	}
	if c.Database.Write.Name == "" {
		return fmt.Errorf("database: write database name is required")
	}
	for name, parse := range map[string]func() (time.Duration, error){
		"engine.sweep_interval":     c.Engine.GetSweepInterval,
		"engine.processing_timeout": c.Engine.GetProcessingTimeout,
		"engine.log_retention":      c.Engine.GetLogRetention,
		"engine.purge_interval":     c.Engine.GetPurgeInterval,
		"mailer.send_timeout":       c.Mailer.GetSendTimeout,
	} {
		if _, err := parse(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
