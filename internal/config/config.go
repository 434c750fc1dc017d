package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/thanos-io/thanos/pkg/tracing/otlp"
	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Upstream      UpstreamConfig  `yaml:"upstream,omitempty"`
	Server        ServerConfig    `yaml:"server,omitempty"`
	Database      DatabaseConfig  `yaml:"database,omitempty"`
	Insert        InsertConfig    `yaml:"insert,omitempty"`
	Timeline      TimelineConfig  `yaml:"timeline,omitempty"`
	Retention     RetentionConfig `yaml:"retention,omitempty"`
	Tracing       *otlp.Config    `yaml:"tracing,omitempty"`
	CORS          CORSConfig      `yaml:"cors,omitempty"`
	MemlimitRatio float64         `yaml:"memlimit_ratio,omitempty"`
}

type DatabaseConfig struct {
	Provider   string           `yaml:"provider,omitempty"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql,omitempty"`
	SQLite     SQLiteConfig     `yaml:"sqlite,omitempty"`
}

type UpstreamConfig struct {
	URL string `yaml:"url,omitempty"`
}

type ServerConfig struct {
	InsecureListenAddress string `yaml:"insecure_listen_address,omitempty"`
}

type PostgreSQLConfig struct {
	Addr            string        `yaml:"addr,omitempty"`
	Database        string        `yaml:"database,omitempty"`
	DialTimeout     time.Duration `yaml:"dial_timeout,omitempty"`
	Password        string        `yaml:"password,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	SSLMode         string        `yaml:"sslmode,omitempty"`
	User            string        `yaml:"user,omitempty"`
	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
}

type SQLiteConfig struct {
	DatabasePath string `yaml:"database_path,omitempty"`
}

type InsertConfig struct {
	BatchSize     int           `yaml:"batch_size,omitempty"`
	BufferSize    int           `yaml:"buffer_size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
	GracePeriod   time.Duration `yaml:"grace_period,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

// TimelineConfig controls the axis computed for the network activity panel.
type TimelineConfig struct {
	TargetTickCount int           `yaml:"target_tick_count,omitempty"`
	DefaultWindow   time.Duration `yaml:"default_window,omitempty"`
}

// MaxTargetTickCount bounds the work a single axis computation may do.
const MaxTargetTickCount = 20

// TickCount returns the configured target tick count clamped to a sane range.
func (c *Config) TickCount() int {
	n := c.Timeline.TargetTickCount
	if n < 1 {
		n = 5
	}
	if n > MaxTargetTickCount {
		n = MaxTargetTickCount
	}
	return n
}

type RetentionConfig struct {
	Enabled      bool          `yaml:"enabled,omitempty"`
	Interval     time.Duration `yaml:"interval,omitempty"`
	RunTimeout   time.Duration `yaml:"run_timeout,omitempty"`
	EventsMaxAge time.Duration `yaml:"events_max_age,omitempty"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods   []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders   []string `yaml:"allowed_headers,omitempty"`
	AllowCredentials bool     `yaml:"allow_credentials,omitempty"`
	MaxAge           int      `yaml:"max_age,omitempty"`
}

var DefaultConfig = &Config{
	CORS: CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	},
	Timeline: TimelineConfig{
		TargetTickCount: 5,
		DefaultWindow:   15 * time.Minute,
	},
	Retention: RetentionConfig{
		Interval:     time.Hour,
		RunTimeout:   time.Minute,
		EventsMaxAge: 7 * 24 * time.Hour,
	},
	MemlimitRatio: 0.9,
}

func RegisterTimelineFlags(fs *flag.FlagSet) {
	fs.IntVar(&DefaultConfig.Timeline.TargetTickCount, "timeline-tick-count", DefaultConfig.Timeline.TargetTickCount, "Target number of tick divisions on the timeline axis.")
	fs.DurationVar(&DefaultConfig.Timeline.DefaultWindow, "timeline-default-window", DefaultConfig.Timeline.DefaultWindow, "Default lookback window for the visible request set.")
}

func RegisterRetentionFlags(fs *flag.FlagSet) {
	fs.BoolVar(&DefaultConfig.Retention.Enabled, "retention-enabled", DefaultConfig.Retention.Enabled, "Enable the retention worker.")
	fs.DurationVar(&DefaultConfig.Retention.Interval, "retention-interval", DefaultConfig.Retention.Interval, "Interval between retention runs.")
	fs.DurationVar(&DefaultConfig.Retention.RunTimeout, "retention-run-timeout", DefaultConfig.Retention.RunTimeout, "Timeout for a single retention run.")
	fs.DurationVar(&DefaultConfig.Retention.EventsMaxAge, "retention-events-max-age", DefaultConfig.Retention.EventsMaxAge, "Maximum age of recorded request events before deletion.")
}

func RegisterMemoryLimitFlags(fs *flag.FlagSet) {
	fs.Float64Var(&DefaultConfig.MemlimitRatio, "memlimit-ratio", DefaultConfig.MemlimitRatio, "Fraction of the detected memory limit to set as GOMEMLIMIT.")
}

// ApplyMemoryLimit sets GOMEMLIMIT from the cgroup or system memory limit.
func ApplyMemoryLimit() error {
	_, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(DefaultConfig.MemlimitRatio))
	return err
}

func LoadConfig(path string) error {
	f, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(f, DefaultConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

func (c *Config) IsTracingEnabled() bool {
	if c == nil {
		return false
	}
	return c.Tracing != nil
}

func (c *Config) GetTracingServiceName() string {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		if c == nil || c.Tracing == nil {
			return ""
		}
		return c.Tracing.ServiceName
	}
	return serviceName
}
