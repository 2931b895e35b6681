package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Dialer    DialerConfig    `mapstructure:"dialer"`
	Report    ReportConfig    `mapstructure:"report"`
	Agent     AgentConfig     `mapstructure:"agent"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	ClientID     string   `mapstructure:"client_id"`
	OutcomeTopic string   `mapstructure:"outcome_topic"`
	ReportTopic  string   `mapstructure:"report_topic"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DialerConfig tunes the dialing strategies.
type DialerConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	WrapUpDelay        time.Duration `mapstructure:"wrap_up_delay"`
	PowerPause         time.Duration `mapstructure:"power_pause"`
	StatusTimeout      time.Duration `mapstructure:"status_timeout"`
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	TargetUtilization  float64       `mapstructure:"target_utilization"`
	AbandonRateTarget  float64       `mapstructure:"abandon_rate_target"`
	SlotTTL            time.Duration `mapstructure:"slot_ttl"`
	VoicemailDrop      bool          `mapstructure:"voicemail_drop"`
	VoicemailRecording string        `mapstructure:"voicemail_recording"`
	CallerID           string        `mapstructure:"caller_id"`
}

type ReportConfig struct {
	CostPerMinute float64 `mapstructure:"cost_per_minute"`
}

type AgentConfig struct {
	// Port of the agent console websocket gateway. The gateway runs on its
	// own net/http listener; the fasthttp API server cannot host the
	// websocket upgrade.
	Port            int           `mapstructure:"port"`
	DecisionTimeout time.Duration `mapstructure:"decision_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("POWERDIALER")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	cfg.Dialer = cfg.Dialer.withDefaults()
	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func (d DialerConfig) withDefaults() DialerConfig {
	if d.MaxRetries <= 0 {
		d.MaxRetries = 2
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = 15 * time.Minute
	}
	if d.WrapUpDelay <= 0 {
		d.WrapUpDelay = 5 * time.Second
	}
	if d.PowerPause <= 0 {
		d.PowerPause = time.Second
	}
	if d.StatusTimeout <= 0 {
		d.StatusTimeout = 30 * time.Second
	}
	if d.StatusPollInterval <= 0 {
		d.StatusPollInterval = 500 * time.Millisecond
	}
	if d.TargetUtilization <= 0 || d.TargetUtilization > 1 {
		d.TargetUtilization = 0.85
	}
	if d.AbandonRateTarget <= 0 || d.AbandonRateTarget > 1 {
		d.AbandonRateTarget = 0.03
	}
	if d.SlotTTL <= 0 {
		d.SlotTTL = time.Minute
	}
	return d
}
