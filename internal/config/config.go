package config

import (
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Security   SecurityConfig   `yaml:"security"`
	Backend    BackendConfig    `yaml:"backend"`
	Generation GenerationConfig `yaml:"generation"`
	Redis      RedisConfig      `yaml:"redis"`
	Database   DatabaseConfig   `yaml:"database"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Policy     PolicyConfig     `yaml:"policy"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type TelemetryConfig struct {
	ServiceName     string  `yaml:"service_name"`
	Environment     string  `yaml:"environment"`
	LogLevel        string  `yaml:"log_level"`
	LogFormat       string  `yaml:"log_format"`
	MetricsPort     int     `yaml:"metrics_port"`
	OTLPEndpoint    string  `yaml:"otlp_endpoint"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
}

// SecurityConfig controls the analysis engine. Disabling a toggle skips
// pattern evaluation entirely (fail-open by design, not by error).
type SecurityConfig struct {
	ChecksEnabled       bool    `yaml:"checks_enabled"`
	PIIDetectionEnabled bool    `yaml:"pii_detection_enabled"`
	InjectionThreshold  float64 `yaml:"injection_threshold"`
}

type BackendConfig struct {
	Type          string            `yaml:"type"`
	BaseURL       string            `yaml:"base_url"`
	APIKey        string            `yaml:"api_key"`
	Timeout       time.Duration     `yaml:"timeout"`
	MaxConcurrent int               `yaml:"max_concurrent"`
	Headers       map[string]string `yaml:"headers,omitempty"`
}

type GenerationConfig struct {
	DefaultModel   string         `yaml:"default_model"`
	MaxTokens      int            `yaml:"max_tokens"`
	Temperature    float64        `yaml:"temperature"`
	ContextWindows map[string]int `yaml:"context_windows"`
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + strconv.Itoa(d.Port) + "/" + d.Name + "?sslmode=disable"
}

type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	DailyBudgetUSD    float64 `yaml:"daily_budget_usd"` // 0 disables the cap
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     "sentinel-gateway",
			Environment:     "production",
			LogLevel:        "info",
			LogFormat:       "json",
			MetricsPort:     9090,
			TraceSampleRate: 0.1,
		},
		Security: SecurityConfig{
			ChecksEnabled:       true,
			PIIDetectionEnabled: true,
			InjectionThreshold:  0.8,
		},
		Backend: BackendConfig{
			Type:          "openai",
			Timeout:       30 * time.Second,
			MaxConcurrent: 10,
		},
		Generation: GenerationConfig{
			DefaultModel: "gemini-1.5-pro",
			MaxTokens:    8192,
			Temperature:  0.7,
			ContextWindows: map[string]int{
				"gemini-1.5-pro":   1_000_000,
				"gemini-1.5-flash": 1_000_000,
				"gemini-1.0-pro":   30_000,
			},
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "sentinel",
			User:            "sentinel",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 100,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "/etc/sentinel/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
	}
}
