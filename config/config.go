package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/spf13/viper"
)

// Config holds all configuration for the web builder service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// Debug turns on echo's debug mode.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if s.MaxUploadBytes < 0 {
		return fmt.Errorf("server.max_upload_bytes cannot be negative")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// ReconcileConfig drives the periodic scan for artifacts missing from the page index.
type ReconcileConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

func (r ReconcileConfig) Validate() error {
	if r.Enabled && strings.TrimSpace(r.Schedule) == "" {
		return fmt.Errorf("reconcile.schedule required when reconcile is enabled")
	}
	if r.Enabled {
		if _, err := cronexpr.Parse(r.Schedule); err != nil {
			return fmt.Errorf("reconcile.schedule %q: %w", r.Schedule, err)
		}
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	UploadsDir string         `mapstructure:"uploads_dir"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	Redis      RedisConfig    `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings. Redis is optional: with no
// host configured the page index is serialised in-process only.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// Enabled reports whether a Redis server was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if r.LockTTL < 0 {
		return fmt.Errorf("storage.redis.lock_ttl cannot be negative")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a lib/pq connection string from the configuration.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 2*time.Minute)
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("generator.backend", BackendHTTP)
	v.SetDefault("generator.http.endpoint", DefaultHTTPEndpoint)
	v.SetDefault("generator.http.timeout", DefaultHTTPTimeout)
	v.SetDefault("generator.agent.url", DefaultAgentURL)
	v.SetDefault("generator.agent.tool", DefaultAgentTool)
	v.SetDefault("generator.agent.app_name", "webbuilder")
	v.SetDefault("storage.uploads_dir", "uploads")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.lock_ttl", 10*time.Second)
	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.schedule", "@hourly")
}

// LoadConfig loads config from file. An empty path searches the usual
// locations; a missing file there is not an error so the service can run on
// defaults and WEBBUILDER_* environment variables alone.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("WEBBUILDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"generator.agent.api_key",
		"storage.postgres.url", "storage.postgres.host", "storage.postgres.port",
		"storage.postgres.user", "storage.postgres.password", "storage.postgres.dbname",
		"storage.postgres.sslmode", "storage.redis.host", "storage.redis.password",
		"telemetry.otlp_endpoint",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Generator = cfg.Generator.Normalize()

	for _, validate := range []func() error{
		cfg.Server.Validate,
		cfg.Generator.Validate,
		cfg.Storage.Postgres.Validate,
		cfg.Storage.Redis.Validate,
		cfg.Telemetry.Validate,
		cfg.Reconcile.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
