package config

import (
	"encoding/json"
	"os"
)

// SystemDBConfig holds system store connection settings.
type SystemDBConfig struct {
	DSN string `json:"dsn"`
}

// TenantDBConfig holds settings for tenant database provisioning and access.
type TenantDBConfig struct {
	// BaseURI is the connection template for tenant databases. Database,
	// user and password are substituted per tenant.
	BaseURI string `json:"base_uri"`
	// AdminDSN is used only by tenant database provisioning. It must carry
	// CREATEDB/CREATEROLE privileges.
	AdminDSN string `json:"admin_dsn"`
}

// RedisConfig holds Redis connection settings for the tenant config cache.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// PublishConfig holds deployment engine settings.
type PublishConfig struct {
	// CompilePolicy is "skip" (report failing functions, deploy the rest)
	// or "abort" (fail the whole publish on the first compile error).
	CompilePolicy string `json:"compile_policy"`
}

// TelemetryConfig holds tracing settings.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// DaemonConfig holds daemon-specific settings.
type DaemonConfig struct {
	MetricsAddr string `json:"metrics_addr"`
	LogLevel    string `json:"log_level"`
}

// Config is the central configuration struct embedding all component configs.
type Config struct {
	SystemDB  SystemDBConfig  `json:"system_db"`
	TenantDB  TenantDBConfig  `json:"tenant_db"`
	Redis     RedisConfig     `json:"redis"`
	Publish   PublishConfig   `json:"publish"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Daemon    DaemonConfig    `json:"daemon"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SystemDB: SystemDBConfig{
			DSN: "postgres://localhost:5432/skiff?sslmode=disable",
		},
		TenantDB: TenantDBConfig{
			BaseURI:  "postgres://localhost:5432/postgres?sslmode=disable",
			AdminDSN: "postgres://localhost:5432/postgres?sslmode=disable",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
			DB:       0,
		},
		Publish: PublishConfig{
			CompilePolicy: "skip",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4318",
			ServiceName: "skiff",
			SampleRate:  1.0,
		},
		Daemon: DaemonConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SKIFF_SYSTEM_DSN"); v != "" {
		cfg.SystemDB.DSN = v
	}
	if v := os.Getenv("SKIFF_TENANT_BASE_URI"); v != "" {
		cfg.TenantDB.BaseURI = v
	}
	if v := os.Getenv("SKIFF_TENANT_ADMIN_DSN"); v != "" {
		cfg.TenantDB.AdminDSN = v
	}
	if v := os.Getenv("SKIFF_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SKIFF_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SKIFF_COMPILE_POLICY"); v != "" {
		cfg.Publish.CompilePolicy = v
	}
	if v := os.Getenv("SKIFF_METRICS_ADDR"); v != "" {
		cfg.Daemon.MetricsAddr = v
	}
	if v := os.Getenv("SKIFF_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("SKIFF_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}
