package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Version   string          `mapstructure:"version"`
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	// WriteTimeout must stay zero: the notification stream endpoint holds
	// its response open indefinitely and a server-wide write deadline
	// would sever every stream at that deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// AuthConfig holds session token settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" envconfig:"JWT_SECRET"`
}

// NotifyConfig holds notification delivery tuning
type NotifyConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" envconfig:"NOTIFY_HEARTBEAT_INTERVAL" default:"30s"`
	StreamBuffer      int           `mapstructure:"stream_buffer" envconfig:"NOTIFY_STREAM_BUFFER" default:"16"`
	StoreCapacity     int           `mapstructure:"store_capacity" envconfig:"NOTIFY_STORE_CAPACITY" default:"50"`
	BackoffFloor      time.Duration `mapstructure:"backoff_floor" envconfig:"NOTIFY_BACKOFF_FLOOR" default:"1s"`
	BackoffCeiling    time.Duration `mapstructure:"backoff_ceiling" envconfig:"NOTIFY_BACKOFF_CEILING" default:"30s"`
}

// RedisConfig holds Redis connection settings for the fan-out bridge.
// An empty Addr disables the bridge entirely.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" envconfig:"REDIS_ADDR"`
	Password string `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	Channel  string `mapstructure:"channel" envconfig:"REDIS_CHANNEL" default:"habitflow:notifications"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
}

// Load reads configuration from ./configs/config.yaml (if present) and
// overrides it with environment variables.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars only
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	envPrefix := strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_")) + "_"
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process service env vars: %w", err)
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else if cfg.Version == "" {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Notify.StoreCapacity <= 0 {
		return fmt.Errorf("notify.store_capacity must be positive")
	}
	if c.Notify.BackoffFloor <= 0 || c.Notify.BackoffCeiling < c.Notify.BackoffFloor {
		return fmt.Errorf("notify backoff bounds are invalid")
	}
	return nil
}
