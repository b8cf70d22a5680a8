package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. DISPATCH_DATABASE_HOST.
const EnvPrefix = "DISPATCH"

// Store backends accepted by dispatch.store.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`
	RabbitMQ struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Relay    bool   `mapstructure:"relay"` // cross-instance notification relay
	} `mapstructure:"rabbitmq"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	WebSocket struct {
		AuthTimeout  time.Duration `mapstructure:"auth_timeout"`
		PingInterval time.Duration `mapstructure:"ping_interval"`
		PongWait     time.Duration `mapstructure:"pong_wait"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"websocket"`
	Services struct {
		DispatchServicePort int `mapstructure:"dispatch_service_port"`
	} `mapstructure:"services"`
	JWT struct {
		SecretKey string        `mapstructure:"secret_key"`
		TTL       time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`
	Dispatch struct {
		RadiusKM      float64       `mapstructure:"radius_km"`
		DefaultRating float64       `mapstructure:"default_rating"`
		StoreTimeout  time.Duration `mapstructure:"store_timeout"`
		ReadRetries   int           `mapstructure:"read_retries"`
		HistoryLimit  int           `mapstructure:"history_limit"`
		Store         string        `mapstructure:"store"`
	} `mapstructure:"dispatch"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// LoadFromFile loads config from a YAML file, applies env overrides and defaults, and validates it.
// An empty path skips the file and uses defaults plus environment only.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v)
	return v
}

func load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// registerDefaults declares every key so AutomaticEnv can override keys absent from the file.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("rabbitmq.enabled", true)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "")
	v.SetDefault("rabbitmq.password", "")
	v.SetDefault("rabbitmq.relay", false)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("websocket.auth_timeout", 5*time.Second)
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.write_timeout", 5*time.Second)

	v.SetDefault("services.dispatch_service_port", 3000)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("dispatch.radius_km", 10.0)
	v.SetDefault("dispatch.default_rating", 4.5)
	v.SetDefault("dispatch.store_timeout", 3*time.Second)
	v.SetDefault("dispatch.read_retries", 0)
	v.SetDefault("dispatch.history_limit", 50)
	v.SetDefault("dispatch.store", StorePostgres)

	v.SetDefault("log.level", "info")
}

// applyDefaults fills values that cannot be expressed as static viper defaults.
func applyDefaults(cfg *Config) {
	cfg.Dispatch.Store = strings.ToLower(strings.TrimSpace(cfg.Dispatch.Store))
	if cfg.Dispatch.Store == "" {
		cfg.Dispatch.Store = StorePostgres
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	switch c.Dispatch.Store {
	case StorePostgres:
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			problems = append(problems, "database.port must be in 1..65535")
		}
		if c.Database.User == "" {
			problems = append(problems, "database.user is required")
		}
		if c.Database.Password == "" {
			problems = append(problems, "database.password is required")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.name is required")
		}
	case StoreMemory:
	default:
		problems = append(problems, "dispatch.store must be postgres or memory")
	}

	// RabbitMQ
	if c.RabbitMQ.Enabled {
		if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
			problems = append(problems, "rabbitmq.port must be in 1..65535")
		}
		if c.RabbitMQ.User == "" {
			problems = append(problems, "rabbitmq.user is required")
		}
		if c.RabbitMQ.Password == "" {
			problems = append(problems, "rabbitmq.password is required")
		}
	} else if c.RabbitMQ.Relay {
		problems = append(problems, "rabbitmq.relay requires rabbitmq.enabled")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}

	// WebSocket
	if c.WebSocket.AuthTimeout <= 0 {
		problems = append(problems, "websocket.auth_timeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		problems = append(problems, "websocket.pong_wait must exceed websocket.ping_interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		problems = append(problems, "websocket.write_timeout must be positive")
	}

	// Services
	if c.Services.DispatchServicePort <= 0 || c.Services.DispatchServicePort > 65535 {
		problems = append(problems, "services.dispatch_service_port must be in 1..65535")
	}

	// JWT
	if c.JWT.TTL <= 0 {
		problems = append(problems, "jwt.ttl must be positive")
	}

	// Dispatch
	if c.Dispatch.RadiusKM <= 0 {
		problems = append(problems, "dispatch.radius_km must be positive")
	}
	if c.Dispatch.DefaultRating < 0 || c.Dispatch.DefaultRating > 5 {
		problems = append(problems, "dispatch.default_rating must be in 0..5")
	}
	if c.Dispatch.StoreTimeout <= 0 {
		problems = append(problems, "dispatch.store_timeout must be positive")
	}
	if c.Dispatch.ReadRetries < 0 {
		problems = append(problems, "dispatch.read_retries cannot be negative")
	}
	if c.Dispatch.HistoryLimit <= 0 {
		problems = append(problems, "dispatch.history_limit must be positive")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseDSN builds the pgx connection string.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name, c.Database.SSLMode)
}

// RabbitMQURL builds the AMQP URL.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
