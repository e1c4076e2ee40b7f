package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// Database Configuration
	Database DatabaseConfig `json:"database"`

	// MongoDB Configuration (attachment storage)
	MongoDB MongoDBConfig `json:"mongodb"`

	// Presence Configuration
	Presence PresenceConfig `json:"presence"`

	// Call signaling Configuration
	Call CallConfig `json:"call"`

	// Notification Configuration
	Notification NotificationConfig `json:"notification"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	RealtimeServicePort string `json:"realtime_service_port"`
	MediaServerPort     string `json:"media_server_port"`
	Host                string `json:"host"`
	ReadTimeout         int    `json:"read_timeout"`
	WriteTimeout        int    `json:"write_timeout"`
	Environment         string `json:"environment"` // development, staging, production
}

// DatabaseConfig contains MySQL connection configuration
type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// MongoDBConfig contains the attachment store connection configuration
type MongoDBConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// PresenceConfig controls connection registry policy
type PresenceConfig struct {
	// NotifySuperseded pushes a sessionSuperseded event to a connection
	// that gets replaced by a newer connect from the same user.
	NotifySuperseded bool `json:"notify_superseded"`
}

// CallConfig contains call signaling configuration
type CallConfig struct {
	RingTimeout time.Duration `json:"ring_timeout"`
}

// NotificationConfig contains fan-out worker configuration
type NotificationConfig struct {
	Workers           int `json:"workers"`
	ChannelBufferSize int `json:"channel_buffer_size"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // json, text
	OutputPath string `json:"output_path"` // stdout, stderr, or file path
}

// LoadConfig builds the configuration from environment variables with
// sane development defaults. Mains call godotenv.Load() first.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			RealtimeServicePort: getEnv("REALTIME_SERVICE_PORT", "7005"),
			MediaServerPort:     getEnv("MEDIA_SERVER_PORT", "8080"),
			Host:                getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:         getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:        getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			Environment:         getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnv("MYSQL_HOST", "localhost"),
			Port:         getEnv("MYSQL_PORT", "3306"),
			Username:     getEnv("MYSQL_USERNAME", "wayfare"),
			Password:     getEnv("MYSQL_PASSWORD", "wayfare123"),
			DatabaseName: getEnv("MYSQL_DATABASE", "wayfare"),
			MaxOpenConns: getEnvAsInt("MYSQL_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("MYSQL_MAX_IDLE_CONNS", 5),
		},
		MongoDB: MongoDBConfig{
			Host:     getEnv("MONGO_HOST", "localhost"),
			Port:     getEnv("MONGO_PORT", "27017"),
			Username: getEnv("MONGO_USERNAME", ""),
			Password: getEnv("MONGO_PASSWORD", ""),
			Database: getEnv("MONGO_DATABASE", "wayfare"),
		},
		Presence: PresenceConfig{
			NotifySuperseded: getEnvAsBool("PRESENCE_NOTIFY_SUPERSEDED", false),
		},
		Call: CallConfig{
			RingTimeout: time.Duration(getEnvAsInt("CALL_RING_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Notification: NotificationConfig{
			Workers:           getEnvAsInt("NOTIFICATION_WORKERS", 5),
			ChannelBufferSize: getEnvAsInt("NOTIFICATION_BUFFER_SIZE", 1000),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "text"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
}

func (cfg *Config) DSN() string {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func (cfg *Config) GetMongoURI() string {
	if cfg.MongoDB.Username != "" && cfg.MongoDB.Password != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s/%s?authSource=admin",
			cfg.MongoDB.Username,
			cfg.MongoDB.Password,
			cfg.MongoDB.Host,
			cfg.MongoDB.Port,
			cfg.MongoDB.Database,
		)
	}
	return fmt.Sprintf("mongodb://%s:%s/%s",
		cfg.MongoDB.Host,
		cfg.MongoDB.Port,
		cfg.MongoDB.Database,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
