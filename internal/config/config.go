package config

import (
	"fmt"
	"time"

	"detak/internal/logger"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config represents the complete configuration shared by the agent,
// worker and dashboard binaries. It is constructed once at process start
// and passed to components; nothing reads configuration ambiently.
type Config struct {
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	MongoDB   MongoDBConfig   `mapstructure:"mongodb"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       logger.Config   `mapstructure:"log"`
}

// RabbitMQConfig represents the broker configuration.
type RabbitMQConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	VHost           string        `mapstructure:"vhost"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Queue           string        `mapstructure:"queue"`
	DeadLetterQueue string        `mapstructure:"dead_letter_queue"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
}

// URL returns the amqp connection URL.
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.Username, c.Password, c.Host, c.Port, c.VHost)
}

// MongoDBConfig represents the event store configuration.
type MongoDBConfig struct {
	URI               string        `mapstructure:"uri"`
	Database          string        `mapstructure:"database"`
	EventsCollection  string        `mapstructure:"events_collection"`
	ObjectsCollection string        `mapstructure:"objects_collection"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// RedisConfig represents the optional status cache configuration.
// An empty address disables caching entirely.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AgentConfig represents the heartbeat emitter configuration.
type AgentConfig struct {
	UUID       string        `mapstructure:"uuid"`
	ObjectName string        `mapstructure:"object_name"`
	Interval   time.Duration `mapstructure:"interval"`
}

// WorkerConfig represents the ingestion consumer configuration.
type WorkerConfig struct {
	MetricsAddress string `mapstructure:"metrics_address"`
}

// DashboardConfig represents the status server configuration.
type DashboardConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Timezone     string        `mapstructure:"timezone"`
}

// Load loads configuration from file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(config *Config) {
	if config.RabbitMQ.Host == "" {
		config.RabbitMQ.Host = "localhost"
	}
	if config.RabbitMQ.Port == 0 {
		config.RabbitMQ.Port = 5672
	}
	if config.RabbitMQ.VHost == "" {
		config.RabbitMQ.VHost = "/"
	}
	if config.RabbitMQ.Queue == "" {
		config.RabbitMQ.Queue = "heartbeats"
	}
	if config.RabbitMQ.DeadLetterQueue == "" {
		config.RabbitMQ.DeadLetterQueue = config.RabbitMQ.Queue + ".dead"
	}
	if config.RabbitMQ.Heartbeat == 0 {
		config.RabbitMQ.Heartbeat = 10 * time.Second
	}

	if config.MongoDB.Database == "" {
		config.MongoDB.Database = "detak"
	}
	if config.MongoDB.EventsCollection == "" {
		config.MongoDB.EventsCollection = "heartbeats"
	}
	if config.MongoDB.ObjectsCollection == "" {
		config.MongoDB.ObjectsCollection = "objects"
	}
	if config.MongoDB.Timeout == 0 {
		config.MongoDB.Timeout = 10 * time.Second
	}

	if config.Redis.CacheTTL == 0 {
		config.Redis.CacheTTL = 10 * time.Second
	}

	if config.Agent.UUID == "" {
		config.Agent.UUID = uuid.New().String()
	}
	if config.Agent.Interval == 0 {
		config.Agent.Interval = time.Minute
	}

	if config.Worker.MetricsAddress == "" {
		config.Worker.MetricsAddress = ":9100"
	}

	if config.Dashboard.Address == "" {
		config.Dashboard.Address = ":8080"
	}
	if config.Dashboard.ReadTimeout == 0 {
		config.Dashboard.ReadTimeout = 30 * time.Second
	}
	if config.Dashboard.WriteTimeout == 0 {
		config.Dashboard.WriteTimeout = 30 * time.Second
	}
	if config.Dashboard.Timezone == "" {
		config.Dashboard.Timezone = "Asia/Jakarta"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.MaxSize == 0 {
		config.Log.MaxSize = 100
	}
	if config.Log.MaxBackups == 0 {
		config.Log.MaxBackups = 3
	}
	if config.Log.MaxAge == 0 {
		config.Log.MaxAge = 28
	}
}

// validateConfig validates configuration
func validateConfig(config *Config) error {
	if config.MongoDB.URI == "" {
		return fmt.Errorf("mongodb.uri is required")
	}
	if config.Agent.Interval < time.Second {
		return fmt.Errorf("agent.interval must be at least 1s")
	}
	if config.RabbitMQ.Queue == config.RabbitMQ.DeadLetterQueue {
		return fmt.Errorf("rabbitmq.dead_letter_queue must differ from rabbitmq.queue")
	}
	switch config.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}
	return nil
}
