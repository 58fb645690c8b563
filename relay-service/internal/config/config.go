package config

import (
	"time"

	pkgconfig "github.com/weiawesome/wes-io-live/peer-relay/pkg/config"
	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/directory"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Presence  PresenceConfig
	Directory directory.Config
	Kafka     KafkaConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	SweepInterval  time.Duration `mapstructure:"-"`
	WriteWait      time.Duration `mapstructure:"-"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type PresenceConfig struct {
	ActivityWindow time.Duration `mapstructure:"-"`
	PruneInterval  time.Duration `mapstructure:"-"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads relay configuration from ./config/relay.yaml (optional) and
// the environment.
func Load(file string) (*Config, error) {
	v, err := pkgconfig.Load("./config", "relay", pkgconfig.WithFile(file))
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("websocket.sweep_interval", "30s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("presence.activity_window", "10m")
	v.SetDefault("presence.prune_interval", "5m")
	v.SetDefault("directory.driver", directory.DriverMemory)
	v.SetDefault("directory.max_users", directory.DefaultMaxUsers)
	v.SetDefault("directory.retention", "24h")
	v.SetDefault("directory.redis.address", "localhost:6379")
	v.SetDefault("directory.redis.password", "")
	v.SetDefault("directory.redis.db", 0)
	v.SetDefault("directory.redis.key_prefix", "relay")
	v.SetDefault("directory.database.driver", "sqlite")
	v.SetDefault("directory.database.file_path", "relay.db")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "presence-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("directory.driver", "DIRECTORY_DRIVER")
	v.BindEnv("directory.redis.address", "REDIS_ADDRESS")
	v.BindEnv("directory.redis.password", "REDIS_PASSWORD")
	v.BindEnv("directory.database.driver", "DATABASE_DRIVER")
	v.BindEnv("directory.database.host", "DATABASE_HOST")
	v.BindEnv("directory.database.user", "DATABASE_USER")
	v.BindEnv("directory.database.password", "DATABASE_PASSWORD")
	v.BindEnv("directory.database.dbname", "DATABASE_NAME")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_PRESENCE_TOPIC")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Durations are parsed explicitly so a malformed value falls back to
	// the default instead of failing startup.
	cfg.WebSocket.SweepInterval = pkgconfig.Duration(v, "websocket.sweep_interval", 30*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Presence.ActivityWindow = pkgconfig.Duration(v, "presence.activity_window", 10*time.Minute)
	cfg.Presence.PruneInterval = pkgconfig.Duration(v, "presence.prune_interval", 5*time.Minute)
	cfg.Directory.Retention = pkgconfig.Duration(v, "directory.retention", 24*time.Hour)
	cfg.Directory.Redis.Retention = cfg.Directory.Retention

	return &cfg, nil
}
