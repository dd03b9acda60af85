package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/weiawesome/wes-io-live/live-engine/pkg/config"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/database"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/log"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/live-engine/pkg/storage"
)

type Config struct {
	Server    ServerConfig
	Hooks     HooksConfig
	Database  database.Config
	Redis     RedisConfig
	PubSub    pubsub.Config
	Kafka     KafkaConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	Media     MediaConfig
	Wallet    WalletConfig
	Gift      GiftConfig
	PK        PKConfig `mapstructure:"pk"`
	Archive   storage.Config
	ID        IDConfig   `mapstructure:"id"`
	CORS      CORSConfig `mapstructure:"cors"`
	Log       log.Config
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type HooksConfig struct {
	Host          string
	Port          int
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type RedisConfig struct {
	Enabled    bool
	Address    string
	Password   string
	DB         int
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type KafkaConfig struct {
	Enabled    bool
	Brokers    string
	Topic      string
	Partitions int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessDuration time.Duration `mapstructure:"access_duration"`
}

type MediaConfig struct {
	APIURL   string        `mapstructure:"api_url"`
	APIToken string        `mapstructure:"api_token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type WalletConfig struct {
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type GiftConfig struct {
	EarningsShare         float64 `mapstructure:"earnings_share"`
	BackpackEarningsShare float64 `mapstructure:"backpack_earnings_share"`
	LuckyMultiplier       int     `mapstructure:"lucky_multiplier"`
	MaxQuantity           int     `mapstructure:"max_quantity"`
}

type PKConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	DefaultDuration  time.Duration `mapstructure:"default_duration"`
	MaxDuration      time.Duration `mapstructure:"max_duration"`
	InviteTTL        time.Duration `mapstructure:"invite_ttl"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	MinDiamonds      int64         `mapstructure:"min_diamonds"`
	RewardMultiplier float64       `mapstructure:"reward_multiplier"`
}

type IDConfig struct {
	Room        string `mapstructure:"room"`
	Transaction string `mapstructure:"transaction"`
	Session     string `mapstructure:"session"`
	Battle      string `mapstructure:"battle"`
	NanoIDSize  int    `mapstructure:"nanoid_size"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("hooks.host", "0.0.0.0")
	v.SetDefault("hooks.port", 8085)
	v.SetDefault("hooks.webhook_secret", "")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "live_engine")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/live.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.session_ttl", "12h")
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.password", "")
	v.SetDefault("pubsub.redis.db", 0)
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "live-engine")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic", "live-events")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wes-io-live")
	v.SetDefault("auth.access_duration", "24h")
	v.SetDefault("media.api_url", "http://localhost:1985")
	v.SetDefault("media.api_token", "")
	v.SetDefault("media.timeout", "10s")
	v.SetDefault("wallet.op_timeout", "3s")
	v.SetDefault("gift.earnings_share", 0.5)
	v.SetDefault("gift.backpack_earnings_share", 0.0)
	v.SetDefault("gift.lucky_multiplier", 0)
	v.SetDefault("gift.max_quantity", 9999)
	v.SetDefault("pk.enabled", true)
	v.SetDefault("pk.default_duration", "5m")
	v.SetDefault("pk.max_duration", "10m")
	v.SetDefault("pk.invite_ttl", "30s")
	v.SetDefault("pk.cooldown", "60s")
	v.SetDefault("pk.min_diamonds", 10)
	v.SetDefault("pk.reward_multiplier", 1.5)
	v.SetDefault("archive.driver", "local")
	v.SetDefault("archive.local.base_path", "./data/archive")
	v.SetDefault("archive.s3.region", "us-east-1")
	v.SetDefault("archive.s3.bucket", "live-sessions")
	v.SetDefault("id.room", "nanoid")
	v.SetDefault("id.transaction", "ulid")
	v.SetDefault("id.session", "ksuid")
	v.SetDefault("id.battle", "uuid")
	v.SetDefault("id.nanoid_size", 12)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "live-engine")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("hooks.port", "HOOKS_PORT")
	v.BindEnv("hooks.webhook_secret", "PAYMENT_WEBHOOK_SECRET")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("pubsub.kafka.group_id", "KAFKA_PUBSUB_GROUP_ID")
	v.BindEnv("kafka.enabled", "KAFKA_ENABLED")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_LIVE_EVENTS_TOPIC")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("media.api_url", "SRS_API_URL")
	v.BindEnv("media.api_token", "SRS_API_TOKEN")
	v.BindEnv("archive.driver", "ARCHIVE_DRIVER")
	v.BindEnv("archive.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("archive.s3.bucket", "S3_BUCKET")
	v.BindEnv("archive.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("archive.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.instance_id", "INSTANCE_ID")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = parseDuration(v, "server.shutdown_timeout", 10*time.Second)
	cfg.Redis.SessionTTL = parseDuration(v, "redis.session_ttl", 12*time.Hour)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Auth.AccessDuration = parseDuration(v, "auth.access_duration", 24*time.Hour)
	cfg.Media.Timeout = parseDuration(v, "media.timeout", 10*time.Second)
	cfg.Wallet.OpTimeout = parseDuration(v, "wallet.op_timeout", 3*time.Second)
	cfg.PK.DefaultDuration = parseDuration(v, "pk.default_duration", 5*time.Minute)
	cfg.PK.MaxDuration = parseDuration(v, "pk.max_duration", 10*time.Minute)
	cfg.PK.InviteTTL = parseDuration(v, "pk.invite_ttl", 30*time.Second)
	cfg.PK.Cooldown = parseDuration(v, "pk.cooldown", 60*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
