package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/slotbook/internal/lock"
	"github.com/jwalitptl/slotbook/internal/repository/mongo"
	"github.com/jwalitptl/slotbook/internal/repository/postgres"
	"github.com/jwalitptl/slotbook/internal/service/catalog"
	"github.com/jwalitptl/slotbook/pkg/logger"
	"github.com/jwalitptl/slotbook/pkg/messaging/redis"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Relay brokers.
const (
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
	BrokerNone  = "none"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Lock          LockConfig          `mapstructure:"lock"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	CORS          CORSConfig          `mapstructure:"cors"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	HSTS            bool          `mapstructure:"hsts"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NotificationsConfig struct {
	Broker         string        `mapstructure:"broker"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type LockConfig struct {
	Backend    string        `mapstructure:"backend"`
	Prefix     string        `mapstructure:"prefix"`
	TTL        time.Duration `mapstructure:"ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type CacheConfig struct {
	ServiceTTL      time.Duration `mapstructure:"service_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// overrides are the deployment secrets and endpoints that may come from
// SLOTBOOK_* variables; a set variable wins over the file.
type overrides struct {
	Port           int      `envconfig:"PORT"`
	DBDriver       string   `envconfig:"DB_DRIVER"`
	MongoURI       string   `envconfig:"MONGO_URI"`
	PostgresHost   string   `envconfig:"POSTGRES_HOST"`
	PostgresPass   string   `envconfig:"POSTGRES_PASSWORD"`
	JWTSecret      string   `envconfig:"JWT_SECRET"`
	RedisURL       string   `envconfig:"REDIS_URL"`
	KafkaBrokers   []string `envconfig:"KAFKA_BROKERS"`
	Broker         string   `envconfig:"NOTIFICATIONS_BROKER"`
	LockBackend    string   `envconfig:"LOCK_BACKEND"`
	LogLevel       string   `envconfig:"LOG_LEVEL"`
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

const envPrefix = "slotbook"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)

	v.SetDefault("database.driver", DriverMongo)
	v.SetDefault("database.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongo.database", "slotbook")
	v.SetDefault("database.mongo.connect_timeout", 10*time.Second)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.name", "slotbook")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.postgres.auto_migrate", true)

	v.SetDefault("jwt.expiry", 24*time.Hour)
	v.SetDefault("jwt.issuer", "slotbook")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.topic", "booking-updates")

	v.SetDefault("notifications.broker", BrokerRedis)
	v.SetDefault("notifications.publish_timeout", 5*time.Second)

	v.SetDefault("lock.backend", LockLocal)
	v.SetDefault("lock.prefix", "slotbook:lock:")
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.retry_delay", 25*time.Millisecond)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("cache.service_ttl", 30*time.Second)
	v.SetDefault("cache.cleanup_interval", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads an optional .env file, then config.yaml from the usual
// locations, then SLOTBOOK_* overrides. A missing config file is not an
// error; defaults apply.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path := os.Getenv("SLOTBOOK_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env overrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.apply(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) apply(env overrides) {
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	setString(&c.Database.Driver, env.DBDriver)
	setString(&c.Database.Mongo.URI, env.MongoURI)
	setString(&c.Database.Postgres.Host, env.PostgresHost)
	setString(&c.Database.Postgres.Password, env.PostgresPass)
	setString(&c.JWT.Secret, env.JWTSecret)
	setString(&c.Redis.URL, env.RedisURL)
	setString(&c.Notifications.Broker, env.Broker)
	setString(&c.Lock.Backend, env.LockBackend)
	setString(&c.Log.Level, env.LogLevel)
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
	if len(env.AllowedOrigins) > 0 {
		c.CORS.AllowedOrigins = env.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate rejects settings the process cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}
	switch c.Database.Driver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not one of mongo, postgres, memory", c.Database.Driver))
	}
	switch c.Notifications.Broker {
	case BrokerRedis, BrokerNone:
	case BrokerKafka:
		if len(c.Kafka.Brokers) == 0 {
			problems = append(problems, "kafka.brokers is required when notifications.broker is kafka")
		}
	default:
		problems = append(problems, fmt.Sprintf("notifications.broker %q is not one of redis, kafka, none", c.Notifications.Broker))
	}
	switch c.Lock.Backend {
	case LockLocal, LockRedis:
	default:
		problems = append(problems, fmt.Sprintf("lock.backend %q is not one of local, redis", c.Lock.Backend))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.Notifications.Broker == BrokerRedis || c.Lock.Backend == LockRedis
}

func (c *DatabaseConfig) ToMongoConfig() mongo.Config {
	return mongo.Config{
		URI:            c.Mongo.URI,
		Database:       c.Mongo.Database,
		ConnectTimeout: c.Mongo.ConnectTimeout,
	}
}

func (c *DatabaseConfig) ToPostgresConfig() postgres.Config {
	p := c.Postgres
	return postgres.Config{
		Host:            p.Host,
		Port:            p.Port,
		User:            p.User,
		Password:        p.Password,
		Name:            p.Name,
		SSLMode:         p.SSLMode,
		MaxOpenConns:    p.MaxOpenConns,
		MaxIdleConns:    p.MaxIdleConns,
		ConnMaxLifetime: p.ConnMaxLifetime,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *LockConfig) ToRedisLockConfig() lock.RedisConfig {
	return lock.RedisConfig{
		Prefix:     c.Prefix,
		TTL:        c.TTL,
		RetryDelay: c.RetryDelay,
	}
}

func (c *CacheConfig) ToCatalogCacheConfig() catalog.CacheConfig {
	return catalog.CacheConfig{
		TTL:             c.ServiceTTL,
		CleanupInterval: c.CleanupInterval,
	}
}

func (c *LogConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Level,
		Format: c.Format,
	}
}
