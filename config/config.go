package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cwrk-planet/caption-relay/internal/gate"
	"github.com/cwrk-planet/caption-relay/internal/logger"
	"github.com/cwrk-planet/caption-relay/internal/postgres"
	"github.com/cwrk-planet/caption-relay/internal/redisstore"
	"github.com/cwrk-planet/caption-relay/internal/relay"
	"github.com/cwrk-planet/caption-relay/internal/transport/ws"
)

const (
	DefaultPath = "./config/config.yaml"

	envConfigPath   = "CONFIG_PATH"
	envAccessSecret = "RELAY_ACCESS_SECRET"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type HTTP struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	ReadTimeout     string   `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    string   `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout     string   `yaml:"idleTimeout" toml:"idleTimeout"`
	ShutdownTimeout string   `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	AllowedOrigins  []string `yaml:"allowedOrigins" toml:"allowedOrigins"`
}

type WS struct {
	PingInterval    string `yaml:"pingInterval" toml:"pingInterval"`
	WriteTimeout    string `yaml:"writeTimeout" toml:"writeTimeout"`
	MaxMessageBytes int64  `yaml:"maxMessageBytes" toml:"maxMessageBytes"`
	SendQueue       int    `yaml:"sendQueue" toml:"sendQueue"`
}

type GRPC struct {
	Addr        string `yaml:"addr" toml:"addr"` // empty disables the admin server
	CallTimeout string `yaml:"callTimeout" toml:"callTimeout"`
}

type Logging struct {
	Env       string `yaml:"env" toml:"env"`             // dev|stage|prod
	Service   string `yaml:"service" toml:"service"`     // caption-relay
	Version   string `yaml:"version" toml:"version"`     // v0.1.0
	Backend   string `yaml:"backend" toml:"backend"`     // std|zap
	Level     string `yaml:"level" toml:"level"`         // debug|info|warn|error
	AddSource bool   `yaml:"addSource" toml:"addSource"` // false|true
	Debug     bool   `yaml:"debug" toml:"debug"`         // false|true
}

type Relay struct {
	HeartbeatTimeout string `yaml:"heartbeatTimeout" toml:"heartbeatTimeout"`
	SweepInterval    string `yaml:"sweepInterval" toml:"sweepInterval"`
	JoinRequestTTL   string `yaml:"joinRequestTTL" toml:"joinRequestTTL"`
	PersistTimeout   string `yaml:"persistTimeout" toml:"persistTimeout"`
	IdleRoomTTL      string `yaml:"idleRoomTTL" toml:"idleRoomTTL"`
	ReclaimInterval  string `yaml:"reclaimInterval" toml:"reclaimInterval"`
	MaxTextLength    int    `yaml:"maxTextLength" toml:"maxTextLength"`
}

type Access struct {
	Mode       string `yaml:"mode" toml:"mode"` // open|secret|bcrypt|jwt, derived when empty
	Secret     string `yaml:"secret" toml:"secret"`
	SecretHash string `yaml:"secretHash" toml:"secretHash"`
	Issuer     string `yaml:"issuer" toml:"issuer"`
	ClockSkew  string `yaml:"clockSkew" toml:"clockSkew"`
}

type Postgres struct {
	DSN             string `yaml:"dsn" toml:"dsn"`
	MaxConns        int32  `yaml:"maxConns" toml:"maxConns"`
	MinConns        int32  `yaml:"minConns" toml:"minConns"`
	MaxConnLifetime string `yaml:"maxConnLifetime" toml:"maxConnLifetime"`
	MaxConnIdleTime string `yaml:"maxConnIdleTime" toml:"maxConnIdleTime"`
}

type Redis struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Password  string `yaml:"password" toml:"password"`
	DB        int    `yaml:"db" toml:"db"`
	KeyPrefix string `yaml:"keyPrefix" toml:"keyPrefix"`
	TTL       string `yaml:"ttl" toml:"ttl"`
}

type Storage struct {
	Driver     string   `yaml:"driver" toml:"driver"`
	Dir        string   `yaml:"dir" toml:"dir"`
	SQLitePath string   `yaml:"sqlitePath" toml:"sqlitePath"`
	Postgres   Postgres `yaml:"postgres" toml:"postgres"`
	Redis      Redis    `yaml:"redis" toml:"redis"`
}

type Config struct {
	HTTP    HTTP    `yaml:"http" toml:"http"`
	WS      WS      `yaml:"ws" toml:"ws"`
	GRPC    GRPC    `yaml:"grpc" toml:"grpc"`
	Logging Logging `yaml:"logging" toml:"logging"`
	Relay   Relay   `yaml:"relay" toml:"relay"`
	Access  Access  `yaml:"access" toml:"access"`
	Storage Storage `yaml:"storage" toml:"storage"`
}

// LoadConfig reads the config file at path, falling back to CONFIG_PATH and
// then DefaultPath. The format follows the extension: .toml is TOML,
// anything else YAML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if secret := os.Getenv(envAccessSecret); secret != "" {
		cfg.Access.Secret = secret
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "caption-relay"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file driver")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlitePath is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for the postgres driver")
		}
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if _, err := gate.New(c.GateConfig()); err != nil {
		return fmt.Errorf("access: %w", err)
	}
	if c.Relay.MaxTextLength < 0 {
		return errors.New("relay.maxTextLength must not be negative")
	}
	return nil
}

func (c *Config) LoggerConfig() logger.Config {
	lvl, _ := logger.ParseLevel(c.Logging.Level)
	return logger.Config{
		Service:   c.Logging.Service,
		Version:   c.Logging.Version,
		Env:       logger.ParseEnv(c.Logging.Env),
		Backend:   logger.Backend(c.Logging.Backend),
		Level:     lvl,
		AddSource: c.Logging.AddSource,
		Debug:     c.Logging.Debug,
	}
}

func (c *Config) RelayConfig() relay.Config {
	r := c.Relay
	return relay.Config{
		HeartbeatTimeout: parseDurationOr(relay.DefaultHeartbeatTimeout, r.HeartbeatTimeout),
		SweepInterval:    parseDurationOr(relay.DefaultSweepInterval, r.SweepInterval),
		JoinRequestTTL:   parseDurationOr(relay.DefaultJoinRequestTTL, r.JoinRequestTTL),
		PersistTimeout:   parseDurationOr(relay.DefaultPersistTimeout, r.PersistTimeout),
		IdleTTL:          parseDurationOr(relay.DefaultIdleTTL, r.IdleRoomTTL),
		ReclaimInterval:  parseDurationOr(relay.DefaultReclaimInterval, r.ReclaimInterval),
		MaxTextLength:    r.MaxTextLength,
	}
}

func (c *Config) GateConfig() gate.Config {
	return gate.Config{
		Mode:       gate.Mode(c.Access.Mode),
		Secret:     c.Access.Secret,
		SecretHash: c.Access.SecretHash,
		Issuer:     c.Access.Issuer,
		ClockSkew:  parseDurationOr(time.Minute, c.Access.ClockSkew),
	}
}

func (c *Config) WSConfig() ws.Config {
	return ws.Config{
		PingInterval:    parseDurationOr(15*time.Second, c.WS.PingInterval),
		WriteTimeout:    parseDurationOr(5*time.Second, c.WS.WriteTimeout),
		MaxMessageBytes: c.WS.MaxMessageBytes,
		SendQueue:       c.WS.SendQueue,
		AllowedOrigins:  c.HTTP.AllowedOrigins,
	}
}

func (c *Config) PostgresConfig() postgres.Config {
	p := c.Storage.Postgres
	return postgres.Config{
		DSN:             p.DSN,
		MaxConns:        p.MaxConns,
		MinConns:        p.MinConns,
		MaxConnLifetime: parseDurationOr(time.Hour, p.MaxConnLifetime),
		MaxConnIdleTime: parseDurationOr(30*time.Minute, p.MaxConnIdleTime),
		ApplicationName: c.Logging.Service,
	}
}

func (c *Config) RedisConfig() redisstore.Config {
	r := c.Storage.Redis
	return redisstore.Config{
		Addr:      r.Addr,
		Password:  r.Password,
		DB:        r.DB,
		KeyPrefix: r.KeyPrefix,
		TTL:       parseDurationOr(0, r.TTL),
	}
}

// Timeouts of the HTTP server.
func (c *Config) HTTPTimeouts() (read, write, idle, shutdown time.Duration) {
	return parseDurationOr(10*time.Second, c.HTTP.ReadTimeout),
		parseDurationOr(15*time.Second, c.HTTP.WriteTimeout),
		parseDurationOr(60*time.Second, c.HTTP.IdleTimeout),
		parseDurationOr(10*time.Second, c.HTTP.ShutdownTimeout)
}

func (c *Config) GRPCCallTimeout() time.Duration {
	return parseDurationOr(10*time.Second, c.GRPC.CallTimeout)
}

// helper for duration fields
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
