package redis

import (
	"strconv"
	"time"

	"github.com/StricklySoft/stricklysoft-access/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Defaults for [Config].
const (
	DefaultHost          = "redis.databases.svc.cluster.local"
	DefaultPort          = 6379
	DefaultPoolSize      = 10
	DefaultMaxRetries    = 2
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = time.Second
	DefaultWriteTimeout  = time.Second
	DefaultHealthTimeout = 2 * time.Second
)

// Config holds the connection settings for the revocation store.
// Timeouts are short: a slow revocation lookup is treated as a failure.
type Config struct {
	URI          string        `json:"uri,omitempty" yaml:"uri" env:"REDIS_URI"`
	Host         string        `json:"host" yaml:"host" env:"REDIS_HOST" envDefault:"redis.databases.svc.cluster.local"`
	Port         int           `json:"port" yaml:"port" env:"REDIS_PORT" envDefault:"6379"`
	DB           int           `json:"db" yaml:"db" env:"REDIS_DB"`
	Password     config.Secret `json:"-" yaml:"password" env:"REDIS_PASSWORD"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"REDIS_POOL_SIZE" envDefault:"10"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" env:"REDIS_MAX_RETRIES" envDefault:"2"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"REDIS_READ_TIMEOUT" envDefault:"1s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"REDIS_WRITE_TIMEOUT" envDefault:"1s"`
	TLSEnabled   bool          `json:"tls_enabled" yaml:"tls_enabled" env:"REDIS_TLS_ENABLED"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Addr returns host:port.
func (c *Config) Addr() string { return c.Host + ":" + strconv.Itoa(c.Port) }

// Validate fills zero fields with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.URI != "" {
		return nil
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	switch {
	case c.Port < 1 || c.Port > 65535:
		return sserr.Newf(sserr.CodeValidationRange, "redis: port must be between 1 and 65535, got %d", c.Port)
	case c.DB < 0 || c.DB > 15:
		return sserr.Newf(sserr.CodeValidationRange, "redis: db must be between 0 and 15, got %d", c.DB)
	case c.PoolSize < 1:
		return sserr.Newf(sserr.CodeValidationRange, "redis: pool_size must be positive, got %d", c.PoolSize)
	case c.MaxRetries < 0:
		return sserr.Newf(sserr.CodeValidationRange, "redis: max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
