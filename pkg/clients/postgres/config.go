package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/StricklySoft/stricklysoft-access/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// maxStatementLen bounds db.statement span attributes.
const maxStatementLen = 100

// Defaults applied by [DefaultConfig] and by [Config.Validate] for zero
// fields.
const (
	DefaultHost           = "postgres.databases.svc.cluster.local"
	DefaultPort           = 5432
	DefaultDatabase       = "accounts"
	DefaultUser           = "accounts"
	DefaultConnLifetime   = time.Hour
	DefaultConnectTimeout = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
)

// Pool size defaults.
const (
	DefaultMaxConns int32 = 20
	DefaultMinConns int32 = 2
)

// SSLMode is a libpq sslmode value.
type SSLMode string

const (
	SSLModeDisable    SSLMode = "disable"
	SSLModePrefer     SSLMode = "prefer"
	SSLModeRequire    SSLMode = "require"
	SSLModeVerifyCA   SSLMode = "verify-ca"
	SSLModeVerifyFull SSLMode = "verify-full"
)

// Valid reports whether m is a supported mode.
func (m SSLMode) Valid() bool {
	switch m {
	case SSLModeDisable, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull:
		return true
	}
	return false
}

// Config holds the connection settings for the accounts directory
// database. URI, when set, takes precedence over the discrete fields.
type Config struct {
	URI             string        `json:"uri,omitempty" yaml:"uri" env:"POSTGRES_URI"`
	Host            string        `json:"host" yaml:"host" env:"POSTGRES_HOST" envDefault:"postgres.databases.svc.cluster.local"`
	Port            int           `json:"port" yaml:"port" env:"POSTGRES_PORT" envDefault:"5432"`
	Database        string        `json:"database" yaml:"database" env:"POSTGRES_DATABASE" envDefault:"accounts"`
	User            string        `json:"user" yaml:"user" env:"POSTGRES_USER" envDefault:"accounts"`
	Password        config.Secret `json:"-" yaml:"password" env:"POSTGRES_PASSWORD"`
	SSLMode         SSLMode       `json:"ssl_mode" yaml:"ssl_mode" env:"POSTGRES_SSLMODE" envDefault:"require"`
	MaxConns        int32         `json:"max_conns" yaml:"max_conns" env:"POSTGRES_MAX_CONNS" envDefault:"20"`
	MinConns        int32         `json:"min_conns" yaml:"min_conns" env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `json:"max_conn_lifetime" yaml:"max_conn_lifetime" env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"1h"`
	ConnectTimeout  time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"POSTGRES_CONNECT_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Database:        DefaultDatabase,
		User:            DefaultUser,
		SSLMode:         SSLModeRequire,
		MaxConns:        DefaultMaxConns,
		MinConns:        DefaultMinConns,
		MaxConnLifetime: DefaultConnLifetime,
		ConnectTimeout:  DefaultConnectTimeout,
	}
}

// Validate fills zero pool settings with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.MaxConns == 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns == 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = DefaultConnLifetime
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.MaxConns < c.MinConns {
		return sserr.Newf(sserr.CodeValidationRange,
			"postgres: max_conns (%d) must be >= min_conns (%d)", c.MaxConns, c.MinConns)
	}

	if c.URI != "" {
		if _, err := url.Parse(c.URI); err != nil {
			return sserr.Wrap(err, sserr.CodeValidationFormat, "postgres: URI is invalid").
				WithDetail(sserr.DetailVariable, "POSTGRES_URI")
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = SSLModeRequire
	}
	switch {
	case c.Port < 1 || c.Port > 65535:
		return sserr.Newf(sserr.CodeValidationRange, "postgres: port must be between 1 and 65535, got %d", c.Port)
	case c.Database == "":
		return sserr.New(sserr.CodeValidationRequired, "postgres: database must not be empty").
			WithDetail(sserr.DetailVariable, "POSTGRES_DATABASE")
	case c.User == "":
		return sserr.New(sserr.CodeValidationRequired, "postgres: user must not be empty").
			WithDetail(sserr.DetailVariable, "POSTGRES_USER")
	case !c.SSLMode.Valid():
		return sserr.Newf(sserr.CodeValidationFormat, "postgres: ssl_mode %q is not valid", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the URI, or builds one from the discrete fields.
func (c *Config) ConnectionString() string {
	if c.URI != "" {
		return c.URI
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password.Value()),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", string(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncateSQL(sql string) string {
	if len(sql) <= maxStatementLen {
		return sql
	}
	return sql[:maxStatementLen] + "..."
}
