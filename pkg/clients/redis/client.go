// Package redis is the traced go-redis client behind the refresh token
// revocation list. It exposes only the commands revocation needs.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-access/pkg/clients/redis"

// Cmdable is the subset of *redis.Client used here. Tests substitute a
// testify mock.
type Cmdable interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// Client wraps a [Cmdable] with tracing and error classification.
type Client struct {
	cmdable Cmdable
	tracer  trace.Tracer
	dbIndex int
}

// NewClient validates cfg, connects, and pings the server.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var ropts *redis.Options
	if cfg.URI != "" {
		var err error
		if ropts, err = redis.ParseURL(cfg.URI); err != nil {
			return nil, sserr.Wrap(err, sserr.CodeValidationFormat, "redis: failed to parse connection URI").
				WithDetail(sserr.DetailVariable, "REDIS_URI")
		}
	} else {
		ropts = &redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password.Value(),
			DB:       cfg.DB,
		}
		if cfg.TLSEnabled {
			ropts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	ropts.PoolSize = cfg.PoolSize
	ropts.MaxRetries = cfg.MaxRetries
	ropts.DialTimeout = cfg.DialTimeout
	ropts.ReadTimeout = cfg.ReadTimeout
	ropts.WriteTimeout = cfg.WriteTimeout

	rdb := redis.NewClient(ropts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: failed to connect to server")
	}
	return newClient(rdb, ropts.DB, opts), nil
}

// NewFromClient wraps an existing Cmdable. cfg may be nil.
func NewFromClient(cmdable Cmdable, cfg *Config, opts ...Option) *Client {
	var db int
	if cfg != nil {
		db = cfg.DB
	}
	return newClient(cmdable, db, opts)
}

func newClient(cmdable Cmdable, db int, opts []Option) *Client {
	c := &Client{cmdable: cmdable, tracer: otel.Tracer(tracerName), dbIndex: db}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key with the given expiration.
func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	ctx, span := c.startSpan(ctx, "Set", "SET")
	err := c.cmdable.Set(ctx, key, value, expiration).Err()
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "redis: set failed")
	}
	return nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := c.startSpan(ctx, "Exists", "EXISTS")
	n, err := c.cmdable.Exists(ctx, key).Result()
	finishSpan(span, err)
	if err != nil {
		return false, wrapError(err, "redis: exists failed")
	}
	return n > 0, nil
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := c.startSpan(ctx, "Del", "DEL")
	n, err := c.cmdable.Del(ctx, keys...).Result()
	finishSpan(span, err)
	if err != nil {
		return 0, wrapError(err, "redis: del failed")
	}
	return n, nil
}

// Health pings the server, applying DefaultHealthTimeout when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "PING")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	err := c.cmdable.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "redis: health check failed")
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error { return c.cmdable.Close() }

// Key values are never recorded; they carry token identifiers.
func (c *Client) startSpan(ctx context.Context, op, command string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.Int("db.redis.database_index", c.dbIndex),
			attribute.String("db.operation", command),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDependency, message)
	}
	return sserr.Wrap(err, sserr.CodeUnavailableDependency, message)
}
