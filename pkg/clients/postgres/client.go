// Package postgres is the traced pgx client behind the accounts
// directory: users, organizations, memberships, and entitlement grants.
//
// Every call opens a client span carrying db.system, db.name, and a
// truncated db.statement. Errors come back as *sserr.Error: timeouts and
// cancellations as TIMEOUT_002, unique violations as CONF_002, and
// everything else as INT_002.
//
// Tests inject pgxmock through [NewFromPool]:
//
//	mock, _ := pgxmock.NewPool()
//	client := postgres.NewFromPool(mock, nil)
package postgres

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-access/pkg/clients/postgres"

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Pool is the subset of *pgxpool.Pool the client uses. pgxmock's pool
// satisfies it too.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Option configures a [Client].
type Option func(*Client)

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// Client wraps a [Pool] with tracing and error classification. It is
// safe for concurrent use.
type Client struct {
	pool         Pool
	tracer       trace.Tracer
	databaseName string
}

// NewClient validates cfg, opens a pool, and pings it.
func NewClient(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat, "postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: failed to connect to database")
	}

	dbName := cfg.Database
	if cfg.URI != "" {
		if u, parseErr := url.Parse(cfg.URI); parseErr == nil {
			dbName = strings.TrimPrefix(u.Path, "/")
		}
	}
	return newClient(pool, dbName, opts), nil
}

// NewFromPool wraps an existing pool. cfg may be nil; only its Database
// field is used, for span attributes.
func NewFromPool(pool Pool, cfg *Config, opts ...Option) *Client {
	var dbName string
	if cfg != nil {
		dbName = cfg.Database
	}
	return newClient(pool, dbName, opts)
}

func newClient(pool Pool, dbName string, opts []Option) *Client {
	c := &Client{pool: pool, tracer: otel.Tracer(tracerName), databaseName: dbName}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query runs a statement that returns rows. The caller closes the rows.
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := c.startSpan(ctx, "Query", sql)
	rows, err := c.pool.Query(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "postgres: query failed")
	}
	return rows, nil
}

// QueryRow runs a statement that returns at most one row. Errors are
// deferred to Scan, so the span covers only execution.
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, span := c.startSpan(ctx, "QueryRow", sql)
	defer span.End()
	return c.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := c.startSpan(ctx, "Exec", sql)
	tag, err := c.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, wrapError(err, "postgres: exec failed")
	}
	return tag, nil
}

// InTx runs fn inside a transaction, committing if fn returns nil and
// rolling back otherwise. Errors from fn are returned unchanged.
func (c *Client) InTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	ctx, span := c.startSpan(ctx, "Transaction", "BEGIN")
	defer func() { finishSpan(span, err) }()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return wrapError(err, "postgres: begin transaction failed")
	}
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			span.AddEvent("rollback failed", trace.WithAttributes(attribute.String("error", rbErr.Error())))
		}
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return wrapError(err, "postgres: commit failed")
	}
	return nil
}

// Health pings the database, applying DefaultHealthTimeout when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := c.startSpan(ctx, "Health", "SELECT 1")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	err := c.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (c *Client) Close() { c.pool.Close() }

func (c *Client) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.name", c.databaseName),
			attribute.String("db.statement", truncateSQL(sql)),
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

// wrapError classifies a pgx error.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sserr.Wrap(err, sserr.CodeConflictAlreadyExists, message).
			WithDetail("constraint", pgErr.ConstraintName)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}

// WrapError is wrapError for statements run on a pgx.Tx inside
// [Client.InTx], which bypass the client's own classification.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return wrapError(err, message)
}
