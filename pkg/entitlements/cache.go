package entitlements

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/metrics"
)

const tracerName = "github.com/StricklySoft/stricklysoft-access/pkg/entitlements"

// entry is replaced wholesale, never mutated after it is stored.
type entry struct {
	version   int64
	enabled   map[string]struct{}
	expiresAt time.Time
}

// Option configures a [Cache].
type Option func(*Cache)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides time.Now for entry expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Cache) { c.tracer = tp.Tracer(tracerName) }
}

// Cache is a per-process entitlement cache. Construct one per service
// instance; it is safe for concurrent use. Concurrent refreshes for the
// same organization may race, and the entry with the higher version wins.
type Cache struct {
	store   Store
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a Cache over store.
func New(store Store, cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		store:   store,
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if !cfg.Enforce {
		c.logger.Warn("entitlement enforcement is disabled; every check will be allowed")
	}
	return c, nil
}

// Enforcing reports whether the kill switch is off.
func (c *Cache) Enforcing() bool { return c.cfg.Enforce }

// CheckAccess reports whether orgID currently has key enabled.
func (c *Cache) CheckAccess(ctx context.Context, orgID string, tokenVersion *int64, key string) bool {
	return c.Authorize(ctx, orgID, tokenVersion, key) == nil
}

// Authorize is [Cache.CheckAccess] with the reason for a denial: an
// OrganizationSuspended error, or an EntitlementDenied error whose Cause
// is set when the denial came from a failed database read.
func (c *Cache) Authorize(ctx context.Context, orgID string, tokenVersion *int64, key string) (err error) {
	start := c.now()
	ctx, span := c.tracer.Start(ctx, "entitlements.Authorize", trace.WithAttributes(
		attribute.String("entitlements.organization_id", orgID),
		attribute.String("entitlements.key", key),
	))
	result := metrics.ResultAllowed
	defer func() {
		c.metrics.Decision(result, c.now().Sub(start))
		span.SetAttributes(attribute.String("entitlements.result", result))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !c.cfg.Enforce {
		result = metrics.ResultBypass
		return nil
	}
	if orgID == "" {
		result = metrics.ResultDenied
		return sserr.EntitlementDenied(orgID, key)
	}

	e, state, err := c.lookup(ctx, orgID, tokenVersion)
	switch {
	case err != nil && sserr.IsSuspended(err):
		result = metrics.ResultSuspended
		return err
	case err != nil:
		result = metrics.ResultError
		c.logger.ErrorContext(ctx, "entitlement check failed closed",
			"organization_id", orgID, "entitlement", key, "error", err)
		denied := sserr.EntitlementDenied(orgID, key)
		denied.Cause = err
		return denied
	}

	if _, ok := e.enabled[key]; !ok {
		result = metrics.ResultDenied
		return sserr.EntitlementDenied(orgID, key).WithDetail("entitlements_version", state.EntitlementsVersion)
	}
	return nil
}

// OrganizationActive performs only the metadata read and status check.
// It fails closed on database errors.
func (c *Cache) OrganizationActive(ctx context.Context, orgID string) error {
	if !c.cfg.Enforce {
		return nil
	}
	if orgID == "" {
		return sserr.New(sserr.CodeOrgContextRequired, "entitlements: organization id is required")
	}
	state, err := c.readState(ctx, orgID)
	if err != nil {
		c.logger.ErrorContext(ctx, "organization status check failed closed",
			"organization_id", orgID, "error", err)
		return sserr.Wrap(err, sserr.CodeAuthorizationDenied, "entitlements: organization status unavailable")
	}
	if state.Status != StatusActive {
		return sserr.OrganizationSuspended(orgID)
	}
	return nil
}

// Enabled returns the organization's enabled entitlements, sorted, and
// its current state, through the same protocol as [Cache.Authorize].
func (c *Cache) Enabled(ctx context.Context, orgID string) ([]string, OrganizationState, error) {
	e, state, err := c.lookup(ctx, orgID, nil)
	if err != nil {
		return nil, state, err
	}
	keys := make([]string, 0, len(e.enabled))
	for k := range e.enabled {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, state, nil
}

// Invalidate drops the entry for orgID. Correctness never depends on
// calling it; it saves one refresh after an in-process mutation.
func (c *Cache) Invalidate(orgID string) {
	c.mu.Lock()
	delete(c.entries, orgID)
	n := len(c.entries)
	c.mu.Unlock()
	c.metrics.CacheSize(n)
}

// Len returns the number of cached organizations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// lookup reads the organization state, then serves the cached entry or
// refreshes it when the stored version moved or the entry expired.
func (c *Cache) lookup(ctx context.Context, orgID string, tokenVersion *int64) (*entry, OrganizationState, error) {
	state, err := c.readState(ctx, orgID)
	if err != nil {
		return nil, state, err
	}
	if state.Status == StatusSuspended {
		return nil, state, sserr.OrganizationSuspended(orgID)
	}
	if !state.Status.Valid() {
		return nil, state, sserr.Internalf("entitlements: organization %q has unknown status %q", orgID, state.Status)
	}

	if tokenVersion != nil && *tokenVersion != state.EntitlementsVersion {
		c.metrics.StaleToken()
		c.logger.DebugContext(ctx, "token carries a stale entitlements version",
			"organization_id", orgID,
			"token_version", *tokenVersion,
			"current_version", state.EntitlementsVersion)
	}

	now := c.now()
	c.mu.RLock()
	cached := c.entries[orgID]
	c.mu.RUnlock()

	switch {
	case cached == nil:
		c.metrics.CacheLookup(metrics.CacheMiss)
	case cached.version != state.EntitlementsVersion:
		c.metrics.CacheLookup(metrics.CacheStale)
	case !now.Before(cached.expiresAt):
		c.metrics.CacheLookup(metrics.CacheExpired)
	default:
		c.metrics.CacheLookup(metrics.CacheHit)
		return cached, state, nil
	}

	fresh, err := c.refresh(ctx, orgID, state.EntitlementsVersion, now)
	if err != nil {
		return nil, state, err
	}
	return fresh, state, nil
}

func (c *Cache) readState(ctx context.Context, orgID string) (OrganizationState, error) {
	lctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()
	return c.store.OrganizationState(lctx, orgID)
}

func (c *Cache) refresh(ctx context.Context, orgID string, version int64, now time.Time) (*entry, error) {
	lctx, cancel := context.WithTimeout(ctx, c.cfg.LookupTimeout)
	defer cancel()

	keys, err := c.store.EnabledEntitlements(lctx, orgID)
	if err != nil {
		return nil, err
	}
	fresh := &entry{
		version:   version,
		enabled:   make(map[string]struct{}, len(keys)),
		expiresAt: now.Add(c.cfg.TTL),
	}
	for _, k := range keys {
		fresh.enabled[k] = struct{}{}
	}

	c.mu.Lock()
	if existing, ok := c.entries[orgID]; !ok || existing.version <= version {
		if !ok && len(c.entries) >= c.cfg.MaxEntries {
			c.evictLocked(now)
		}
		c.entries[orgID] = fresh
	}
	n := len(c.entries)
	c.mu.Unlock()

	c.metrics.CacheSize(n)
	return fresh, nil
}

// evictLocked drops expired entries, then the soonest-expiring entry if
// the cache is still full. The caller must hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
		}
	}
	if len(c.entries) < c.cfg.MaxEntries {
		return
	}
	var victim string
	var earliest time.Time
	for id, e := range c.entries {
		if victim == "" || e.expiresAt.Before(earliest) {
			victim, earliest = id, e.expiresAt
		}
	}
	delete(c.entries, victim)
}
