package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/keys"
)

const tracerName = "github.com/StricklySoft/stricklysoft-access/pkg/token"

// Issued is a freshly signed token.
type Issued struct {
	Token     string
	ID        string
	Type      Type
	ExpiresAt time.Time
}

// Option configures an [Issuer] or [Verifier].
type Option func(*options)

type options struct {
	now    func() time.Time
	newID  func() string
	tracer trace.Tracer
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides the jti generator.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		newID:  uuid.NewString,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs access and refresh tokens. It is safe for concurrent use.
type Issuer struct {
	keys *keys.Material
	cfg  Config
	opts options
}

// NewIssuer creates an Issuer. It succeeds for verify-only key material
// so that a misconfigured deployment fails at the first issuance with
// SigningUnavailable rather than at construction; use
// [keys.Material.CanSign] to check up front.
func NewIssuer(material *keys.Material, cfg Config, opts ...Option) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{keys: material, cfg: cfg, opts: buildOptions(opts)}, nil
}

// IssueAccess signs an access token for claims. A non-positive ttl uses
// the configured AccessTTL. Issuer, audience, expiry, issue time, token
// id and type are always overwritten.
func (i *Issuer) IssueAccess(ctx context.Context, claims Claims, ttl time.Duration) (Issued, error) {
	if ttl <= 0 {
		ttl = i.cfg.AccessTTL
	}
	claims.Type = TypeAccess
	return i.sign(ctx, claims, ttl)
}

// IssueRefresh signs a refresh token carrying only the subject and email
// of claims.
func (i *Issuer) IssueRefresh(ctx context.Context, claims Claims) (Issued, error) {
	minimal := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: claims.Subject},
		Email:            claims.Email,
		Type:             TypeRefresh,
	}
	return i.sign(ctx, minimal, i.cfg.RefreshTTL)
}

func (i *Issuer) sign(ctx context.Context, claims Claims, ttl time.Duration) (Issued, error) {
	_, span := i.opts.tracer.Start(ctx, "token.Issue",
		trace.WithAttributes(attribute.String("token.type", string(claims.Type))))
	defer span.End()

	key, kid, ok := i.keys.SigningKey()
	if !ok {
		err := sserr.SigningUnavailable()
		finishSpan(span, err)
		return Issued{}, err
	}
	if claims.Subject == "" {
		err := sserr.New(sserr.CodeValidationRequired, "token: subject is required")
		finishSpan(span, err)
		return Issued{}, err
	}

	now := i.opts.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims.ID = i.opts.newID()
	claims.Issuer = i.cfg.Issuer
	claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.NotBefore = nil

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	tok.Header["kid"] = kid

	signed, err := tok.SignedString(key)
	if err != nil {
		wrapped := sserr.Wrap(err, sserr.CodeInternal, "token: failed to sign token")
		finishSpan(span, wrapped)
		return Issued{}, wrapped
	}

	span.SetAttributes(attribute.String("token.kid", kid))
	return Issued{Token: signed, ID: claims.ID, Type: claims.Type, ExpiresAt: expiresAt}, nil
}

func finishSpan(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
