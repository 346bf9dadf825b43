package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/keys"
)

// maxTokenSize bounds the input accepted by Verify.
const maxTokenSize = 8 * 1024

const bearerPrefix = "bearer "

var (
	errEmptyToken    = errors.New("token is empty")
	errOversized     = errors.New("token exceeds maximum size")
	errUnknownKeyID  = errors.New("token kid is not a registered verification key")
	errWrongType     = errors.New("token type does not match the expected type")
	errKidNotAString = errors.New("token kid header is not a string")
)

// Verifier checks tokens against the configured public keys, issuer and
// audience. It is safe for concurrent use.
type Verifier struct {
	keys *keys.Material
	cfg  Config
	opts options
}

// NewVerifier creates a Verifier. Key material without a public key is
// accepted; Verify then fails with VerificationUnavailable.
func NewVerifier(material *keys.Material, cfg Config, opts ...Option) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{keys: material, cfg: cfg, opts: buildOptions(opts)}, nil
}

// Verify checks raw against the configured audience and requires the
// given token type.
func (v *Verifier) Verify(ctx context.Context, raw string, want Type) (*Claims, error) {
	return v.VerifyAudience(ctx, raw, v.cfg.Audience, want)
}

// VerifyAudience is [Verifier.Verify] with an explicit expected audience.
// An optional "Bearer " prefix is stripped. The signature algorithm is
// pinned to RS256, and exp, iss, aud and sub must all be present.
func (v *Verifier) VerifyAudience(ctx context.Context, raw, audience string, want Type) (*Claims, error) {
	_, span := v.opts.tracer.Start(ctx, "token.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("token.expected_type", string(want)))

	claims, err := v.verify(raw, audience, want)
	if err != nil {
		finishSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("token.subject", claims.Subject))
	return claims, nil
}

func (v *Verifier) verify(raw, audience string, want Type) (*Claims, error) {
	if !v.keys.CanVerify() {
		return nil, sserr.VerificationUnavailable()
	}

	raw = StripBearer(raw)
	switch {
	case raw == "":
		return nil, sserr.TokenInvalid(errEmptyToken)
	case len(raw) > maxTokenSize:
		return nil, sserr.TokenInvalid(errOversized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{keys.Algorithm}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithTimeFunc(v.opts.now),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil {
		classified := classify(err)
		// An expired token of the wrong type is still the wrong type.
		if classified.Code == sserr.CodeAuthenticationExpired && claims.Type != want {
			return nil, sserr.TokenInvalid(errors.Join(errWrongType, err))
		}
		return nil, classified
	}
	if claims.Type != want {
		return nil, sserr.TokenInvalid(fmt.Errorf("%w: got %q, want %q", errWrongType, claims.Type, want))
	}
	return claims, nil
}

func (v *Verifier) keyFunc(tok *jwt.Token) (any, error) {
	var kid string
	if raw, ok := tok.Header["kid"]; ok {
		s, isString := raw.(string)
		if !isString {
			return nil, errKidNotAString
		}
		kid = s
	}
	key, ok := v.keys.VerificationKey(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownKeyID, kid)
	}
	return key, nil
}

// classify maps parser errors onto the two failure outcomes. Every
// invalidity is checked before expiry, so a token that is both expired
// and otherwise invalid is reported as invalid.
func classify(err error) *sserr.Error {
	invalid := []error{
		jwt.ErrTokenMalformed,
		jwt.ErrTokenUnverifiable,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenRequiredClaimMissing,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenInvalidId,
		errInvalidShape,
	}
	for _, target := range invalid {
		if errors.Is(err, target) {
			return sserr.TokenInvalid(err)
		}
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return sserr.TokenExpired(err)
	}
	return sserr.TokenInvalid(err)
}

// StripBearer removes surrounding whitespace and a case-insensitive
// "Bearer " prefix.
func StripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= len(bearerPrefix) && strings.EqualFold(raw[:len(bearerPrefix)], bearerPrefix) {
		raw = strings.TrimSpace(raw[len(bearerPrefix):])
	}
	return raw
}
