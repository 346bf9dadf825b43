package token

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/StricklySoft/stricklysoft-access/internal/testutil"
	"github.com/StricklySoft/stricklysoft-access/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
	"github.com/StricklySoft/stricklysoft-access/pkg/keys"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var tokenTestEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type tokenTestClock struct{ now time.Time }

func (c *tokenTestClock) Now() time.Time { return c.now }

func tokenTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Issuer = fixtures.Issuer
	cfg.Audience = fixtures.Audience
	return cfg
}

func tokenTestPair(t *testing.T, clock *tokenTestClock) (*Issuer, *Verifier) {
	t.Helper()
	material := keys.FromKeys(testutil.RSAKey(t), nil, fixtures.KeyID)
	iss, err := NewIssuer(material, tokenTestConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	ver, err := NewVerifier(material, tokenTestConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	return iss, ver
}

func tokenTestScopedClaims() Claims {
	version := int64(3)
	c := Claims{
		RegisteredClaims:    jwt.RegisteredClaims{Subject: fixtures.UserID},
		Email:               fixtures.UserEmail,
		Role:                "Standard",
		OrganizationRole:    "Member",
		EntitlementsVersion: &version,
		Services:            []string{fixtures.EntitlementDaily},
	}
	c.SetOrganization(fixtures.OrgID)
	return c
}

// tokenTestSignRaw signs arbitrary claims with the given key, bypassing
// the Issuer so tests can produce tokens it would never mint.
func tokenTestSignRaw(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func tokenTestBaseMap(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  fixtures.UserID,
		"iss":  fixtures.Issuer,
		"aud":  fixtures.Audience,
		"exp":  now.Add(time.Minute).Unix(),
		"iat":  now.Unix(),
		"type": "access",
	}
}

// ---------------------------------------------------------------------------
// Round trip
// ---------------------------------------------------------------------------

func TestIssueAccess_VerifyRoundTrip(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	in := tokenTestScopedClaims()
	issued, err := iss.IssueAccess(ctx, in, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TypeAccess, issued.Type)
	assert.Equal(t, tokenTestEpoch.Add(5*time.Minute), issued.ExpiresAt)
	assert.NotEmpty(t, issued.ID)

	got, err := ver.Verify(ctx, issued.Token, TypeAccess)
	require.NoError(t, err)

	assert.Equal(t, in.Subject, got.Subject)
	assert.Equal(t, in.Email, got.Email)
	assert.Equal(t, in.Role, got.Role)
	assert.Equal(t, in.OrganizationRole, got.OrganizationRole)
	org, ok := got.Organization()
	require.True(t, ok)
	assert.Equal(t, fixtures.OrgID, org)
	require.NotNil(t, got.EntitlementsVersion)
	assert.Equal(t, int64(3), *got.EntitlementsVersion)
	assert.Equal(t, in.Services, got.Services)

	assert.Equal(t, fixtures.Issuer, got.Issuer)
	assert.Equal(t, jwt.ClaimStrings{fixtures.Audience}, got.Audience)
	assert.Equal(t, TypeAccess, got.Type)
	assert.Equal(t, issued.ID, got.ID)
	assert.WithinDuration(t, issued.ExpiresAt, got.ExpiresAt.Time, 0)
}

func TestIssueAccess_KidHeader(t *testing.T) {
	t.Parallel()
	iss, _ := tokenTestPair(t, &tokenTestClock{now: tokenTestEpoch})
	issued, err := iss.IssueAccess(context.Background(), tokenTestScopedClaims(), 0)
	require.NoError(t, err)

	tok, _, err := jwt.NewParser().ParseUnverified(issued.Token, &Claims{})
	require.NoError(t, err)
	assert.Equal(t, fixtures.KeyID, tok.Header["kid"])
	assert.Equal(t, "RS256", tok.Header["alg"])
	assert.Equal(t, tokenTestEpoch.Add(DefaultConfig().AccessTTL), issued.ExpiresAt)
}

func TestIssueAccess_UnscopedClaims(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueAccess(ctx, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: fixtures.UserID},
		Email:            fixtures.UserEmail,
	}, 0)
	require.NoError(t, err)

	got, err := ver.Verify(ctx, issued.Token, TypeAccess)
	require.NoError(t, err)
	_, ok := got.Organization()
	assert.False(t, ok)
	assert.Nil(t, got.EntitlementsVersion)
}

func TestIssueRefresh_MinimalClaims(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueRefresh(ctx, tokenTestScopedClaims())
	require.NoError(t, err)
	assert.Equal(t, tokenTestEpoch.Add(DefaultConfig().RefreshTTL), issued.ExpiresAt)

	got, err := ver.Verify(ctx, issued.Token, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, fixtures.UserID, got.Subject)
	assert.Equal(t, fixtures.UserEmail, got.Email)
	assert.Empty(t, got.Role)
	assert.Empty(t, got.OrganizationRole)
	assert.Nil(t, got.OrganizationID)
	assert.Nil(t, got.EntitlementsVersion)
	assert.Empty(t, got.Services)

	payload := strings.Split(issued.Token, ".")[1]
	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(decoded), "organization_id")
	assert.NotContains(t, string(decoded), "role")
}

func TestIssue_RequiresSubject(t *testing.T) {
	t.Parallel()
	iss, _ := tokenTestPair(t, &tokenTestClock{now: tokenTestEpoch})
	_, err := iss.IssueAccess(context.Background(), Claims{Email: fixtures.UserEmail}, 0)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}

// ---------------------------------------------------------------------------
// Failure outcomes
// ---------------------------------------------------------------------------

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueAccess(ctx, tokenTestScopedClaims(), time.Minute)
	require.NoError(t, err)

	clock.now = issued.ExpiresAt.Add(DefaultConfig().ClockSkew + time.Second)
	got, err := ver.Verify(ctx, issued.Token, TypeAccess)
	assert.Nil(t, got)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationExpired)
	assert.Equal(t, sserr.ReasonTokenExpired, sserr.ReasonOf(err))
}

func TestVerify_WithinLeeway(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueAccess(ctx, tokenTestScopedClaims(), time.Minute)
	require.NoError(t, err)
	clock.now = issued.ExpiresAt.Add(10 * time.Second)
	_, err = ver.Verify(ctx, issued.Token, TypeAccess)
	assert.NoError(t, err)
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueAccess(ctx, tokenTestScopedClaims(), 0)
	require.NoError(t, err)
	parts := strings.Split(issued.Token, ".")

	payload := []byte(parts[1])
	for i := range payload {
		altered := append([]byte(nil), payload...)
		if altered[i] == 'A' {
			altered[i] = 'B'
		} else {
			altered[i] = 'A'
		}
		raw := parts[0] + "." + string(altered) + "." + parts[2]
		got, err := ver.Verify(ctx, raw, TypeAccess)
		assert.Nil(t, got)
		if !testutil.AssertErrorCode(t, err, sserr.CodeAuthenticationInvalid, "byte %d", i) {
			return
		}
	}
}

func TestVerify_RefreshRejectedAsAccess(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		issued, err := iss.IssueRefresh(ctx, tokenTestScopedClaims())
		require.NoError(t, err)
		_, err = ver.Verify(ctx, issued.Token, TypeAccess)
		testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
	}

	access, err := iss.IssueAccess(ctx, tokenTestScopedClaims(), 0)
	require.NoError(t, err)
	_, err = ver.Verify(ctx, access.Token, TypeRefresh)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

func TestVerify_ExpiredRefreshAsAccessIsInvalid(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueRefresh(ctx, tokenTestScopedClaims())
	require.NoError(t, err)
	clock.now = issued.ExpiresAt.Add(time.Hour)

	_, err = ver.Verify(ctx, issued.Token, TypeAccess)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

func TestVerify_InvalidTokens(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	alt := testutil.AltRSAKey(t)
	now := tokenTestEpoch

	without := func(claim string) jwt.MapClaims {
		m := tokenTestBaseMap(now)
		delete(m, claim)
		return m
	}
	with := func(claim string, value any) jwt.MapClaims {
		m := tokenTestBaseMap(now)
		m[claim] = value
		return m
	}
	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenTestBaseMap(now))
	hmacToken, err := hmac.SignedString([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	none := jwt.NewWithClaims(jwt.SigningMethodNone, tokenTestBaseMap(now))
	noneToken, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	expiredWrongIssuer := with("iss", "https://evil.example")
	expiredWrongIssuer["exp"] = now.Add(-time.Hour).Unix()
	expiredWrongIssuer["iat"] = now.Add(-2 * time.Hour).Unix()

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"bearer only", "Bearer "},
		{"garbage", "not.a.jwt"},
		{"oversized", strings.Repeat("a", maxTokenSize+1)},
		{"wrong key", tokenTestSignRaw(t, alt, fixtures.KeyID, tokenTestBaseMap(now))},
		{"unknown kid", tokenTestSignRaw(t, key, "rotated-out", tokenTestBaseMap(now))},
		{"non-string kid", func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodRS256, tokenTestBaseMap(now))
			tok.Header["kid"] = 7
			s, err := tok.SignedString(key)
			require.NoError(t, err)
			return s
		}()},
		{"hmac algorithm", hmacToken},
		{"none algorithm", noneToken},
		{"missing sub", tokenTestSignRaw(t, key, fixtures.KeyID, without("sub"))},
		{"missing exp", tokenTestSignRaw(t, key, fixtures.KeyID, without("exp"))},
		{"missing iss", tokenTestSignRaw(t, key, fixtures.KeyID, without("iss"))},
		{"missing aud", tokenTestSignRaw(t, key, fixtures.KeyID, without("aud"))},
		{"missing type", tokenTestSignRaw(t, key, fixtures.KeyID, without("type"))},
		{"unknown type", tokenTestSignRaw(t, key, fixtures.KeyID, with("type", "session"))},
		{"wrong issuer", tokenTestSignRaw(t, key, fixtures.KeyID, with("iss", "https://evil.example"))},
		{"wrong audience", tokenTestSignRaw(t, key, fixtures.KeyID, with("aud", "other-audience"))},
		{"empty organization", tokenTestSignRaw(t, key, fixtures.KeyID, with("organization_id", ""))},
		{"not yet valid", tokenTestSignRaw(t, key, fixtures.KeyID, with("nbf", now.Add(time.Hour).Unix()))},
		{"issued in future", tokenTestSignRaw(t, key, fixtures.KeyID, with("iat", now.Add(time.Hour).Unix()))},
		{"expired with wrong issuer", tokenTestSignRaw(t, key, fixtures.KeyID, expiredWrongIssuer)},
	}

	material := keys.FromKeys(key, nil, fixtures.KeyID)
	ver, err := NewVerifier(material, tokenTestConfig(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ver.Verify(context.Background(), tt.raw, TypeAccess)
			assert.Nil(t, got)
			testutil.AssertErrorCode(t, err, sserr.CodeAuthenticationInvalid)
			assert.Equal(t, sserr.ReasonNotAuthenticated, sserr.ReasonOf(err))
		})
	}
}

func TestVerify_BearerPrefixAndAudience(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	iss, ver := tokenTestPair(t, clock)
	ctx := context.Background()

	issued, err := iss.IssueAccess(ctx, tokenTestScopedClaims(), 0)
	require.NoError(t, err)

	for _, raw := range []string{"Bearer " + issued.Token, "bearer  " + issued.Token, "  " + issued.Token + "\n"} {
		_, err := ver.Verify(ctx, raw, TypeAccess)
		assert.NoError(t, err, "raw=%q", raw)
	}

	_, err = ver.VerifyAudience(ctx, issued.Token, "another-service", TypeAccess)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)
}

// ---------------------------------------------------------------------------
// Key availability and rotation
// ---------------------------------------------------------------------------

func TestIssue_VerifyOnlyServiceCannotSign(t *testing.T) {
	t.Parallel()
	material := keys.FromKeys(nil, &testutil.RSAKey(t).PublicKey, fixtures.KeyID)
	iss, err := NewIssuer(material, tokenTestConfig())
	require.NoError(t, err)

	_, err = iss.IssueAccess(context.Background(), tokenTestScopedClaims(), 0)
	testutil.RequireErrorCode(t, err, sserr.CodeSigningUnavailable)
	_, err = iss.IssueRefresh(context.Background(), tokenTestScopedClaims())
	testutil.RequireErrorCode(t, err, sserr.CodeSigningUnavailable)
}

func TestVerify_NoPublicKey(t *testing.T) {
	t.Parallel()
	ver, err := NewVerifier(keys.FromKeys(nil, nil, fixtures.KeyID), tokenTestConfig())
	require.NoError(t, err)
	_, err = ver.Verify(context.Background(), "Bearer x.y.z", TypeAccess)
	testutil.RequireErrorCode(t, err, sserr.CodeVerificationUnavailable)

	nilVer, err := NewVerifier(nil, tokenTestConfig())
	require.NoError(t, err)
	_, err = nilVer.Verify(context.Background(), "x.y.z", TypeAccess)
	testutil.RequireErrorCode(t, err, sserr.CodeVerificationUnavailable)
}

func TestVerify_RotatedKey(t *testing.T) {
	t.Parallel()
	clock := &tokenTestClock{now: tokenTestEpoch}
	oldKey, newKey := testutil.AltRSAKey(t), testutil.RSAKey(t)

	oldIssuer, err := NewIssuer(keys.FromKeys(oldKey, nil, fixtures.AltKeyID), tokenTestConfig(), WithClock(clock.Now))
	require.NoError(t, err)
	issued, err := oldIssuer.IssueAccess(context.Background(), tokenTestScopedClaims(), 0)
	require.NoError(t, err)

	material := keys.FromKeys(newKey, nil, fixtures.KeyID)
	ver, err := NewVerifier(material, tokenTestConfig(), WithClock(clock.Now))
	require.NoError(t, err)

	_, err = ver.Verify(context.Background(), issued.Token, TypeAccess)
	testutil.RequireErrorCode(t, err, sserr.CodeAuthenticationInvalid)

	require.NoError(t, material.AddVerificationKey(fixtures.AltKeyID, testutil.PublicPEM(t, &oldKey.PublicKey)))
	_, err = ver.Verify(context.Background(), issued.Token, TypeAccess)
	assert.NoError(t, err)
}

func TestVerify_MissingKidUsesPrimary(t *testing.T) {
	t.Parallel()
	key := testutil.RSAKey(t)
	ver, err := NewVerifier(keys.FromKeys(nil, &key.PublicKey, fixtures.KeyID), tokenTestConfig(),
		WithClock(func() time.Time { return tokenTestEpoch }))
	require.NoError(t, err)

	raw := tokenTestSignRaw(t, key, "", tokenTestBaseMap(tokenTestEpoch))
	got, err := ver.Verify(context.Background(), raw, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, fixtures.UserID, got.Subject)
}

// ---------------------------------------------------------------------------
// Config and tracing
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	mutate := map[string]func(*Config){
		"issuer":   func(c *Config) { c.Issuer = "" },
		"audience": func(c *Config) { c.Audience = "" },
		"access":   func(c *Config) { c.AccessTTL = 0 },
		"refresh":  func(c *Config) { c.RefreshTTL = time.Minute },
		"skew":     func(c *Config) { c.ClockSkew = time.Hour },
		"neg skew": func(c *Config) { c.ClockSkew = -time.Second },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			fn(&cfg)
			assert.True(t, sserr.IsValidation(cfg.Validate()))
			_, err := NewIssuer(nil, cfg)
			assert.Error(t, err)
		})
	}
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestClaims_HasService(t *testing.T) {
	t.Parallel()
	c := &Claims{Services: []string{"daily"}}
	assert.True(t, c.HasService("daily"))
	assert.False(t, c.HasService("finance"))
	c.Services = append(c.Services, WildcardService)
	assert.True(t, c.HasService("finance"))

	c.SetOrganization("")
	_, ok := c.Organization()
	assert.False(t, ok)
}

func TestVerify_RecordsSpans(t *testing.T) {
	t.Parallel()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	clock := &tokenTestClock{now: tokenTestEpoch}
	material := keys.FromKeys(testutil.RSAKey(t), nil, fixtures.KeyID)
	iss, err := NewIssuer(material, tokenTestConfig(), WithClock(clock.Now), WithTracerProvider(tp))
	require.NoError(t, err)
	ver, err := NewVerifier(material, tokenTestConfig(), WithClock(clock.Now), WithTracerProvider(tp))
	require.NoError(t, err)

	issued, err := iss.IssueAccess(context.Background(), tokenTestScopedClaims(), 0)
	require.NoError(t, err)
	_, err = ver.Verify(context.Background(), issued.Token, TypeAccess)
	require.NoError(t, err)
	_, err = ver.Verify(context.Background(), "garbage", TypeAccess)
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "token.Issue", spans[0].Name)
	assert.Equal(t, "token.Verify", spans[1].Name)
	assert.Equal(t, "token.Verify", spans[2].Name)
	assert.NotEmpty(t, spans[2].Events, "failed verification should record an error event")
}
