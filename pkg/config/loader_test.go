package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// ===========================================================================
// Fixtures
// ===========================================================================

type testSecret string

func (s testSecret) String() string { return "[REDACTED]" }

type cacheSection struct {
	Enforce    bool          `env:"ENFORCE" envDefault:"true" yaml:"enforce" json:"enforce"`
	TTL        time.Duration `env:"TTL" envDefault:"5m" yaml:"ttl" json:"ttl"`
	MaxEntries int           `env:"MAX_ENTRIES" envDefault:"100" yaml:"max_entries" json:"max_entries"`
}

type serviceConfig struct {
	Issuer     string       `env:"ISSUER" envDefault:"accounts" yaml:"issuer" json:"issuer"`
	PublicKey  testSecret   `env:"PUBLIC_KEY" yaml:"public_key" json:"public_key"`
	Audience   []string     `env:"AUDIENCE" yaml:"audience" json:"audience"`
	LoginRPS   float64      `env:"LOGIN_RPS" envDefault:"0.5" yaml:"login_rps" json:"login_rps"`
	LoginBurst uint         `env:"LOGIN_BURST" envDefault:"5" yaml:"login_burst" json:"login_burst"`
	Cache      cacheSection `env:"ENTITLEMENTS" yaml:"entitlements" json:"entitlements"`
}

type requiredConfig struct {
	Name string `env:"NAME" required:"true"`
}

type validatedSection struct {
	Port int `env:"PORT" envDefault:"0"`
}

func (v *validatedSection) Validate() error {
	if v.Port == 0 {
		return errors.New("port must be set")
	}
	return nil
}

type outerConfig struct {
	Server validatedSection `env:"SERVER"`
}

type customErrConfig struct {
	Key string `env:"KEY"`
}

func (c customErrConfig) Validate() error {
	if c.Key == "" {
		return sserr.KeyConfiguration("KEY", "missing", nil)
	}
	return nil
}

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ===========================================================================
// Defaults and environment
// ===========================================================================

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Parallel()
	var cfg serviceConfig
	require.NoError(t, New().WithLookup(mapLookup(nil)).Load(&cfg))

	assert.Equal(t, "accounts", cfg.Issuer)
	assert.InDelta(t, 0.5, cfg.LoginRPS, 1e-9)
	assert.Equal(t, uint(5), cfg.LoginBurst)
	assert.True(t, cfg.Cache.Enforce)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
}

func TestLoad_EnvOverridesWithPrefixAndNesting(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"AUTH_ISSUER":               "https://accounts.example.com",
		"AUTH_AUDIENCE":             "finance, daily ,",
		"AUTH_ENTITLEMENTS_ENFORCE": "false",
		"AUTH_ENTITLEMENTS_TTL":     "30s",
	}
	var cfg serviceConfig
	require.NoError(t, New().WithEnvPrefix("auth").WithLookup(mapLookup(env)).Load(&cfg))

	assert.Equal(t, "https://accounts.example.com", cfg.Issuer)
	assert.Equal(t, []string{"finance", "daily"}, cfg.Audience)
	assert.False(t, cfg.Cache.Enforce)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Parallel()
	var cfg serviceConfig
	err := New().WithLookup(mapLookup(map[string]string{"ENTITLEMENTS_TTL": "soon"})).Load(&cfg)
	require.Error(t, err)
	assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration))
}

// ===========================================================================
// File sources
// ===========================================================================

func TestLoad_YAMLFileBeneathEnv(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "access.yaml", "issuer: from-file\nentitlements:\n  max_entries: 7\n")
	var cfg serviceConfig
	err := New().
		WithFile(path).
		WithLookup(mapLookup(map[string]string{"ISSUER": "from-env"})).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Issuer)
	assert.Equal(t, 7, cfg.Cache.MaxEntries)
}

func TestLoad_JSONFile(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, "access.json", `{"issuer":"json-issuer"}`)
	var cfg serviceConfig
	require.NoError(t, New().WithFile(path).WithLookup(mapLookup(nil)).Load(&cfg))
	assert.Equal(t, "json-issuer", cfg.Issuer)
}

func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
	}{
		{"traversal", "../etc/passwd.yaml"},
		{"extension", writeTemp(t, "access.toml", "issuer = 1")},
		{"malformed", writeTemp(t, "bad.yaml", "issuer: [unterminated")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg serviceConfig
			err := New().WithFile(tt.path).WithLookup(mapLookup(nil)).Load(&cfg)
			assert.True(t, sserr.HasCode(err, sserr.CodeInternalConfiguration), "got %v", err)
		})
	}
}

func TestLoad_MissingFilesIgnored(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var cfg serviceConfig
	err := New().
		WithFile(filepath.Join(dir, "absent.yaml")).
		WithDotEnv(filepath.Join(dir, ".env")).
		WithLookup(mapLookup(nil)).
		Load(&cfg)
	assert.NoError(t, err)
}

func TestLoad_DotEnvBeneathProcessEnv(t *testing.T) {
	t.Parallel()
	path := writeTemp(t, ".env", "ISSUER=dotenv-issuer\nPUBLIC_KEY=\"-----BEGIN PUBLIC KEY-----\\nAAAA\\n-----END PUBLIC KEY-----\"\nLOGIN_BURST=9\n")
	var cfg serviceConfig
	err := New().
		WithDotEnv(path).
		WithLookup(mapLookup(map[string]string{"LOGIN_BURST": "3"})).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, "dotenv-issuer", cfg.Issuer)
	assert.Contains(t, string(cfg.PublicKey), "BEGIN PUBLIC KEY")
	assert.Equal(t, uint(3), cfg.LoginBurst)
}

// ===========================================================================
// Validation
// ===========================================================================

func TestLoad_RequiredNamesVariable(t *testing.T) {
	t.Parallel()
	var cfg requiredConfig
	err := New().WithLookup(mapLookup(nil)).Load(&cfg)

	e, ok := sserr.AsError(err)
	require.True(t, ok)
	assert.Equal(t, sserr.CodeValidationRequired, e.Code)
	assert.Equal(t, "NAME", e.Detail(sserr.DetailVariable))
}

func TestLoad_NestedValidatorRuns(t *testing.T) {
	t.Parallel()
	var cfg outerConfig
	err := New().WithLookup(mapLookup(nil)).Load(&cfg)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidation))

	cfg = outerConfig{}
	err = New().WithLookup(mapLookup(map[string]string{"SERVER_PORT": "8443"})).Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, 8443, cfg.Server.Port)
}

func TestLoad_ValidatorErrorPassedThrough(t *testing.T) {
	t.Parallel()
	var cfg customErrConfig
	err := New().WithLookup(mapLookup(nil)).Load(&cfg)
	assert.True(t, sserr.IsKeyConfiguration(err))
}

func TestLoad_RejectsNonStruct(t *testing.T) {
	t.Parallel()
	var s string
	assert.True(t, sserr.HasCode(New().Load(&s), sserr.CodeInternalConfiguration))
	assert.True(t, sserr.HasCode(New().Load(nil), sserr.CodeInternalConfiguration))
}

func TestMustLoad_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		_ = MustLoad[requiredConfig](New().WithLookup(mapLookup(nil)))
	})
	cfg := MustLoad[requiredConfig](New().WithLookup(mapLookup(map[string]string{"NAME": "ok"})))
	assert.Equal(t, "ok", cfg.Name)
}
