package token

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Config holds the fixed claims and lifetimes shared by issuer and
// verifiers. Every service must agree on Issuer and Audience.
type Config struct {
	// Issuer is written to and required in the iss claim.
	Issuer string `json:"issuer" yaml:"issuer" env:"AUTH_ISSUER" envDefault:"stricklysoft-accounts"`

	// Audience is written to and required in the aud claim.
	Audience string `json:"audience" yaml:"audience" env:"AUTH_AUDIENCE" envDefault:"stricklysoft-services"`

	// AccessTTL is the default access token lifetime.
	AccessTTL time.Duration `json:"access_ttl" yaml:"access_ttl" env:"AUTH_ACCESS_TTL" envDefault:"15m"`

	// RefreshTTL is the refresh token lifetime.
	RefreshTTL time.Duration `json:"refresh_ttl" yaml:"refresh_ttl" env:"AUTH_REFRESH_TTL" envDefault:"336h"`

	// ClockSkew is the leeway applied to exp, nbf and iat checks.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"AUTH_CLOCK_SKEW" envDefault:"30s"`
}

// DefaultConfig returns the defaults declared in the struct tags.
func DefaultConfig() Config {
	return Config{
		Issuer:     "stricklysoft-accounts",
		Audience:   "stricklysoft-services",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Issuer == "":
		return sserr.New(sserr.CodeValidationRequired, "token: issuer is required")
	case c.Audience == "":
		return sserr.New(sserr.CodeValidationRequired, "token: audience is required")
	case c.AccessTTL <= 0:
		return sserr.Newf(sserr.CodeValidationRange, "token: access TTL must be positive, got %s", c.AccessTTL)
	case c.RefreshTTL < c.AccessTTL:
		return sserr.Newf(sserr.CodeValidationRange,
			"token: refresh TTL %s must not be shorter than access TTL %s", c.RefreshTTL, c.AccessTTL)
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return sserr.Newf(sserr.CodeValidationRange, "token: clock skew must be within [0, 5m], got %s", c.ClockSkew)
	}
	return nil
}
