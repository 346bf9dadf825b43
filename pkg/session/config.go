package session

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Config controls cookies and login throttling.
type Config struct {
	// CookieDomain is the shared parent domain (".example.com") so every
	// subdomain service receives the cookies. Empty means host-only.
	CookieDomain string `json:"cookie_domain" yaml:"cookie_domain" env:"SESSION_COOKIE_DOMAIN"`

	// Secure sets the Secure attribute. Only local development over
	// plain HTTP turns it off.
	Secure bool `json:"secure" yaml:"secure" env:"SESSION_COOKIE_SECURE" envDefault:"true"`

	// AccessCookie must match gate.Config.CookieName, so both read the
	// same variable.
	AccessCookie string `json:"access_cookie" yaml:"access_cookie" env:"AUTH_COOKIE_NAME" envDefault:"access_token"`

	RefreshCookie string `json:"refresh_cookie" yaml:"refresh_cookie" env:"SESSION_REFRESH_COOKIE" envDefault:"refresh_token"`

	// LoginRPS and LoginBurst size the per-client login token bucket.
	LoginRPS   float64 `json:"login_rps" yaml:"login_rps" env:"SESSION_LOGIN_RPS" envDefault:"0.5"`
	LoginBurst int     `json:"login_burst" yaml:"login_burst" env:"SESSION_LOGIN_BURST" envDefault:"5"`

	// TrustForwardedFor keys the limiter on the first X-Forwarded-For
	// address. Enable only behind a proxy that sets it.
	TrustForwardedFor bool `json:"trust_forwarded_for" yaml:"trust_forwarded_for" env:"SESSION_TRUST_FORWARDED_FOR"`

	// LimiterIdle is how long an idle client's bucket is kept.
	LimiterIdle time.Duration `json:"limiter_idle" yaml:"limiter_idle" env:"SESSION_LIMITER_IDLE" envDefault:"10m"`
}

// DefaultConfig returns the defaults declared in the struct tags.
func DefaultConfig() Config {
	return Config{
		Secure:        true,
		AccessCookie:  "access_token",
		RefreshCookie: "refresh_token",
		LoginRPS:      0.5,
		LoginBurst:    5,
		LimiterIdle:   10 * time.Minute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.AccessCookie == "" || c.RefreshCookie == "":
		return sserr.New(sserr.CodeValidationRequired, "session: cookie names are required")
	case c.AccessCookie == c.RefreshCookie:
		return sserr.Newf(sserr.CodeValidation, "session: access and refresh cookies share the name %q", c.AccessCookie)
	case c.LoginRPS <= 0 || c.LoginBurst <= 0:
		return sserr.Newf(sserr.CodeValidationRange,
			"session: login rate %.2f/s with burst %d must be positive", c.LoginRPS, c.LoginBurst)
	case c.LimiterIdle <= 0:
		return sserr.Newf(sserr.CodeValidationRange, "session: limiter idle %s must be positive", c.LimiterIdle)
	}
	return nil
}
