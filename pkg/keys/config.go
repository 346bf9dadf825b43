package keys

import (
	"github.com/StricklySoft/stricklysoft-access/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Environment variables read by [Config].
const (
	EnvPrivateKey        = "AUTH_PRIVATE_KEY"
	EnvPublicKey         = "AUTH_PUBLIC_KEY"
	EnvKeyID             = "AUTH_KEY_ID"
	EnvPreviousPublicKey = "AUTH_PREVIOUS_PUBLIC_KEY"
	EnvPreviousKeyID     = "AUTH_PREVIOUS_KEY_ID"
)

// DefaultKeyID is used when AUTH_KEY_ID is unset.
const DefaultKeyID = "primary"

// Config holds the PEM key material for a service. PrivateKey is set only
// on the issuing service.
type Config struct {
	// PrivateKey is the PKCS#1 or PKCS#8 RSA private key.
	PrivateKey config.Secret `json:"-" yaml:"private_key" env:"AUTH_PRIVATE_KEY"`

	// PublicKey is the PKIX or PKCS#1 RSA public key (or a certificate).
	PublicKey string `json:"public_key" yaml:"public_key" env:"AUTH_PUBLIC_KEY"`

	// KeyID is written to the kid header of every issued token.
	KeyID string `json:"key_id" yaml:"key_id" env:"AUTH_KEY_ID" envDefault:"primary"`

	// PreviousPublicKey keeps tokens signed before a rotation verifiable
	// until they expire. It is registered under PreviousKeyID.
	PreviousPublicKey string `json:"previous_public_key" yaml:"previous_public_key" env:"AUTH_PREVIOUS_PUBLIC_KEY"`
	PreviousKeyID     string `json:"previous_key_id" yaml:"previous_key_id" env:"AUTH_PREVIOUS_KEY_ID"`
}

// Validate checks that the variables every service needs are present.
// Parsing happens in [Load].
func (c *Config) Validate() error {
	if c.PublicKey == "" {
		return sserr.KeyConfiguration(EnvPublicKey, "public key is required", nil)
	}
	if c.KeyID == "" {
		return sserr.KeyConfiguration(EnvKeyID, "key identifier must not be empty", nil)
	}
	if c.PreviousPublicKey != "" && (c.PreviousKeyID == "" || c.PreviousKeyID == c.KeyID) {
		return sserr.KeyConfiguration(EnvPreviousKeyID, "previous key needs its own key identifier", nil)
	}
	return nil
}
