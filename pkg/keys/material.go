package keys

import (
	"crypto/rsa"
	"sort"
	"sync"

	sserr "github.com/StricklySoft/stricklysoft-access/pkg/errors"
)

// Algorithm is the only JWS algorithm issued and accepted.
const Algorithm = "RS256"

// Material is a loaded key set: an optional signing key, the primary
// verification key, and any extra verification keys registered during
// rotation. It is safe for concurrent use.
type Material struct {
	keyID   string
	signing *rsa.PrivateKey

	mu     sync.RWMutex
	verify map[string]*rsa.PublicKey
}

// Load validates cfg and parses its keys, including the previous public
// key during a rotation.
func Load(cfg Config) (*Material, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := New(cfg.PrivateKey.Value(), cfg.PublicKey, cfg.KeyID)
	if err != nil {
		return nil, err
	}
	if cfg.PreviousPublicKey != "" {
		if err := m.AddVerificationKey(cfg.PreviousKeyID, cfg.PreviousPublicKey); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// New parses the given PEM strings. Either may be empty: without a
// private key the Material can only verify, and without a public key the
// public half of the private key is used. Passing neither yields a
// Material that can do nothing, which verifiers report as
// VerificationUnavailable.
func New(privatePEM, publicPEM, keyID string) (*Material, error) {
	if keyID == "" {
		keyID = DefaultKeyID
	}
	m := &Material{keyID: keyID, verify: make(map[string]*rsa.PublicKey)}

	if privatePEM != "" {
		key, err := ParsePrivateKey(privatePEM)
		if err != nil {
			return nil, sserr.KeyConfiguration(EnvPrivateKey, "malformed RSA private key", err)
		}
		m.signing = key
	}

	var public *rsa.PublicKey
	if publicPEM != "" {
		key, err := ParsePublicKey(publicPEM)
		if err != nil {
			return nil, sserr.KeyConfiguration(EnvPublicKey, "malformed RSA public key", err)
		}
		public = key
	}

	switch {
	case m.signing != nil && public != nil:
		if !m.signing.PublicKey.Equal(public) {
			return nil, sserr.KeyConfiguration(EnvPrivateKey,
				"private key does not match the configured public key", nil)
		}
	case m.signing != nil:
		public = &m.signing.PublicKey
	}
	if public != nil {
		m.verify[keyID] = public
	}
	return m, nil
}

// FromKeys builds Material from already parsed keys. Either may be nil.
func FromKeys(private *rsa.PrivateKey, public *rsa.PublicKey, keyID string) *Material {
	if keyID == "" {
		keyID = DefaultKeyID
	}
	if public == nil && private != nil {
		public = &private.PublicKey
	}
	m := &Material{keyID: keyID, signing: private, verify: make(map[string]*rsa.PublicKey)}
	if public != nil {
		m.verify[keyID] = public
	}
	return m
}

// KeyID returns the kid written into issued token headers.
func (m *Material) KeyID() string { return m.keyID }

// CanSign reports whether a private key is loaded.
func (m *Material) CanSign() bool { return m != nil && m.signing != nil }

// CanVerify reports whether any verification key is loaded.
func (m *Material) CanVerify() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.verify) > 0
}

// SigningKey returns the private key and its kid.
func (m *Material) SigningKey() (*rsa.PrivateKey, string, bool) {
	if !m.CanSign() {
		return nil, "", false
	}
	return m.signing, m.keyID, true
}

// VerificationKey returns the public key registered under kid. An empty
// kid selects the primary key, for tokens minted before kid headers
// were written.
func (m *Material) VerificationKey(kid string) (*rsa.PublicKey, bool) {
	if m == nil {
		return nil, false
	}
	if kid == "" {
		kid = m.keyID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.verify[kid]
	return key, ok
}

// AddVerificationKey registers an extra public key under kid so tokens
// signed by a previous or upcoming key pair continue to verify.
func (m *Material) AddVerificationKey(kid, publicPEM string) error {
	variable := EnvPublicKey + "[" + kid + "]"
	if kid == "" {
		return sserr.KeyConfiguration(variable, "key identifier must not be empty", nil)
	}
	key, err := ParsePublicKey(publicPEM)
	if err != nil {
		return sserr.KeyConfiguration(variable, "malformed RSA public key", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.verify[kid]; ok && !existing.Equal(key) {
		return sserr.KeyConfiguration(variable, "a different key is already registered under this kid", nil)
	}
	m.verify[kid] = key
	return nil
}

// KeyIDs returns the registered verification kids, primary first.
func (m *Material) KeyIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.verify))
	for kid := range m.verify {
		if kid != m.keyID {
			ids = append(ids, kid)
		}
	}
	sort.Strings(ids)
	if _, ok := m.verify[m.keyID]; ok {
		ids = append([]string{m.keyID}, ids...)
	}
	return ids
}
