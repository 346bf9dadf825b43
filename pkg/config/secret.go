package config

const secretRedacted = "[REDACTED]"

// Secret holds a credential such as a private key PEM or a database
// password. It redacts itself in fmt output and text serialization; only
// [Secret.Value] returns the raw string.
type Secret string

// String returns a redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns a redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
