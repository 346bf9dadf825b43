package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// RSA key generation is slow; every package shares two keys per test
// binary.
var (
	rsaOnce    sync.Once
	rsaPrimary *rsa.PrivateKey
	rsaAlt     *rsa.PrivateKey
	rsaErr     error
)

func generate() {
	rsaPrimary, rsaErr = rsa.GenerateKey(rand.Reader, 2048)
	if rsaErr != nil {
		return
	}
	rsaAlt, rsaErr = rsa.GenerateKey(rand.Reader, 2048)
}

// RSAKey returns the shared primary test key.
func RSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(generate)
	require.NoError(t, rsaErr, "failed to generate RSA test key")
	return rsaPrimary
}

// AltRSAKey returns a second key, distinct from [RSAKey].
func AltRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	rsaOnce.Do(generate)
	require.NoError(t, rsaErr, "failed to generate RSA test key")
	return rsaAlt
}

// PKCS8PEM encodes key as a "PRIVATE KEY" block.
func PKCS8PEM(t testing.TB, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// PKCS1PEM encodes key as an "RSA PRIVATE KEY" block.
func PKCS1PEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// PublicPEM encodes pub as a PKIX "PUBLIC KEY" block.
func PublicPEM(t testing.TB, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}
