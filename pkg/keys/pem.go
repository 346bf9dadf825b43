package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MinKeyBits is the smallest RSA modulus accepted.
const MinKeyBits = 2048

const pemLineLength = 64

var (
	headerPattern = regexp.MustCompile(`-----\s*BEGIN ([A-Z0-9 ]+?)\s*-----`)
	footerPattern = regexp.MustCompile(`-----\s*END ([A-Z0-9 ]+?)\s*-----`)

	errEmptyPEM = errors.New("value is empty")
)

// NormalizePEM rebuilds a canonical PEM block from raw. It strips
// surrounding quotes, expands literal \n and \r escapes, drops all
// whitespace from the base64 body, and re-wraps it at 64 columns between
// freshly written BEGIN and END lines. When raw has no header, blockType
// is used.
func NormalizePEM(raw, blockType string) (string, error) {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\r`, "\n", "\r\n", "\n", "\r", "\n").Replace(s)

	body := s
	if m := headerPattern.FindStringSubmatchIndex(s); m != nil {
		blockType = s[m[2]:m[3]]
		body = s[m[1]:]
	}
	if m := footerPattern.FindStringIndex(body); m != nil {
		body = body[:m[0]]
	}
	body = strings.Join(strings.Fields(body), "")
	if body == "" {
		return "", errEmptyPEM
	}

	var b strings.Builder
	b.WriteString("-----BEGIN " + blockType + "-----\n")
	for len(body) > pemLineLength {
		b.WriteString(body[:pemLineLength])
		b.WriteByte('\n')
		body = body[pemLineLength:]
	}
	b.WriteString(body)
	b.WriteString("\n-----END " + blockType + "-----\n")
	return b.String(), nil
}

// ParsePrivateKey normalizes and parses an RSA private key in PKCS#1 or
// PKCS#8 form.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	block, err := decode(raw, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}

	var key *rsa.PrivateKey
	if parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes); pkcs8Err == nil {
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, want RSA", parsed)
		}
		key = rsaKey
	} else if rsaKey, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes); pkcs1Err == nil {
		key = rsaKey
	} else {
		return nil, fmt.Errorf("not a PKCS#8 or PKCS#1 RSA private key: %w", pkcs8Err)
	}

	if err := key.Validate(); err != nil {
		return nil, err
	}
	if key.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("RSA key is %d bits, want at least %d", key.N.BitLen(), MinKeyBits)
	}
	return key, nil
}

// ParsePublicKey normalizes and parses an RSA public key in PKIX or
// PKCS#1 form, or the public key of an X.509 certificate.
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	block, err := decode(raw, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}

	var parsed any
	switch {
	case block.Type == "CERTIFICATE":
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, certErr
		}
		parsed = cert.PublicKey
	default:
		if pkix, pkixErr := x509.ParsePKIXPublicKey(block.Bytes); pkixErr == nil {
			parsed = pkix
		} else if pkcs1, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes); pkcs1Err == nil {
			parsed = pkcs1
		} else {
			return nil, fmt.Errorf("not a PKIX or PKCS#1 RSA public key: %w", pkixErr)
		}
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want RSA", parsed)
	}
	if key.N.BitLen() < MinKeyBits {
		return nil, fmt.Errorf("RSA key is %d bits, want at least %d", key.N.BitLen(), MinKeyBits)
	}
	return key, nil
}

func decode(raw, blockType string) (*pem.Block, error) {
	normalized, err := NormalizePEM(raw, blockType)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return block, nil
}
