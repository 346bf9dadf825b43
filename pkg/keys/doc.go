// Package keys loads the RSA key pair used to sign and verify access and
// refresh tokens.
//
// An issuing service (accounts) is configured with both halves; every
// other service is configured with the public key only and can verify but
// never issue. PEM values commonly arrive through environment variables
// and secret stores in damaged forms: wrapped in quotes, with literal \n
// escapes instead of line breaks, with CRLF line endings, or with the
// header and footer stripped. [NormalizePEM] repairs all of these before
// parsing, and every failure is reported as a KeyConfiguration error that
// names the variable at fault, so a misconfigured service refuses to start
// instead of failing on its first request.
//
// Each [Material] carries a key identifier (kid) which the token issuer
// writes into every token header. Verifiers select the verification key
// by kid, and additional public keys can be registered with
// [Material.AddVerificationKey] while a rotation is in progress.
package keys
