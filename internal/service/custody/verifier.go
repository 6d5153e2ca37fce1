package custody

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the base64 RSA-SHA512 signature of the raw body.
const SignatureHeader = "fireblocks-signature"

var ErrInvalidSignature = errors.New("invalid signature")

type Verifier interface {
	Verify(payload []byte, signature string) error
}

type RSAVerifier struct {
	key *rsa.PublicKey
}

// NewRSAVerifier parses a PEM encoded PKIX public key. Literal "\n" sequences
// are accepted so the key can live in a single-line environment variable.
func NewRSAVerifier(pemKey string) (*RSAVerifier, error) {
	block, _ := pem.Decode([]byte(strings.ReplaceAll(pemKey, `\n`, "\n")))
	if block == nil {
		return nil, fmt.Errorf("NewRSAVerifier: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("NewRSAVerifier: %w", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("NewRSAVerifier: key is %T, not RSA", pub)
	}
	return &RSAVerifier{key: key}, nil
}

func (v *RSAVerifier) Verify(payload []byte, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("Verify: decode: %w", ErrInvalidSignature)
	}
	digest := sha512.Sum512(payload)
	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA512, digest[:], sig); err != nil {
		return fmt.Errorf("Verify: %w", ErrInvalidSignature)
	}
	return nil
}
