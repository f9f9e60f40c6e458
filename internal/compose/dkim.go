package compose

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

// defaultSelector is used when no DKIM selector is configured.
const defaultSelector = "default"

// Signer DKIM-signs rendered messages for one domain.
type Signer struct {
	domain   string
	selector string
	key      crypto.Signer
}

// NewSigner creates a Signer from a PEM private key. RSA keys may be PKCS#1
// or PKCS#8; Ed25519 keys must be PKCS#8.
func NewSigner(domain, selector string, keyPEM []byte) (*Signer, error) {
	if domain == "" {
		return nil, errors.New("dkim domain is required")
	}
	if selector == "" {
		selector = defaultSelector
	}

	key, err := parsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}

	return &Signer{domain: domain, selector: selector, key: key}, nil
}

// LoadSigner reads the private key at keyFile and creates a Signer.
func LoadSigner(domain, selector, keyFile string) (*Signer, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read DKIM key from %s: %w", keyFile, err)
	}
	return NewSigner(domain, selector, data)
}

// Domain returns the signing domain.
func (s *Signer) Domain() string {
	return s.domain
}

// Sign returns msg with a DKIM-Signature header prepended.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:   s.domain,
		Selector: s.selector,
		Signer:   s.key,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(msg), options); err != nil {
		return nil, fmt.Errorf("dkim signing failed: %w", err)
	}
	return signed.Bytes(), nil
}

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode DKIM key PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unsupported DKIM key: %w", err)
	}
	signer, ok := parsed.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported DKIM key type %T", parsed)
	}
	return signer, nil
}
