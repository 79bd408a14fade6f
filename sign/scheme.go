// Package sign builds the canonical strings Alipay signs and produces and
// checks RSA PKCS#1 v1.5 signatures over them.
//
// Two protocols share one scheme table. The classic gateway ("V2") signs the
// sorted k=v parameter string; the REST variant ("V3") signs a newline-joined
// request line and verifies callbacks over timestamp, nonce and body.
package sign

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"strings"
)

type Scheme string

const (
	// RSA is SHA1withRSA.
	RSA Scheme = "RSA"
	// RSA2 is SHA256withRSA.
	RSA2 Scheme = "RSA2"
)

var ErrUnsupportedScheme = errors.New("unsupported signature scheme")

// Hash returns the digest bound to the scheme. The mapping is fixed.
func (s Scheme) Hash() (crypto.Hash, error) {
	switch s {
	case RSA:
		return crypto.SHA1, nil
	case RSA2:
		return crypto.SHA256, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, string(s))
}

// Algorithm is the JCA-style name used in V3 authorization headers.
func (s Scheme) Algorithm() string {
	switch s {
	case RSA:
		return "SHA1withRSA"
	case RSA2:
		return "SHA256withRSA"
	}
	return ""
}

func ParseScheme(raw string) (Scheme, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(RSA2):
		return RSA2, nil
	case string(RSA):
		return RSA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, raw)
}

func digest(scheme Scheme, content string) (crypto.Hash, []byte, error) {
	hash, err := scheme.Hash()
	if err != nil {
		return 0, nil, err
	}
	hasher := hash.New()
	hasher.Write([]byte(content))
	return hash, hasher.Sum(nil), nil
}
