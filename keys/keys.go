// Package keys turns PEM or bare base64 key material into crypto handles.
//
// Alipay hands out RSA keys either as full PEM files or as the bare base64 body
// pasted into a console field, so every parser accepts both forms.
package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

type KeyEncoding string

const (
	PKCS1 KeyEncoding = "PKCS1"
	PKCS8 KeyEncoding = "PKCS8"
)

const (
	BlockRSAPrivateKey = "RSA PRIVATE KEY"
	BlockPrivateKey    = "PRIVATE KEY"
	BlockPublicKey     = "PUBLIC KEY"
	BlockRSAPublicKey  = "RSA PUBLIC KEY"
	BlockCertificate   = "CERTIFICATE"
)

var (
	ErrEmptyKey       = errors.New("key material is empty")
	ErrInvalidKey     = errors.New("invalid key material")
	ErrNotRSAKey      = errors.New("key is not an RSA key")
	ErrInvalidAESSize = errors.New("aes key must be 16, 24 or 32 bytes")
)

func ParseKeyEncoding(raw string) (KeyEncoding, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", string(PKCS1):
		return PKCS1, nil
	case string(PKCS8):
		return PKCS8, nil
	default:
		return "", fmt.Errorf("unsupported key encoding %q: expected PKCS1|PKCS8", raw)
	}
}

func (e KeyEncoding) blockType() string {
	if e == PKCS8 {
		return BlockPrivateKey
	}
	return BlockRSAPrivateKey
}

// FormatPEM wraps a bare base64 body into a PEM block with 64 column lines.
func FormatPEM(body string, blockType string) string {
	body = stripWhitespace(body)
	var builder strings.Builder
	builder.WriteString("-----BEGIN " + blockType + "-----\n")
	for len(body) > 64 {
		builder.WriteString(body[:64])
		builder.WriteByte('\n')
		body = body[64:]
	}
	if body != "" {
		builder.WriteString(body)
		builder.WriteByte('\n')
	}
	builder.WriteString("-----END " + blockType + "-----\n")
	return builder.String()
}

// decodeDER returns the DER bytes of the first PEM block in material, or of
// the whole input when it is a bare base64 body.
func decodeDER(material string) ([]byte, string, error) {
	trimmed := strings.TrimSpace(material)
	if trimmed == "" {
		return nil, "", ErrEmptyKey
	}
	if strings.Contains(trimmed, "-----BEGIN") {
		block, _ := pem.Decode([]byte(trimmed))
		if block == nil {
			return nil, "", fmt.Errorf("%w: malformed PEM block", ErrInvalidKey)
		}
		return block.Bytes, block.Type, nil
	}
	der, err := base64.StdEncoding.DecodeString(stripWhitespace(trimmed))
	if err != nil {
		return nil, "", fmt.Errorf("%w: base64 body: %v", ErrInvalidKey, err)
	}
	return der, "", nil
}

// ParsePrivateKey parses an RSA private key. The declared encoding is tried
// first; the other encoding is tried only if the declared one fails.
func ParsePrivateKey(material string, encoding KeyEncoding) (*rsa.PrivateKey, error) {
	der, blockType, err := decodeDER(material)
	if err != nil {
		return nil, err
	}
	switch blockType {
	case BlockRSAPrivateKey:
		encoding = PKCS1
	case BlockPrivateKey:
		encoding = PKCS8
	}

	first, second := parsePKCS1Private, parsePKCS8Private
	if encoding == PKCS8 {
		first, second = parsePKCS8Private, parsePKCS1Private
	}
	key, firstErr := first(der)
	if firstErr == nil {
		return key, nil
	}
	if errors.Is(firstErr, ErrNotRSAKey) {
		return nil, firstErr
	}
	if key, err := second(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s private key: %v", ErrInvalidKey, encoding, firstErr)
}

func parsePKCS1Private(der []byte) (*rsa.PrivateKey, error) {
	return x509.ParsePKCS1PrivateKey(der)
}

func parsePKCS8Private(der []byte) (*rsa.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSAKey
	}
	return key, nil
}

// ParsePublicKey parses an SPKI ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY")
// RSA public key.
func ParsePublicKey(material string) (*rsa.PublicKey, error) {
	der, blockType, err := decodeDER(material)
	if err != nil {
		return nil, err
	}
	if blockType == BlockRSAPublicKey {
		key, err := x509.ParsePKCS1PublicKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		if key, pkcs1Err := x509.ParsePKCS1PublicKey(der); pkcs1Err == nil {
			return key, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAKey
	}
	return key, nil
}

// MarshalPublicKeyPEM renders key as an SPKI PEM block.
func MarshalPublicKeyPEM(key *rsa.PublicKey) (string, error) {
	if key == nil {
		return "", ErrEmptyKey
	}
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return FormatPEM(base64.StdEncoding.EncodeToString(der), BlockPublicKey), nil
}

// MarshalPrivateKeyPEM renders key in the requested encoding.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey, encoding KeyEncoding) (string, error) {
	if key == nil {
		return "", ErrEmptyKey
	}
	var der []byte
	if encoding == PKCS8 {
		var err error
		der, err = x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return "", err
		}
	} else {
		der = x509.MarshalPKCS1PrivateKey(key)
	}
	return FormatPEM(base64.StdEncoding.EncodeToString(der), encoding.blockType()), nil
}

// ParseAESKey decodes a base64 AES key and checks its length.
func ParseAESKey(encoded string) ([]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, ErrEmptyKey
	}
	key, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: aes key base64: %v", ErrInvalidKey, err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidAESSize, len(key))
	}
}

func stripWhitespace(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, value)
}
