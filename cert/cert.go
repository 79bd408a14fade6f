// Package cert derives serial numbers, fingerprints and public keys from the
// PEM certificates used in Alipay's certificate signing mode.
package cert

import (
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leavestylecode/alipay-sdk-go/keys"
)

var (
	ErrNoCertificate = errors.New("no certificate found in PEM content")
	ErrNotRSAKey     = errors.New("certificate public key is not RSA")
)

// Descriptor is the parsed, immutable view of one certificate.
type Descriptor struct {
	// SerialNumber is the certificate serial number in uppercase hex.
	SerialNumber string
	// SN is the gateway-facing identifier sent as app_cert_sn / alipay_cert_sn.
	SN          string
	Content     string
	Issuer      string
	Subject     string
	NotBefore   time.Time
	NotAfter    time.Time
	Fingerprint string
	PublicKey   *rsa.PublicKey
}

// ValidAt reports whether now lies inside the validity window, bounds included.
func (d Descriptor) ValidAt(now time.Time) bool {
	return !now.Before(d.NotBefore) && !now.After(d.NotAfter)
}

// Parse reads the first certificate in content.
func Parse(content string) (Descriptor, error) {
	certificate, err := parseFirst(content)
	if err != nil {
		return Descriptor{}, err
	}
	return describe(certificate)
}

// ParseAll reads every certificate in a PEM bundle. Certificates Go cannot
// parse (for example SM2 roots in the gateway's root bundle) are skipped.
func ParseAll(content string) ([]*x509.Certificate, error) {
	rest := []byte(strings.TrimSpace(content))
	var out []*x509.Certificate
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != keys.BlockCertificate {
			continue
		}
		certificate, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		out = append(out, certificate)
	}
	if len(out) == 0 {
		return nil, ErrNoCertificate
	}
	return out, nil
}

// SerialNumber returns the certificate serial number as uppercase hex.
func SerialNumber(content string) (string, error) {
	certificate, err := parseFirst(content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%X", certificate.SerialNumber), nil
}

// AlipaySN computes the gateway certificate SN: the lowercase hex MD5 of the
// issuer DN in RFC 2253 order followed by the decimal serial number.
func AlipaySN(content string) (string, error) {
	certificate, err := parseFirst(content)
	if err != nil {
		return "", err
	}
	return snOf(certificate)
}

// RootSN joins with "_" the SN of every RSA-signed certificate in a root bundle.
func RootSN(bundle string) (string, error) {
	certificates, err := ParseAll(bundle)
	if err != nil {
		return "", err
	}
	sns := make([]string, 0, len(certificates))
	for _, certificate := range certificates {
		if !rsaSigned(certificate.SignatureAlgorithm) {
			continue
		}
		sn, err := snOf(certificate)
		if err != nil {
			return "", err
		}
		sns = append(sns, sn)
	}
	if len(sns) == 0 {
		return "", fmt.Errorf("%w: no RSA-signed certificate in root bundle", ErrNoCertificate)
	}
	return strings.Join(sns, "_"), nil
}

// PublicKey extracts the RSA public key embedded in the certificate.
func PublicKey(content string) (*rsa.PublicKey, error) {
	certificate, err := parseFirst(content)
	if err != nil {
		return nil, err
	}
	key, ok := certificate.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSAKey
	}
	return key, nil
}

// PublicKeyPEM re-encodes the embedded public key as SPKI PEM.
func PublicKeyPEM(content string) (string, error) {
	key, err := PublicKey(content)
	if err != nil {
		return "", err
	}
	return keys.MarshalPublicKeyPEM(key)
}

// IsValid reports whether now lies inside the certificate validity window.
func IsValid(content string, now time.Time) (bool, error) {
	descriptor, err := Parse(content)
	if err != nil {
		return false, err
	}
	return descriptor.ValidAt(now), nil
}

// Fingerprint is the uppercase hex SHA-256 of the DER certificate.
func Fingerprint(content string) (string, error) {
	certificate, err := parseFirst(content)
	if err != nil {
		return "", err
	}
	return fingerprintOf(certificate.Raw), nil
}

func parseFirst(content string) (*x509.Certificate, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrNoCertificate
	}
	rest := []byte(trimmed)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoCertificate
		}
		if block.Type != keys.BlockCertificate {
			continue
		}
		certificate, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		return certificate, nil
	}
}

func describe(certificate *x509.Certificate) (Descriptor, error) {
	sn, err := snOf(certificate)
	if err != nil {
		return Descriptor{}, err
	}
	publicKey, _ := certificate.PublicKey.(*rsa.PublicKey)
	return Descriptor{
		SerialNumber: fmt.Sprintf("%X", certificate.SerialNumber),
		SN:           sn,
		Content:      string(pem.EncodeToMemory(&pem.Block{Type: keys.BlockCertificate, Bytes: certificate.Raw})),
		Issuer:       certificate.Issuer.String(),
		Subject:      certificate.Subject.String(),
		NotBefore:    certificate.NotBefore,
		NotAfter:     certificate.NotAfter,
		Fingerprint:  fingerprintOf(certificate.Raw),
		PublicKey:    publicKey,
	}, nil
}

func snOf(certificate *x509.Certificate) (string, error) {
	var issuer pkix.RDNSequence
	if _, err := asn1.Unmarshal(certificate.RawIssuer, &issuer); err != nil {
		return "", fmt.Errorf("parse certificate issuer: %w", err)
	}
	sum := md5.Sum([]byte(issuer.String() + certificate.SerialNumber.String()))
	return hex.EncodeToString(sum[:]), nil
}

func fingerprintOf(der []byte) string {
	sum := sha256.Sum256(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func rsaSigned(algorithm x509.SignatureAlgorithm) bool {
	switch algorithm {
	case x509.MD5WithRSA, x509.SHA1WithRSA, x509.SHA256WithRSA, x509.SHA384WithRSA, x509.SHA512WithRSA,
		x509.SHA256WithRSAPSS, x509.SHA384WithRSAPSS, x509.SHA512WithRSAPSS:
		return true
	}
	return false
}
