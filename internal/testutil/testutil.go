// Package testutil generates RSA keys and certificates for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	keyOnce   sync.Once
	sharedKey *rsa.PrivateKey
	keyErr    error
)

// RSAKey returns a 2048 bit key shared by every test in the binary.
func RSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		sharedKey, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, keyErr)
	return sharedKey
}

// NewRSAKey generates a fresh key, for tests that need two distinct key pairs.
func NewRSAKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func PrivateKeyPKCS1PEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func PrivateKeyPKCS8PEM(t testing.TB, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func PublicKeyPEM(t testing.TB, key *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

type CertOptions struct {
	Serial     int64
	CommonName string
	Issuer     *x509.Certificate
	IssuerKey  *rsa.PrivateKey
	NotBefore  time.Time
	NotAfter   time.Time
	IsCA       bool
}

// Certificate issues a certificate for key. Without an issuer it is self-signed.
func Certificate(t testing.TB, key *rsa.PrivateKey, opts CertOptions) (*x509.Certificate, string) {
	t.Helper()
	if opts.Serial == 0 {
		opts.Serial = 1
	}
	if opts.CommonName == "" {
		opts.CommonName = "2088000000000000"
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(24 * time.Hour)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(opts.Serial),
		Subject: pkix.Name{
			Country:            []string{"CN"},
			Organization:       []string{"Test Merchant"},
			OrganizationalUnit: []string{"Alipay"},
			CommonName:         opts.CommonName,
		},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
	}

	parent, signer := template, key
	if opts.Issuer != nil {
		parent, signer = opts.Issuer, opts.IssuerKey
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	require.NoError(t, err)
	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return parsed, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
