package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// Bundle is the key pair carried by a PKCS#12 application certificate file.
type Bundle struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// CertificatePEM renders the bundled certificate as PEM.
func (b Bundle) CertificatePEM() string {
	if b.Certificate == nil {
		return ""
	}
	return FormatPEM(base64.StdEncoding.EncodeToString(b.Certificate.Raw), BlockCertificate)
}

// PrivateKeyPEM renders the bundled key in the requested encoding.
func (b Bundle) PrivateKeyPEM(encoding KeyEncoding) (string, error) {
	return MarshalPrivateKeyPEM(b.PrivateKey, encoding)
}

// LoadPKCS12 decodes a .p12 bundle holding a single RSA key and certificate.
// Only the legacy SHA-1/3DES and RC2 encryptions are understood.
func LoadPKCS12(data []byte, password string) (Bundle, error) {
	if len(data) == 0 {
		return Bundle{}, ErrEmptyKey
	}
	privateKey, certificate, err := pkcs12.Decode(data, password)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: pkcs12: %v", ErrInvalidKey, err)
	}
	key, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return Bundle{}, ErrNotRSAKey
	}
	return Bundle{PrivateKey: key, Certificate: certificate}, nil
}

// LoadPKCS12File reads and decodes a .p12 bundle from path.
func LoadPKCS12File(path, password string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("read pkcs12 %s: %w", path, err)
	}
	return LoadPKCS12(data, password)
}
