package sign

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"sort"
	"strings"

	"github.com/leavestylecode/alipay-sdk-go/keys"
)

// FieldSign is the parameter that carries the signature and is never signed.
const FieldSign = "sign"

var ErrNilKey = errors.New("signing key is nil")

// Content builds the V2 signable string: every non-empty parameter except
// sign, sorted by key byte-wise, joined as k=v with "&". Values are raw, not
// URL-encoded.
func Content(params map[string]string) string {
	names := make([]string, 0, len(params))
	for key, value := range params {
		if key == FieldSign || value == "" {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)

	var builder strings.Builder
	for i, key := range names {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(params[key])
	}
	return builder.String()
}

// Sign signs content and returns the base64 signature.
func Sign(content string, key *rsa.PrivateKey, scheme Scheme) (string, error) {
	if key == nil {
		return "", ErrNilKey
	}
	hash, sum, err := digest(scheme, content)
	if err != nil {
		return "", err
	}
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, hash, sum)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

// SignPEM parses privateKey with the given encoding and signs content.
func SignPEM(content string, privateKey string, scheme Scheme, encoding keys.KeyEncoding) (string, error) {
	key, err := keys.ParsePrivateKey(privateKey, encoding)
	if err != nil {
		return "", err
	}
	return Sign(content, key, scheme)
}

// Verify checks a base64 signature over content. It never panics and never
// errors: malformed signatures, a nil key or an unknown scheme all yield false.
func Verify(content string, signature string, key *rsa.PublicKey, scheme Scheme) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	if key == nil || key.N == nil || signature == "" {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	hash, sum, err := digest(scheme, content)
	if err != nil {
		return false
	}
	return rsa.VerifyPKCS1v15(key, hash, sum, raw) == nil
}

// VerifyPEM parses publicKey and verifies. Unparsable keys yield false.
func VerifyPEM(content string, signature string, publicKey string, scheme Scheme) bool {
	key, err := keys.ParsePublicKey(publicKey)
	if err != nil {
		return false
	}
	return Verify(content, signature, key, scheme)
}
