package alipay

import (
	"net/http"
	"net/url"
	"time"

	"github.com/leavestylecode/alipay-sdk-go/canonical"
)

const (
	DefaultGateway    = "https://openapi.alipay.com/gateway.do"
	DefaultEndpointV3 = "https://openapi.alipay.com"
	DefaultCharset    = "utf-8"
	DefaultVersion    = "1.0"
	DefaultTimeout    = 5 * time.Second

	// SuccessCode is the literal code the gateway returns for a successful call.
	SuccessCode = "10000"

	timestampLayout = "2006-01-02 15:04:05"
	errorEnvelope   = "error_response"
)

// Config is the credential configuration of one application. It is read once
// by New and never mutated afterwards.
type Config struct {
	AppID      string
	PrivateKey string
	// SignType is RSA or RSA2. Empty means RSA2.
	SignType string
	// AlipayPublicKey is used for verification unless AlipayPublicCertContent
	// is set, in which case the certificate's key takes precedence.
	AlipayPublicKey         string
	AppCertContent          string
	AlipayPublicCertContent string
	AlipayRootCertContent   string
	// EncryptKey is the base64 AES key for encrypted biz_content.
	EncryptKey string
	// KeyType is PKCS1 or PKCS8. Empty means PKCS1.
	KeyType string

	Gateway      string
	EndpointV3   string
	Charset      string
	Version      string
	Timeout      time.Duration
	AppAuthToken string
	// ValidateSign makes Exec and RequestV3 verify gateway response signatures.
	ValidateSign bool
}

// Response is a gateway V2 response converted to caller case.
type Response struct {
	Method string
	// Envelope is the top-level key the body was found under.
	Envelope string
	Code     string
	Msg      string
	SubCode  string
	SubMsg   string
	// Body holds every envelope field with camelCase keys.
	Body canonical.Value
	// Sign and CertSN are the response signature and alipay_cert_sn, if any.
	Sign   string
	CertSN string
	Raw    []byte
	// DecryptErr is set when an encrypted envelope could not be decrypted.
	// Body then only holds the plain fields that were present.
	DecryptErr error

	signContent string
}

func (r *Response) Success() bool {
	return r != nil && r.Code == SuccessCode
}

// ExecOptions controls one V2 gateway call.
type ExecOptions struct {
	// Params are extra public parameters such as notify_url or return_url.
	// Keys may be given in either case; they are sent in gateway case.
	Params map[string]string
	// NeedEncrypt encrypts biz_content with the configured AES key.
	NeedEncrypt bool
	// AppAuthToken overrides the configured token for this call.
	AppAuthToken string
	// Idempotent allows the transport to retry the call.
	Idempotent bool
}

// V3Headers are the values attached to a V3 request.
type V3Headers struct {
	Timestamp int64
	Nonce     string
	Signature string
}

// V3Options controls one V3 request.
type V3Options struct {
	Query        url.Values
	Body         canonical.Value
	AppAuthToken string
	Headers      map[string]string
	Idempotent   bool
}

// V3Response is a V3 response body converted to caller case.
type V3Response struct {
	StatusCode int
	TraceID    string
	Header     http.Header
	Data       canonical.Value
	Raw        []byte
}

func (r *V3Response) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}
