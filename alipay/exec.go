package alipay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/leavestylecode/alipay-sdk-go/aescbc"
	"github.com/leavestylecode/alipay-sdk-go/canonical"
	"github.com/leavestylecode/alipay-sdk-go/sign"
)

const (
	paramAppID        = "app_id"
	paramMethod       = "method"
	paramFormat       = "format"
	paramCharset      = "charset"
	paramSignType     = "sign_type"
	paramTimestamp    = "timestamp"
	paramVersion      = "version"
	paramAppCertSN    = "app_cert_sn"
	paramRootCertSN   = "alipay_root_cert_sn"
	paramAppAuthToken = "app_auth_token"
	paramBizContent   = "biz_content"
	paramEncryptType  = "encrypt_type"
	paramAlipayCertSN = "alipay_cert_sn"
)

// BuildSignedParams completes params with the public protocol fields and
// returns the full set including sign. Input keys must already be in gateway
// case; empty values are dropped.
func (c *Client) BuildSignedParams(method string, params map[string]string) (map[string]string, error) {
	if strings.TrimSpace(method) == "" {
		return nil, fmt.Errorf("%w: method is required", ErrInvalidConfig)
	}
	out := canonical.RemoveEmpty(params)
	delete(out, sign.FieldSign)

	out[paramAppID] = c.config.AppID
	out[paramMethod] = method
	out[paramFormat] = "JSON"
	out[paramCharset] = c.config.Charset
	out[paramSignType] = string(c.scheme)
	out[paramTimestamp] = c.now().In(c.location).Format(timestampLayout)
	out[paramVersion] = c.config.Version
	if c.appCertSN != "" {
		out[paramAppCertSN] = c.appCertSN
	}
	if c.rootCertSN != "" {
		out[paramRootCertSN] = c.rootCertSN
	}
	if _, ok := out[paramAppAuthToken]; !ok && c.config.AppAuthToken != "" {
		out[paramAppAuthToken] = c.config.AppAuthToken
	}

	signature, err := sign.Sign(sign.Content(out), c.privateKey, c.scheme)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}
	c.metrics.RecordSignature("v2", string(c.scheme))
	out[sign.FieldSign] = signature
	return out, nil
}

// requestParams renders biz into biz_content, encrypting it when asked, and
// merges the caller's extra public parameters in gateway case.
func (c *Client) requestParams(biz canonical.Value, opts ExecOptions) (map[string]string, error) {
	params := make(map[string]string, len(opts.Params)+3)
	for key, value := range opts.Params {
		params[canonical.Decamelize(key)] = value
	}
	if opts.AppAuthToken != "" {
		params[paramAppAuthToken] = opts.AppAuthToken
	}

	if biz.IsNull() {
		return params, nil
	}
	if biz.Kind() != canonical.KindObject {
		return nil, fmt.Errorf("%w: biz content must be an object, got %s", ErrInvalidConfig, biz.Kind())
	}
	content, err := canonical.Encode(canonical.RemoveEmptyValues(canonical.ToGatewayCase(biz)))
	if err != nil {
		return nil, err
	}
	bizContent := string(content)
	if opts.NeedEncrypt {
		if c.config.EncryptKey == "" {
			return nil, ErrMissingEncryptKey
		}
		if bizContent, err = aescbc.Encrypt(bizContent, c.config.EncryptKey); err != nil {
			return nil, err
		}
		params[paramEncryptType] = aescbc.EncryptType
	}
	params[paramBizContent] = bizContent
	return params, nil
}

// Exec performs a classic gateway call. Business failures (code other than
// 10000) are returned as a Response, not as an error.
func (c *Client) Exec(ctx context.Context, method string, biz canonical.Value, opts ExecOptions) (*Response, error) {
	params, err := c.requestParams(biz, opts)
	if err != nil {
		return nil, err
	}
	signed, err := c.BuildSignedParams(method, params)
	if err != nil {
		return nil, err
	}
	form := encodeParams(signed)
	endpoint := c.config.Gateway + "?" + url.Values{paramCharset: {c.config.Charset}}.Encode()

	c.logger.Debug("alipay exec", zap.String("method", method), zap.Bool("encrypted", opts.NeedEncrypt))
	result, err := c.roundTrip(ctx, "v2", opts.Idempotent, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset="+c.config.Charset)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if result.status != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrRequestFailed, method, result.status)
	}

	response, err := c.ToCallerShape(method, result.body, opts.NeedEncrypt)
	if err != nil {
		return nil, err
	}
	if c.config.ValidateSign {
		if err := c.verifyResponse(response); err != nil {
			return nil, err
		}
	}
	if !response.Success() {
		c.logger.Info("alipay business error",
			zap.String("method", method),
			zap.String("code", response.Code),
			zap.String("sub_code", response.SubCode),
			zap.String("sub_msg", response.SubMsg),
		)
	}
	return response, nil
}

// verifyResponse checks the gateway signature over the raw envelope text.
// Error envelopes may legitimately arrive unsigned.
func (c *Client) verifyResponse(response *Response) error {
	if response.Sign == "" {
		if response.Envelope == errorEnvelope {
			return nil
		}
		return fmt.Errorf("%w: response for %s is unsigned", ErrResponseSignature, response.Method)
	}
	key, err := c.verificationKey(response.CertSN)
	if err != nil {
		return err
	}
	ok := sign.Verify(response.signContent, response.Sign, key, c.scheme)
	c.metrics.RecordVerification("v2_response", ok)
	if !ok {
		return fmt.Errorf("%w: %s", ErrResponseSignature, response.Method)
	}
	return nil
}

// ToCallerShape locates the response envelope for method, decrypts it when
// the call was encrypted and converts every key to caller case. A decryption
// failure does not fail the call; it is reported on Response.DecryptErr.
func (c *Client) ToCallerShape(method string, body []byte, encrypted bool) (*Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	envelopeKey := ResponseKey(method)
	raw, ok := fields[envelopeKey]
	if !ok {
		envelopeKey = errorEnvelope
		if raw, ok = fields[errorEnvelope]; !ok {
			return nil, fmt.Errorf("%w: neither %s nor %s present", ErrResponseInvalid, ResponseKey(method), errorEnvelope)
		}
	}

	response := &Response{
		Method:      method,
		Envelope:    envelopeKey,
		Raw:         body,
		Sign:        rawString(fields[sign.FieldSign]),
		CertSN:      rawString(fields[paramAlipayCertSN]),
		signContent: string(raw),
	}

	envelope, err := canonical.FromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResponseInvalid, envelopeKey, err)
	}
	if envelope.Kind() == canonical.KindString {
		if !encrypted {
			return nil, fmt.Errorf("%w: %s is an encrypted string but the call was not encrypted", ErrResponseInvalid, envelopeKey)
		}
		envelope, response.DecryptErr = c.decryptEnvelope(envelope.Str())
		if response.DecryptErr != nil {
			c.metrics.RecordDecryptFailure()
			c.logger.Warn("alipay response could not be decrypted",
				zap.String("method", method),
				zap.Error(response.DecryptErr),
			)
		}
	}
	if envelope.Kind() != canonical.KindObject {
		return nil, fmt.Errorf("%w: %s is a %s, want object", ErrResponseInvalid, envelopeKey, envelope.Kind())
	}

	response.Body = canonical.ToCallerCase(envelope)
	response.Code = scalarField(envelope, "code")
	response.Msg = scalarField(envelope, "msg")
	response.SubCode = scalarField(envelope, "sub_code")
	response.SubMsg = scalarField(envelope, "sub_msg")
	return response, nil
}

func (c *Client) decryptEnvelope(ciphertext string) (canonical.Value, error) {
	if c.config.EncryptKey == "" {
		return canonical.Object(), fmt.Errorf("%w: %w", aescbc.ErrInvalidKey, ErrMissingEncryptKey)
	}
	plain, err := aescbc.Decrypt(ciphertext, c.config.EncryptKey)
	if err != nil {
		return canonical.Object(), err
	}
	decoded, err := canonical.FromJSON([]byte(plain))
	if err != nil || decoded.Kind() != canonical.KindObject {
		return canonical.Object(), fmt.Errorf("%w: decrypted content is not a JSON object", aescbc.ErrDecrypt)
	}
	return decoded, nil
}

// ResponseKey is the envelope key of a successful response to method.
func ResponseKey(method string) string {
	return strings.ReplaceAll(method, ".", "_") + "_response"
}

// SDKExec returns the signed, URL-encoded order string handed to the Alipay
// app SDK. Nothing is sent.
func (c *Client) SDKExec(method string, biz canonical.Value, opts ExecOptions) (string, error) {
	params, err := c.requestParams(biz, opts)
	if err != nil {
		return "", err
	}
	signed, err := c.BuildSignedParams(method, params)
	if err != nil {
		return "", err
	}
	return encodeParams(signed), nil
}

// PageExec returns the signed gateway URL a browser is redirected to for
// page payments. Nothing is sent.
func (c *Client) PageExec(method string, biz canonical.Value, opts ExecOptions) (string, error) {
	query, err := c.SDKExec(method, biz, opts)
	if err != nil {
		return "", err
	}
	return c.config.Gateway + "?" + query, nil
}

func encodeParams(params map[string]string) string {
	values := make(url.Values, len(params))
	for key, value := range params {
		values.Set(key, value)
	}
	return values.Encode()
}

func scalarField(v canonical.Value, key string) string {
	field, ok := v.Get(key)
	if !ok {
		return ""
	}
	rendered, err := field.Scalar()
	if err != nil {
		return ""
	}
	return rendered
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return out
}
