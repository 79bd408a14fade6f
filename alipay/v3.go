package alipay

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leavestylecode/alipay-sdk-go/canonical"
	"github.com/leavestylecode/alipay-sdk-go/sign"
)

const (
	HeaderAuthorization = "authorization"
	HeaderAppAuthToken  = "alipay-app-auth-token"
	HeaderTimestamp     = "alipay-timestamp"
	HeaderNonce         = "alipay-nonce"
	HeaderSignature     = "alipay-signature"
	HeaderSN            = "alipay-sn"
	HeaderTraceID       = "alipay-trace-id"
)

// SignV3Headers signs a V3 request line with a fresh timestamp and nonce.
// query must be encoded exactly as it will be sent.
func (c *Client) SignV3Headers(method, path, query, body, authToken string) (V3Headers, error) {
	timestamp := c.now().UnixMilli()
	signature, err := sign.SignV3(method, path, query, body, authToken, timestamp, c.privateKey, c.scheme)
	if err != nil {
		return V3Headers{}, fmt.Errorf("sign %s %s: %w", strings.ToUpper(method), path, err)
	}
	c.metrics.RecordSignature("v3", string(c.scheme))
	return V3Headers{
		Timestamp: timestamp,
		Nonce:     uuid.NewString(),
		Signature: signature,
	}, nil
}

// Authorization renders headers as the value of the authorization header.
func (c *Client) Authorization(headers V3Headers) string {
	return fmt.Sprintf("ALIPAY-%s app_id=%s,nonce=%s,timestamp=%d,sign=%s",
		c.scheme.Algorithm(), c.config.AppID, headers.Nonce, headers.Timestamp, headers.Signature)
}

// RequestV3 performs a header-signed V3 call. Non-2xx answers from the
// gateway are returned as a V3Response carrying the error body; only
// transport failures and 5xx statuses are errors.
func (c *Client) RequestV3(ctx context.Context, httpMethod string, path string, opts V3Options) (*V3Response, error) {
	httpMethod = strings.ToUpper(strings.TrimSpace(httpMethod))
	if httpMethod == "" {
		httpMethod = http.MethodPost
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	query := sign.EncodeQuery(opts.Query)
	var body string
	if !opts.Body.IsNull() {
		encoded, err := canonical.Encode(canonical.RemoveEmptyValues(canonical.ToGatewayCase(opts.Body)))
		if err != nil {
			return nil, err
		}
		body = string(encoded)
	}
	authToken := opts.AppAuthToken
	if authToken == "" {
		authToken = c.config.AppAuthToken
	}

	headers, err := c.SignV3Headers(httpMethod, path, query, body, authToken)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(c.config.EndpointV3, "/") + path
	if query != "" {
		endpoint += "?" + query
	}

	c.logger.Debug("alipay v3 request", zap.String("method", httpMethod), zap.String("path", path))
	result, err := c.roundTrip(ctx, "v3", opts.Idempotent, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, httpMethod, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Accept", "application/json")
		req.Header.Set(HeaderAuthorization, c.Authorization(headers))
		if authToken != "" {
			req.Header.Set(HeaderAppAuthToken, authToken)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if result.status >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s %s returned HTTP %d", ErrRequestFailed, httpMethod, path, result.status)
	}

	if c.config.ValidateSign {
		if err := c.verifyV3Response(result); err != nil {
			return nil, err
		}
	}

	response := &V3Response{
		StatusCode: result.status,
		TraceID:    result.header.Get(HeaderTraceID),
		Header:     result.header,
		Data:       canonical.Object(),
		Raw:        result.body,
	}
	if len(strings.TrimSpace(string(result.body))) > 0 {
		data, err := canonical.FromJSON(result.body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
		}
		response.Data = canonical.ToCallerCase(data)
	}
	if !response.Success() {
		c.logger.Info("alipay v3 error response",
			zap.String("path", path),
			zap.Int("status", result.status),
			zap.String("trace_id", response.TraceID),
		)
	}
	return response, nil
}

func (c *Client) verifyV3Response(result exchange) error {
	timestamp := result.header.Get(HeaderTimestamp)
	nonce := result.header.Get(HeaderNonce)
	signature := result.header.Get(HeaderSignature)
	if signature == "" {
		return fmt.Errorf("%w: %s header missing", ErrResponseSignature, HeaderSignature)
	}
	key, err := c.verificationKey(result.header.Get(HeaderSN))
	if err != nil {
		return err
	}
	ok := sign.VerifyV3(timestamp, nonce, string(result.body), signature, key, c.scheme)
	c.metrics.RecordVerification("v3_response", ok)
	if !ok {
		return ErrResponseSignature
	}
	return nil
}
