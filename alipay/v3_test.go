package alipay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/leavestylecode/alipay-sdk-go/canonical"
	"github.com/leavestylecode/alipay-sdk-go/internal/testutil"
	"github.com/leavestylecode/alipay-sdk-go/sign"
)

// parseAuthorization splits an authorization header into its algorithm and
// key=value fields. ok is false when the header is malformed.
func parseAuthorization(header string) (algorithm string, fields map[string]string, ok bool) {
	algorithm, rest, found := strings.Cut(header, " ")
	if !found {
		return "", nil, false
	}
	fields = map[string]string{}
	for _, part := range strings.Split(rest, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return "", nil, false
		}
		fields[key] = value
	}
	return algorithm, fields, true
}

func TestSignV3Headers(t *testing.T) {
	client := newTestClient(t, testConfig(t))

	headers, err := client.SignV3Headers("post", "/v3/alipay/trade/query", "", `{"out_trade_no":"1"}`, "")
	if err != nil {
		t.Fatalf("sign v3 headers: %v", err)
	}
	if headers.Timestamp != 1700000000000 {
		t.Fatalf("expected clock timestamp, got %d", headers.Timestamp)
	}
	if len(headers.Nonce) != 36 {
		t.Fatalf("expected a uuid nonce, got %q", headers.Nonce)
	}

	content := sign.ContentV3("POST", "/v3/alipay/trade/query", "", `{"out_trade_no":"1"}`, "", 1700000000000)
	if !sign.Verify(content, headers.Signature, &testutil.RSAKey(t).PublicKey, sign.RSA2) {
		t.Fatal("expected v3 signature to verify")
	}

	other, err := client.SignV3Headers("POST", "/v3/alipay/trade/query", "", `{"out_trade_no":"1"}`, "")
	if err != nil {
		t.Fatalf("sign v3 headers: %v", err)
	}
	if other.Nonce == headers.Nonce {
		t.Fatal("expected a fresh nonce per request")
	}

	algorithm, fields, ok := parseAuthorization(client.Authorization(headers))
	if !ok {
		t.Fatalf("malformed authorization %q", client.Authorization(headers))
	}
	if algorithm != "ALIPAY-SHA256withRSA" {
		t.Fatalf("unexpected algorithm %q", algorithm)
	}
	for key, want := range map[string]string{
		"app_id":    testAppID,
		"nonce":     headers.Nonce,
		"timestamp": "1700000000000",
		"sign":      headers.Signature,
	} {
		if fields[key] != want {
			t.Fatalf("expected authorization %s=%q, got %q", key, want, fields[key])
		}
	}
}

// v3Stub verifies the inbound request signature and replies with a body
// signed by the gateway key.
func v3Stub(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request: %v", err)
		}

		algorithm, fields, ok := parseAuthorization(r.Header.Get(HeaderAuthorization))
		if !ok || algorithm != "ALIPAY-SHA256withRSA" {
			t.Errorf("unexpected authorization %q", r.Header.Get(HeaderAuthorization))
		}
		timestamp, err := strconv.ParseInt(fields["timestamp"], 10, 64)
		if err != nil {
			t.Errorf("parse timestamp: %v", err)
		}
		content := sign.ContentV3(r.Method, r.URL.Path, r.URL.RawQuery, string(raw), r.Header.Get(HeaderAppAuthToken), timestamp)
		if !sign.Verify(content, fields["sign"], &testutil.RSAKey(t).PublicKey, sign.RSA2) {
			t.Errorf("request signature did not verify")
		}

		nonce := "b7e1c6d0-0000-4000-8000-000000000001"
		responseTimestamp := "1700000000123"
		signature, err := sign.Sign(sign.CallbackContentV3(responseTimestamp, nonce, reply), alipayKey(t), sign.RSA2)
		if err != nil {
			t.Errorf("sign response: %v", err)
		}
		w.Header().Set(HeaderTimestamp, responseTimestamp)
		w.Header().Set(HeaderNonce, nonce)
		w.Header().Set(HeaderSignature, signature)
		w.Header().Set(HeaderTraceID, "0b6d4a3e17000000001234")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(server.Close)
	return server
}

func v3Client(t *testing.T, server *httptest.Server, validate bool) *Client {
	t.Helper()
	config := testConfig(t)
	config.EndpointV3 = server.URL
	config.ValidateSign = validate
	return newTestClient(t, config)
}

func TestRequestV3(t *testing.T) {
	server := v3Stub(t, http.StatusOK, `{"trade_no":"2013112011001004330000121536","total_amount":"88.88"}`)
	client := v3Client(t, server, true)

	response, err := client.RequestV3(context.Background(), "post", "/v3/alipay/trade/query", V3Options{
		Query:        url.Values{"scene": {"bar code"}},
		Body:         canonical.Object(canonical.F("outTradeNo", canonical.String("20150320010101001"))),
		AppAuthToken: "token-2",
	})
	if err != nil {
		t.Fatalf("request v3: %v", err)
	}
	if !response.Success() || response.TraceID != "0b6d4a3e17000000001234" {
		t.Fatalf("unexpected response status %d trace %q", response.StatusCode, response.TraceID)
	}
	tradeNo, ok := response.Data.Get("tradeNo")
	if !ok || tradeNo.Str() != "2013112011001004330000121536" {
		t.Fatalf("expected caller-case tradeNo, got %v", response.Data.Keys())
	}
}

func TestRequestV3ReturnsGatewayErrors(t *testing.T) {
	server := v3Stub(t, http.StatusBadRequest, `{"code":"INVALID_PARAMETER","message":"参数有误"}`)
	client := v3Client(t, server, false)

	response, err := client.RequestV3(context.Background(), http.MethodGet, "v3/alipay/trade/query", V3Options{})
	if err != nil {
		t.Fatalf("request v3: %v", err)
	}
	if response.Success() {
		t.Fatalf("expected failed response, got status %d", response.StatusCode)
	}
	if code, ok := response.Data.Get("code"); !ok || code.Str() != "INVALID_PARAMETER" {
		t.Fatalf("expected gateway error code, got %v", response.Data.Keys())
	}
}

func TestRequestV3RejectsForgedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature, err := sign.Sign(sign.CallbackContentV3("1", "n", `{}`), testutil.RSAKey(t), sign.RSA2)
		if err != nil {
			t.Errorf("sign: %v", err)
		}
		w.Header().Set(HeaderTimestamp, "1")
		w.Header().Set(HeaderNonce, "n")
		w.Header().Set(HeaderSignature, signature)
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(server.Close)
	client := v3Client(t, server, true)

	_, err := client.RequestV3(context.Background(), http.MethodPost, "/v3/alipay/trade/query", V3Options{})
	if !errors.Is(err, ErrResponseSignature) {
		t.Fatalf("expected ErrResponseSignature, got %v", err)
	}
}

func TestRequestV3ServerErrorIsRequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	client := v3Client(t, server, false)

	_, err := client.RequestV3(context.Background(), http.MethodPost, "/v3/alipay/trade/query", V3Options{})
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}
