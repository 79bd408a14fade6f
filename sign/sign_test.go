package sign

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/url"
	"testing"

	"github.com/leavestylecode/alipay-sdk-go/internal/testutil"
	"github.com/leavestylecode/alipay-sdk-go/keys"
)

func mustSign(t *testing.T, content string, key *rsa.PrivateKey, scheme Scheme) string {
	t.Helper()
	signature, err := Sign(content, key, scheme)
	if err != nil {
		t.Fatalf("sign with %s: %v", scheme, err)
	}
	return signature
}

func TestContentSortsAndSkipsSignAndEmpty(t *testing.T) {
	content := Content(map[string]string{"b": "2", "a": "1", "sign": "x", "c": ""})
	if content != "a=1&b=2" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestContentIsByteOrderedAndUnencoded(t *testing.T) {
	content := Content(map[string]string{
		"biz_content": `{"subject":"a&b=c"}`,
		"app_id":      "2014072300007148",
		"Zeta":        "upper sorts first",
		"sign_type":   "RSA2",
		"charset":     "utf-8",
		"amount":      "0",
	})
	want := `Zeta=upper sorts first&amount=0&app_id=2014072300007148&biz_content={"subject":"a&b=c"}&charset=utf-8&sign_type=RSA2`
	if content != want {
		t.Fatalf("expected content\n%s\ngot\n%s", want, content)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testutil.RSAKey(t)
	content := Content(map[string]string{"app_id": "2021000000000000", "method": "alipay.trade.query", "timestamp": "2024-01-01 00:00:00"})

	for _, scheme := range []Scheme{RSA, RSA2} {
		signature := mustSign(t, content, key, scheme)
		if !Verify(content, signature, &key.PublicKey, scheme) {
			t.Fatalf("%s: expected signature to verify", scheme)
		}
		if Verify(content+"x", signature, &key.PublicKey, scheme) {
			t.Fatalf("%s: expected tampered content to fail", scheme)
		}
	}
}

func TestRSASchemeIsSHA1PKCS1v15(t *testing.T) {
	key := testutil.RSAKey(t)
	signature := mustSign(t, "a=1", key, RSA)

	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	sum := sha1.Sum([]byte("a=1"))
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA1, sum[:], raw); err != nil {
		t.Fatalf("expected SHA1 PKCS#1 v1.5 signature: %v", err)
	}
	if Verify("a=1", signature, &key.PublicKey, RSA2) {
		t.Fatal("expected RSA signature to fail under RSA2")
	}
}

func TestVerifyRejectsEverySingleBitMutation(t *testing.T) {
	key := testutil.RSAKey(t)
	raw, err := base64.StdEncoding.DecodeString(mustSign(t, "a=1&b=2", key, RSA2))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	for i := 0; i < len(raw)*8; i++ {
		mutated := append([]byte(nil), raw...)
		mutated[i/8] ^= 1 << (i % 8)
		encoded := base64.StdEncoding.EncodeToString(mutated)
		if Verify("a=1&b=2", encoded, &key.PublicKey, RSA2) {
			t.Fatalf("expected flipped bit %d to fail verification", i)
		}
	}
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	key := testutil.RSAKey(t)
	cases := map[string]bool{
		"bad base64":     Verify("a=1", "%%%not-base64", &key.PublicKey, RSA2),
		"empty":          Verify("a=1", "", &key.PublicKey, RSA2),
		"nil key":        Verify("a=1", "AAAA", nil, RSA2),
		"zero key":       Verify("a=1", "AAAA", &rsa.PublicKey{}, RSA2),
		"unknown scheme": Verify("a=1", "AAAA", &key.PublicKey, Scheme("MD5")),
		"bad pem":        VerifyPEM("a=1", "AAAA", "garbage", RSA2),
	}
	for name, ok := range cases {
		if ok {
			t.Fatalf("%s: expected verification failure", name)
		}
	}
}

func TestSignRejectsUnknownSchemeAndNilKey(t *testing.T) {
	key := testutil.RSAKey(t)
	if _, err := Sign("a=1", key, Scheme("RSA3")); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
	if _, err := Sign("a=1", nil, RSA2); !errors.Is(err, ErrNilKey) {
		t.Fatalf("expected ErrNilKey, got %v", err)
	}
}

func TestSignPEMAndVerifyPEM(t *testing.T) {
	key := testutil.RSAKey(t)
	private := testutil.PrivateKeyPKCS8PEM(t, key)
	public := testutil.PublicKeyPEM(t, &key.PublicKey)

	signature, err := SignPEM("a=1", private, RSA2, keys.PKCS8)
	if err != nil {
		t.Fatalf("sign with PKCS#8 PEM: %v", err)
	}
	if !VerifyPEM("a=1", signature, public, RSA2) {
		t.Fatal("expected PEM signature to verify")
	}
}

func TestParseScheme(t *testing.T) {
	scheme, err := ParseScheme("")
	if err != nil || scheme != RSA2 {
		t.Fatalf("expected empty scheme to default to RSA2, got %q, %v", scheme, err)
	}

	scheme, err = ParseScheme("rsa")
	if err != nil || scheme != RSA {
		t.Fatalf("expected rsa to parse as RSA, got %q, %v", scheme, err)
	}
	if scheme.Algorithm() != "SHA1withRSA" {
		t.Fatalf("unexpected algorithm %q", scheme.Algorithm())
	}

	if _, err := ParseScheme("HMAC"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestContentV3(t *testing.T) {
	content := ContentV3("post", "/v3/pay", "", `{"a":1}`, "", 1700000000000)
	if want := "POST\n/v3/pay\n\n{\"a\":1}\n\n1700000000000"; content != want {
		t.Fatalf("expected %q, got %q", want, content)
	}

	withQuery := ContentV3("GET", "/v3/alipay/trade/query", EncodeQuery(url.Values{"b": {"x y"}, "a": {"1"}}), "", "token", 1)
	if want := "GET\n/v3/alipay/trade/query\na=1&b=x+y\n\ntoken\n1"; withQuery != want {
		t.Fatalf("expected %q, got %q", want, withQuery)
	}
}

func TestSignV3AndVerifyCallback(t *testing.T) {
	key := testutil.RSAKey(t)

	signature, err := SignV3("POST", "/v3/pay", "", `{"a":1}`, "", 1700000000000, key, RSA2)
	if err != nil {
		t.Fatalf("sign v3: %v", err)
	}
	if !Verify("POST\n/v3/pay\n\n{\"a\":1}\n\n1700000000000", signature, &key.PublicKey, RSA2) {
		t.Fatal("expected v3 request signature to verify")
	}

	body := `{"code":"10000"}`
	callback := mustSign(t, CallbackContentV3("1700000000000", "nonce-1", body), key, RSA2)
	if !VerifyV3("1700000000000", "nonce-1", body, callback, &key.PublicKey, RSA2) {
		t.Fatal("expected callback signature to verify")
	}
	if VerifyV3("1700000000000", "nonce-2", body, callback, &key.PublicKey, RSA2) {
		t.Fatal("expected a different nonce to fail")
	}
	if VerifyV3("1700000000000", "nonce-1", body, "###", &key.PublicKey, RSA2) {
		t.Fatal("expected malformed signature to fail")
	}
}
