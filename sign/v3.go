package sign

import (
	"crypto/rsa"
	"net/url"
	"strconv"
	"strings"
)

// ContentV3 builds the outbound V3 signable string. All six fields are always
// present, empty ones as "", so the field count never varies:
//
//	METHOD\npath\nquery\nbody\nauthToken\ntimestampMillis
func ContentV3(method, path, query, body, authToken string, timestampMillis int64) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		path,
		query,
		body,
		authToken,
		strconv.FormatInt(timestampMillis, 10),
	}, "\n")
}

// EncodeQuery renders query parameters exactly as they are sent: sorted by
// key and URL-encoded. Nil or empty input renders as "".
func EncodeQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	return query.Encode()
}

// SignV3 signs the outbound V3 request line.
func SignV3(method, path, query, body, authToken string, timestampMillis int64, key *rsa.PrivateKey, scheme Scheme) (string, error) {
	return Sign(ContentV3(method, path, query, body, authToken, timestampMillis), key, scheme)
}

// CallbackContentV3 is the string the gateway signs on V3 responses and
// callbacks: timestamp, nonce and body joined by newlines. It is narrower
// than the outbound request line on purpose.
func CallbackContentV3(timestamp, nonce, body string) string {
	return timestamp + "\n" + nonce + "\n" + body
}

// VerifyV3 checks a gateway V3 signature. Failures are reported as false.
func VerifyV3(timestamp, nonce, body, signature string, key *rsa.PublicKey, scheme Scheme) bool {
	return Verify(CallbackContentV3(timestamp, nonce, body), signature, key, scheme)
}
