package alipay

import (
	"go.uber.org/zap"

	"github.com/leavestylecode/alipay-sdk-go/sign"
)

// VerifyCallback checks an asynchronous V2 notification. sign and sign_type
// are excluded from the signed content; a bad signature is false, not an
// error. Missing key material is ErrMissingPublicKey.
func (c *Client) VerifyCallback(params map[string]string) (bool, error) {
	key, err := c.verificationKey(params[paramAlipayCertSN])
	if err != nil {
		return false, err
	}

	scheme := c.scheme
	if raw := params[paramSignType]; raw != "" {
		if scheme, err = sign.ParseScheme(raw); err != nil {
			c.logger.Warn("notification uses an unsupported sign_type", zap.String("sign_type", raw))
			c.metrics.RecordVerification("v2_notify", false)
			return false, nil
		}
	}

	content := make(map[string]string, len(params))
	for name, value := range params {
		if name == sign.FieldSign || name == paramSignType {
			continue
		}
		content[name] = value
	}

	ok := sign.Verify(sign.Content(content), params[sign.FieldSign], key, scheme)
	c.metrics.RecordVerification("v2_notify", ok)
	if !ok {
		c.logger.Warn("notification signature rejected", zap.String("notify_id", params["notify_id"]))
	}
	return ok, nil
}

// CheckNotifySign is VerifyCallback.
func (c *Client) CheckNotifySign(params map[string]string) (bool, error) {
	return c.VerifyCallback(params)
}

// VerifyCallbackV3 checks a V3 callback signed over timestamp, nonce and
// body. With a replay guard configured, a nonce that already passed
// verification is rejected with ErrNonceReplayed.
func (c *Client) VerifyCallbackV3(timestamp, nonce, body, signature string) (bool, error) {
	key, err := c.verificationKey("")
	if err != nil {
		return false, err
	}

	ok := sign.VerifyV3(timestamp, nonce, body, signature, key, c.scheme)
	c.metrics.RecordVerification("v3_notify", ok)
	if !ok {
		c.logger.Warn("v3 callback signature rejected", zap.String("nonce", nonce))
		return false, nil
	}

	if c.replay != nil {
		seen, err := c.replay.Seen(c.config.AppID, nonce)
		if err != nil {
			return false, err
		}
		if seen {
			c.metrics.RecordReplay()
			c.logger.Warn("v3 callback nonce replayed", zap.String("nonce", nonce))
			return false, ErrNonceReplayed
		}
	}
	return true, nil
}

// CheckNotifySignV3 is VerifyCallbackV3.
func (c *Client) CheckNotifySignV3(timestamp, nonce, body, signature string) (bool, error) {
	return c.VerifyCallbackV3(timestamp, nonce, body, signature)
}
