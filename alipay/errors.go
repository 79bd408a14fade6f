package alipay

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid alipay configuration")
	ErrMissingPrivateKey = errors.New("alipay private key is not configured")
	ErrMissingPublicKey  = errors.New("alipay public key or public certificate is not configured")
	ErrMissingEncryptKey = errors.New("alipay encrypt key is not configured")
	ErrResponseSignature = errors.New("alipay response signature verification failed")
	ErrResponseInvalid   = errors.New("invalid alipay response")
	ErrRequestFailed     = errors.New("alipay request failed")
	ErrNonceReplayed     = errors.New("alipay callback nonce already seen")
)
