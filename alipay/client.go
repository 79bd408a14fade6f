// Package alipay composes key loading, canonicalization, signing and payload
// encryption around HTTP calls to the Alipay open platform gateway.
package alipay

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leavestylecode/alipay-sdk-go/cert"
	"github.com/leavestylecode/alipay-sdk-go/keys"
	"github.com/leavestylecode/alipay-sdk-go/metrics"
	"github.com/leavestylecode/alipay-sdk-go/sign"
)

// Client is safe for concurrent use once New returns.
type Client struct {
	config     Config
	scheme     sign.Scheme
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	appCertSN  string
	rootCertSN string
	certs      *cert.Manager

	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collectors
	replay     *nonceReplayCache
	retry      RetryOptions
	now        func() time.Time
	location   *time.Location
}

type options struct {
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collectors
	replayTTL  time.Duration
	replay     bool
	retry      RetryOptions
	now        func() time.Time
}

type Option func(*options)

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(collectors *metrics.Collectors) Option {
	return func(o *options) { o.metrics = collectors }
}

// WithReplayGuard rejects V3 callbacks whose nonce was seen within ttl.
func WithReplayGuard(ttl time.Duration) Option {
	return func(o *options) {
		o.replay = true
		o.replayTTL = ttl
	}
}

// WithRetry sets the retry policy used for calls marked idempotent.
func WithRetry(retry RetryOptions) Option {
	return func(o *options) { o.retry = retry }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New resolves every key and certificate in config. Malformed material is
// reported as ErrInvalidConfig; a missing public key is only an error once
// verification is requested.
func New(config Config, opts ...Option) (*Client, error) {
	o := options{
		retry: RetryOptions{
			Attempts:  defaultRetryAttempts,
			BaseDelay: defaultRetryBaseDelay,
			MaxDelay:  defaultRetryMaxDelay,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	config = withDefaults(config)
	if strings.TrimSpace(config.AppID) == "" {
		return nil, fmt.Errorf("%w: app id is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(config.PrivateKey) == "" {
		return nil, ErrMissingPrivateKey
	}

	scheme, err := sign.ParseScheme(config.SignType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	encoding, err := keys.ParseKeyEncoding(config.KeyType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	privateKey, err := keys.ParsePrivateKey(config.PrivateKey, encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %v", ErrInvalidConfig, err)
	}

	c := &Client{
		config:     config,
		scheme:     scheme,
		privateKey: privateKey,
		certs:      cert.NewManager(),
		httpClient: o.httpClient,
		logger:     o.logger,
		metrics:    o.metrics,
		retry:      o.retry,
		now:        o.now,
		location:   shanghai(),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: config.Timeout}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}

	if err := c.loadCertificates(); err != nil {
		return nil, err
	}
	if c.publicKey == nil && strings.TrimSpace(config.AlipayPublicKey) != "" {
		c.publicKey, err = keys.ParsePublicKey(config.AlipayPublicKey)
		if err != nil {
			return nil, fmt.Errorf("%w: alipay public key: %v", ErrInvalidConfig, err)
		}
	}
	if config.EncryptKey != "" {
		if _, err := keys.ParseAESKey(config.EncryptKey); err != nil {
			return nil, fmt.Errorf("%w: encrypt key: %v", ErrInvalidConfig, err)
		}
	}

	if o.replay {
		c.replay, err = newNonceReplayCache(o.replayTTL)
		if err != nil {
			return nil, fmt.Errorf("create replay guard: %w", err)
		}
	}

	c.logger.Debug("alipay client ready",
		zap.String("app_id", config.AppID),
		zap.String("sign_type", string(scheme)),
		zap.Bool("cert_mode", c.appCertSN != ""),
	)
	return c, nil
}

func withDefaults(config Config) Config {
	if config.Gateway == "" {
		config.Gateway = DefaultGateway
	}
	if config.EndpointV3 == "" {
		config.EndpointV3 = DefaultEndpointV3
	}
	if config.Charset == "" {
		config.Charset = DefaultCharset
	}
	if config.Version == "" {
		config.Version = DefaultVersion
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return config
}

// loadCertificates derives the certificate serial numbers sent with every
// request and registers the gateway certificate for verification.
func (c *Client) loadCertificates() error {
	var err error
	if content := c.config.AppCertContent; strings.TrimSpace(content) != "" {
		if c.appCertSN, err = cert.AlipaySN(content); err != nil {
			return fmt.Errorf("%w: app certificate: %v", ErrInvalidConfig, err)
		}
	}
	if content := c.config.AlipayRootCertContent; strings.TrimSpace(content) != "" {
		if c.rootCertSN, err = cert.RootSN(content); err != nil {
			return fmt.Errorf("%w: root certificate: %v", ErrInvalidConfig, err)
		}
	}
	if content := c.config.AlipayPublicCertContent; strings.TrimSpace(content) != "" {
		descriptor, err := c.AddAlipayCert(content)
		if err != nil {
			return err
		}
		if descriptor.PublicKey == nil {
			return fmt.Errorf("%w: alipay public certificate: %v", ErrInvalidConfig, cert.ErrNotRSAKey)
		}
		c.publicKey = descriptor.PublicKey
	}
	return nil
}

// AddAlipayCert registers an additional gateway certificate, for example a
// rotated one announced through alipay_cert_sn.
func (c *Client) AddAlipayCert(content string) (cert.Descriptor, error) {
	descriptor, err := cert.Parse(content)
	if err != nil {
		return cert.Descriptor{}, fmt.Errorf("%w: alipay public certificate: %v", ErrInvalidConfig, err)
	}
	if err := c.certs.Add(descriptor); err != nil {
		return cert.Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !descriptor.ValidAt(c.now()) {
		c.logger.Warn("alipay public certificate is outside its validity window",
			zap.String("sn", descriptor.SN),
			zap.Time("not_after", descriptor.NotAfter),
		)
	}
	return descriptor, nil
}

// Certificates is the registry of gateway certificates used for verification.
func (c *Client) Certificates() *cert.Manager {
	return c.certs
}

func (c *Client) AppCertSN() string  { return c.appCertSN }
func (c *Client) RootCertSN() string { return c.rootCertSN }

// Close releases the replay guard, if one was configured.
func (c *Client) Close() error {
	if c.replay == nil {
		return nil
	}
	return c.replay.Close()
}

// verificationKey picks the key for a gateway signature: the certificate
// named by certSN when it is registered, then the configured certificate or
// raw public key.
func (c *Client) verificationKey(certSN string) (*rsa.PublicKey, error) {
	if certSN != "" {
		if descriptor, ok := c.certs.Get(certSN); ok && descriptor.PublicKey != nil {
			return descriptor.PublicKey, nil
		}
		c.logger.Debug("unknown alipay_cert_sn, using configured key", zap.String("sn", certSN))
	}
	if c.publicKey == nil {
		return nil, ErrMissingPublicKey
	}
	return c.publicKey, nil
}

func shanghai() *time.Location {
	location, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*60*60)
	}
	return location
}
