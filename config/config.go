// Package config loads client credentials from ALIPAY_* environment
// variables or a YAML file. Key and certificate material can be given inline,
// through a *_PATH variable pointing at a file, or as a PKCS#12 bundle
// holding the application key and certificate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/leavestylecode/alipay-sdk-go/alipay"
	"github.com/leavestylecode/alipay-sdk-go/keys"
)

// File is the YAML layout read by LoadFile.
type File struct {
	AppID                string `yaml:"app_id"`
	PrivateKey           string `yaml:"private_key"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	SignType             string `yaml:"sign_type"`
	KeyType              string `yaml:"key_type"`
	AlipayPublicKey      string `yaml:"alipay_public_key"`
	AlipayPublicKeyPath  string `yaml:"alipay_public_key_path"`
	AppCert              string `yaml:"app_cert"`
	AppCertPath          string `yaml:"app_cert_path"`
	AlipayPublicCert     string `yaml:"alipay_public_cert"`
	AlipayPublicCertPath string `yaml:"alipay_public_cert_path"`
	AlipayRootCert       string `yaml:"alipay_root_cert"`
	AlipayRootCertPath   string `yaml:"alipay_root_cert_path"`
	AppCertPKCS12Path    string `yaml:"app_cert_pkcs12_path"`
	AppCertPKCS12Pass    string `yaml:"app_cert_pkcs12_password"`
	EncryptKey           string `yaml:"encrypt_key"`
	Gateway              string `yaml:"gateway"`
	EndpointV3           string `yaml:"endpoint_v3"`
	Charset              string `yaml:"charset"`
	Version              string `yaml:"version"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`
	AppAuthToken         string `yaml:"app_auth_token"`
	ValidateSign         bool   `yaml:"validate_sign"`
}

// material pairs an inline value with the file it may be read from.
type material struct {
	target  *string
	env     string
	inline  string
	path    string
	baseDir string
}

// Load reads the configuration from the environment alone.
func Load() (alipay.Config, error) {
	return load(File{}, "")
}

// LoadFile reads path as YAML and applies environment overrides on top.
// Relative *_path entries are resolved against the file's directory.
func LoadFile(path string) (alipay.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return alipay.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var file File
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return alipay.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return load(file, filepath.Dir(path))
}

func load(file File, baseDir string) (alipay.Config, error) {
	cfg := alipay.Config{
		AppID:        getEnv("ALIPAY_APP_ID", file.AppID),
		SignType:     getEnv("ALIPAY_SIGN_TYPE", file.SignType),
		KeyType:      getEnv("ALIPAY_KEY_TYPE", file.KeyType),
		EncryptKey:   getEnv("ALIPAY_ENCRYPT_KEY", file.EncryptKey),
		Gateway:      getEnv("ALIPAY_GATEWAY", file.Gateway),
		EndpointV3:   getEnv("ALIPAY_ENDPOINT_V3", file.EndpointV3),
		Charset:      getEnv("ALIPAY_CHARSET", file.Charset),
		Version:      getEnv("ALIPAY_VERSION", file.Version),
		AppAuthToken: getEnv("ALIPAY_APP_AUTH_TOKEN", file.AppAuthToken),
	}

	for _, m := range []material{
		{&cfg.PrivateKey, "ALIPAY_PRIVATE_KEY", file.PrivateKey, file.PrivateKeyPath, baseDir},
		{&cfg.AlipayPublicKey, "ALIPAY_PUBLIC_KEY", file.AlipayPublicKey, file.AlipayPublicKeyPath, baseDir},
		{&cfg.AppCertContent, "ALIPAY_APP_CERT", file.AppCert, file.AppCertPath, baseDir},
		{&cfg.AlipayPublicCertContent, "ALIPAY_PUBLIC_CERT", file.AlipayPublicCert, file.AlipayPublicCertPath, baseDir},
		{&cfg.AlipayRootCertContent, "ALIPAY_ROOT_CERT", file.AlipayRootCert, file.AlipayRootCertPath, baseDir},
	} {
		value, err := m.resolve()
		if err != nil {
			return alipay.Config{}, err
		}
		*m.target = value
	}

	if err := applyPKCS12(&cfg, file, baseDir); err != nil {
		return alipay.Config{}, err
	}

	defaultTimeout := file.TimeoutSeconds
	if defaultTimeout <= 0 {
		defaultTimeout = int(alipay.DefaultTimeout / time.Second)
	}
	if seconds, err := getEnvInt("ALIPAY_TIMEOUT_SECONDS", defaultTimeout); err != nil {
		return alipay.Config{}, err
	} else {
		cfg.Timeout = time.Duration(seconds) * time.Second
	}
	if value, err := getEnvBool("ALIPAY_VALIDATE_SIGN", file.ValidateSign); err != nil {
		return alipay.Config{}, err
	} else {
		cfg.ValidateSign = value
	}

	if err := validate(cfg); err != nil {
		return alipay.Config{}, err
	}
	return cfg, nil
}

func validate(cfg alipay.Config) error {
	if strings.TrimSpace(cfg.AppID) == "" {
		return fmt.Errorf("ALIPAY_APP_ID is required")
	}
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return fmt.Errorf("ALIPAY_PRIVATE_KEY, ALIPAY_PRIVATE_KEY_PATH or ALIPAY_APP_CERT_PKCS12_PATH is required")
	}
	switch value := strings.ToUpper(strings.TrimSpace(cfg.SignType)); value {
	case "", "RSA", "RSA2":
	default:
		return fmt.Errorf("invalid ALIPAY_SIGN_TYPE value %q: expected RSA|RSA2", cfg.SignType)
	}
	switch value := strings.ToUpper(strings.TrimSpace(cfg.KeyType)); value {
	case "", "PKCS1", "PKCS8":
	default:
		return fmt.Errorf("invalid ALIPAY_KEY_TYPE value %q: expected PKCS1|PKCS8", cfg.KeyType)
	}
	if cfg.AppCertContent != "" && cfg.AlipayRootCertContent == "" {
		return fmt.Errorf("ALIPAY_ROOT_CERT is required when ALIPAY_APP_CERT is set")
	}
	return nil
}

// resolve prefers the environment over the file, and within each source an
// inline value over a path.
func (m material) resolve() (string, error) {
	if value := os.Getenv(m.env); value != "" {
		return value, nil
	}
	if path := os.Getenv(m.env + "_PATH"); path != "" {
		return readMaterial(m.env+"_PATH", path)
	}
	if m.inline != "" {
		return m.inline, nil
	}
	if m.path == "" {
		return "", nil
	}
	path := m.path
	if !filepath.IsAbs(path) && m.baseDir != "" {
		path = filepath.Join(m.baseDir, path)
	}
	return readMaterial(strings.ToLower(m.env)+"_path", path)
}

// applyPKCS12 fills the private key and application certificate from a .p12
// bundle. Material given explicitly is left untouched.
func applyPKCS12(cfg *alipay.Config, file File, baseDir string) error {
	name := "ALIPAY_APP_CERT_PKCS12_PATH"
	path := os.Getenv(name)
	if path == "" && file.AppCertPKCS12Path != "" {
		name = "app_cert_pkcs12_path"
		path = file.AppCertPKCS12Path
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
	}
	if path == "" {
		return nil
	}

	bundle, err := keys.LoadPKCS12File(path, getEnv("ALIPAY_APP_CERT_PKCS12_PASSWORD", file.AppCertPKCS12Pass))
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", name, path, err)
	}
	if cfg.PrivateKey == "" {
		encoding, err := keys.ParseKeyEncoding(cfg.KeyType)
		if err != nil {
			encoding = keys.PKCS1
		}
		if cfg.PrivateKey, err = bundle.PrivateKeyPEM(encoding); err != nil {
			return fmt.Errorf("invalid %s value %q: %w", name, path, err)
		}
	}
	if cfg.AppCertContent == "" {
		cfg.AppCertContent = bundle.CertificatePEM()
	}
	return nil
}

func readMaterial(name string, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("invalid %s value %q: %w", name, path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func getEnv(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s value %q: expected true|false", name, raw)
	}
}

func getEnvInt(name string, defaultValue int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, raw, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be > 0", name, value)
	}
	return value, nil
}
