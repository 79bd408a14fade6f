package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leavestylecode/alipay-sdk-go/aescbc"
	"github.com/leavestylecode/alipay-sdk-go/alipay"
	"github.com/leavestylecode/alipay-sdk-go/canonical"
	"github.com/leavestylecode/alipay-sdk-go/cert"
)

type requestOptions struct {
	Method  string            `mapstructure:"method"`
	Biz     string            `mapstructure:"biz"`
	Params  map[string]string `mapstructure:"-"`
	Encrypt bool              `mapstructure:"encrypt"`
	Page    bool              `mapstructure:"page"`
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("method", "", "Gateway method, for example alipay.trade.query")
	cmd.Flags().String("biz", "", "Business content as JSON; '-' reads standard input")
	cmd.Flags().StringToString("param", nil, "Extra public parameter key=value (repeatable)")
	cmd.Flags().Bool("encrypt", false, "Encrypt biz_content with the configured AES key")
}

func (c *cli) requestInput(cmd *cobra.Command) (requestOptions, canonical.Value, error) {
	var options requestOptions
	if err := parseOptions(cmd, &options); err != nil {
		return options, canonical.Value{}, err
	}
	params, err := cmd.Flags().GetStringToString("param")
	if err != nil {
		return options, canonical.Value{}, err
	}
	options.Params = params
	if options.Method == "" {
		return options, canonical.Value{}, fmt.Errorf("--method is required")
	}

	raw := options.Biz
	if raw == "-" {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return options, canonical.Value{}, err
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return options, canonical.Null(), nil
	}
	biz, err := canonical.FromJSON([]byte(raw))
	if err != nil {
		return options, canonical.Value{}, fmt.Errorf("--biz: %w", err)
	}
	return options, biz, nil
}

func newSignCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the signed order string for a gateway method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options, biz, err := c.requestInput(cmd)
			if err != nil {
				return err
			}
			client, err := c.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			execOptions := alipay.ExecOptions{Params: options.Params, NeedEncrypt: options.Encrypt}
			var signed string
			if options.Page {
				signed, err = client.PageExec(options.Method, biz, execOptions)
			} else {
				signed, err = client.SDKExec(options.Method, biz, execOptions)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, signed)
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().Bool("page", false, "Print a full gateway URL for page redirects")
	return cmd
}

func newExecCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Call a gateway method and print the response in caller case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options, biz, err := c.requestInput(cmd)
			if err != nil {
				return err
			}
			client, err := c.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			response, err := client.Exec(cmd.Context(), options.Method, biz, alipay.ExecOptions{
				Params:      options.Params,
				NeedEncrypt: options.Encrypt,
			})
			if err != nil {
				return err
			}
			if response.DecryptErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", response.DecryptErr)
			}
			encoded, err := canonical.Encode(response.Body)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, string(encoded))
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}

type verifyOptions struct {
	Form      string `mapstructure:"form"`
	Timestamp string `mapstructure:"timestamp"`
	Nonce     string `mapstructure:"nonce"`
	Signature string `mapstructure:"signature"`
}

func newVerifyNotifyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-notify",
		Short: "Verify an asynchronous notification read from standard input",
		Long: "Without --signature the input is a V2 form-encoded notification. With\n" +
			"--signature the input is a V3 callback body signed over timestamp and nonce.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var options verifyOptions
			if err := parseOptions(cmd, &options); err != nil {
				return err
			}
			client, err := c.newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			input := options.Form
			if input == "" {
				data, err := io.ReadAll(c.in)
				if err != nil {
					return err
				}
				input = strings.TrimRight(string(data), "\r\n")
			}

			var ok bool
			if options.Signature != "" {
				ok, err = client.VerifyCallbackV3(options.Timestamp, options.Nonce, input, options.Signature)
			} else {
				values, parseErr := url.ParseQuery(input)
				if parseErr != nil {
					return fmt.Errorf("parse notification: %w", parseErr)
				}
				params := make(map[string]string, len(values))
				for key := range values {
					params[key] = values.Get(key)
				}
				ok, err = client.VerifyCallback(params)
			}
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(c.out, "signature: invalid")
				return exitError(3)
			}
			fmt.Fprintln(c.out, "signature: valid")
			return nil
		},
	}
	cmd.Flags().String("form", "", "Form-encoded V2 notification; read from standard input when empty")
	cmd.Flags().String("timestamp", "", "V3 alipay-timestamp header")
	cmd.Flags().String("nonce", "", "V3 alipay-nonce header")
	cmd.Flags().String("signature", "", "V3 alipay-signature header")
	return cmd
}

type certOptions struct {
	Root bool `mapstructure:"root"`
}

func newCertCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert-sn FILE",
		Short: "Print the serial numbers and validity of a certificate file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var options certOptions
			if err := parseOptions(cmd, &options); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if options.Root {
				sn, err := cert.RootSN(string(data))
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, sn)
				return nil
			}
			descriptor, err := cert.Parse(string(data))
			if err != nil {
				return err
			}
			return printDescriptor(c.out, descriptor, time.Now())
		},
	}
	cmd.Flags().Bool("root", false, "Treat FILE as a root bundle and print alipay_root_cert_sn")
	return cmd
}

func printDescriptor(out io.Writer, d cert.Descriptor, now time.Time) error {
	rows := map[string]string{
		"sn":            d.SN,
		"serial_number": d.SerialNumber,
		"subject":       d.Subject,
		"issuer":        d.Issuer,
		"not_before":    d.NotBefore.UTC().Format(time.RFC3339),
		"not_after":     d.NotAfter.UTC().Format(time.RFC3339),
		"fingerprint":   d.Fingerprint,
		"valid":         fmt.Sprint(d.ValidAt(now)),
	}
	keys := make([]string, 0, len(rows))
	for key := range rows {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := fmt.Fprintf(out, "%-14s %s\n", key+":", rows[key]); err != nil {
			return err
		}
	}
	return nil
}

type cipherOptions struct {
	Key string `mapstructure:"key"`
}

func (c *cli) cipherInput(cmd *cobra.Command) (string, string, error) {
	var options cipherOptions
	if err := parseOptions(cmd, &options); err != nil {
		return "", "", err
	}
	if options.Key == "" {
		cfg, err := c.loadConfig()
		if err != nil {
			return "", "", fmt.Errorf("--key not given and no configuration: %w", err)
		}
		options.Key = cfg.EncryptKey
	}
	data, err := io.ReadAll(c.in)
	if err != nil {
		return "", "", err
	}
	return strings.TrimRight(string(data), "\r\n"), options.Key, nil
}

func newEncryptCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt standard input the way biz_content is encrypted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plaintext, key, err := c.cipherInput(cmd)
			if err != nil {
				return err
			}
			ciphertext, err := aescbc.Encrypt(plaintext, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, ciphertext)
			return nil
		},
	}
	cmd.Flags().String("key", "", "Base64 AES key; defaults to the configured encrypt key")
	return cmd
}

func newDecryptCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt an encrypted response read from standard input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ciphertext, key, err := c.cipherInput(cmd)
			if err != nil {
				return err
			}
			plaintext, err := aescbc.Decrypt(ciphertext, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, plaintext)
			return nil
		},
	}
	cmd.Flags().String("key", "", "Base64 AES key; defaults to the configured encrypt key")
	return cmd
}
