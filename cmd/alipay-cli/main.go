package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/leavestylecode/alipay-sdk-go/alipay"
	"github.com/leavestylecode/alipay-sdk-go/config"
	"github.com/leavestylecode/alipay-sdk-go/logging"
)

type globalOptions struct {
	ConfigFile string `mapstructure:"config"`
	Verbose    int    `mapstructure:"verbose"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var exitErr exitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr))
		}
		os.Exit(1)
	}
}

// exitError carries a non-error exit status, used when a signature is
// rejected.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

type cli struct {
	in     io.Reader
	out    io.Writer
	global globalOptions
}

func run(ctx context.Context, in io.Reader, out io.Writer, args ...string) error {
	c := &cli{in: in, out: out}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:               "alipay-cli",
		Short:             "Sign, verify and inspect Alipay open platform requests",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := parseOptions(cmd, &c.global); err != nil {
				return err
			}
			logging.Initialize(c.global.Verbose)
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "YAML credential file; ALIPAY_* variables override it")
	root.PersistentFlags().CountP("verbose", "v", "Increase log verbosity")

	root.AddCommand(
		newSignCmd(c),
		newExecCmd(c),
		newVerifyNotifyCmd(c),
		newCertCmd(c),
		newEncryptCmd(c),
		newDecryptCmd(c),
	)
	return root
}

// parseOptions fills options from flags, then ALIPAY_CLI_* variables.
func parseOptions(cmd *cobra.Command, options any) error {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("ALIPAY_CLI")
	v.AutomaticEnv()
	return v.Unmarshal(options)
}

func (c *cli) loadConfig() (alipay.Config, error) {
	if c.global.ConfigFile != "" {
		return config.LoadFile(c.global.ConfigFile)
	}
	return config.Load()
}

func (c *cli) newClient() (*alipay.Client, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logging.L.Debug("credentials loaded", zap.String("app_id", cfg.AppID))
	return alipay.New(cfg, alipay.WithLogger(logging.L))
}
