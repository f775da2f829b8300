package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ventus/ftp"
	"github.com/ventus/ftp/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ventus",
	Short: "Ventus - serve a directory and mirror it over FTP",
	Long: `Ventus runs as:

* A server exposing one directory tree over a small FTP-style protocol.
* A client that mirrors a local tree against a remote one, once or live.`,
	SilenceUsage: true,
}

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path of a YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "", "Log level [debug|info|warn|error]")
	pf.StringVar(&logFormat, "log-format", "", "Log format [text|json]")
}

// loadConfig reads the configuration file, if any, then applies the flags
// the user set explicitly. Unset flags never override the file.
func loadConfig(cmd *cobra.Command, apply func(cfg *config.Config, flags *pflag.FlagSet)) (*config.Config, *logrus.Logger, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if apply != nil {
		apply(cfg, flags)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Logger(os.Stderr), nil
}

// newRemote builds the retrying client used by sync and ls.
func newRemote(cfg *config.Config, logger logrus.FieldLogger, extra ...ftp.Option) *ftp.Remote {
	options := []ftp.Option{
		ftp.WithTimeout(cfg.Client.Timeout),
		ftp.WithLogger(logger),
		ftp.WithBandwidthLimit(cfg.Client.BandwidthLimit),
	}
	if cfg.Client.ActiveMode {
		options = append(options, ftp.WithActiveMode())
	}
	options = append(options, extra...)

	policy := ftp.RetryPolicy{
		MaxAttempts: cfg.Client.Retries,
		Delay:       cfg.Client.RetryDelay,
		Logger:      logger,
	}
	return ftp.NewRemote(cfg.Client.Addr, cfg.Client.User, policy, options...)
}

// addClientFlags registers the connection flags shared by sync and ls.
func addClientFlags(flags *pflag.FlagSet) {
	flags.String("addr", "", "Server address (host:port)")
	flags.String("user", "", "User name sent on login")
	flags.Int("retries", 0, "Attempts per remote operation")
	flags.Bool("active", false, "Use active (PORT) data connections")
}

func applyClientFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("addr") {
		cfg.Client.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("user") {
		cfg.Client.User, _ = flags.GetString("user")
	}
	if flags.Changed("retries") {
		cfg.Client.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("active") {
		cfg.Client.ActiveMode, _ = flags.GetBool("active")
	}
}
