package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ventus/ftp/internal/config"
	"github.com/ventus/ftp/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a directory tree",
	Long: `Serves the configured root directory until interrupted.

Clients are confined to the root; paths that would leave it,
through ".." or symlinks, are refused.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd.Flags())
}

func addServeFlags(flags *pflag.FlagSet) {
	flags.String("listen", "", "Address to listen on")
	flags.String("root", "", "Directory to serve")
	flags.String("public-host", "", "Address advertised in PASV replies")
	flags.IntSlice("passive-ports", nil, "Passive port range as min,max")
	flags.Int("max-connections", 0, "Maximum simultaneous sessions (0 is unlimited)")
	flags.Int64("bandwidth-limit", 0, "Bytes per second across all transfers (0 is unlimited)")
}

func applyServeFlags(cfg *config.Config, flags *pflag.FlagSet) {
	if flags.Changed("listen") {
		cfg.Server.Listen, _ = flags.GetString("listen")
	}
	if flags.Changed("root") {
		cfg.Server.Root, _ = flags.GetString("root")
	}
	if flags.Changed("public-host") {
		cfg.Server.PublicHost, _ = flags.GetString("public-host")
	}
	if flags.Changed("passive-ports") {
		ports, _ := flags.GetIntSlice("passive-ports")
		// Validate reports a malformed range.
		cfg.Server.PassivePorts = [2]int{-1, -1}
		if len(ports) == 2 {
			cfg.Server.PassivePorts = [2]int{ports[0], ports[1]}
		}
	}
	if flags.Changed("max-connections") {
		cfg.Server.MaxConnections, _ = flags.GetInt("max-connections")
	}
	if flags.Changed("bandwidth-limit") {
		cfg.Server.BandwidthLimit, _ = flags.GetInt64("bandwidth-limit")
	}
}

func serverOptions(cfg *config.Config) []server.Option {
	sc := cfg.Server
	options := []server.Option{
		server.WithRoot(sc.Root),
		server.WithMaxIdleTime(sc.IdleTimeout),
		server.WithDataTimeout(sc.DataTimeout),
		server.WithChunkSize(sc.ChunkSize),
		server.WithMaxConnections(sc.MaxConnections),
		server.WithBandwidthLimit(sc.BandwidthLimit),
	}
	if sc.PublicHost != "" {
		options = append(options, server.WithPublicHost(sc.PublicHost))
	}
	if sc.PassivePorts != [2]int{} {
		options = append(options, server.WithPassivePortRange(sc.PassivePorts[0], sc.PassivePorts[1]))
	}
	if sc.Welcome != "" {
		options = append(options, server.WithWelcomeMessage(sc.Welcome))
	}
	return options
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, applyServeFlags)
	if err != nil {
		return err
	}

	s, err := server.NewServer(cfg.Server.Listen, append(serverOptions(cfg), server.WithLogger(logger))...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := s.Shutdown(); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	if err := <-errCh; err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}
