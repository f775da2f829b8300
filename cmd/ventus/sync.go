package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ventus/ftp"
	"github.com/ventus/ftp/internal/config"
	"github.com/ventus/ftp/mirror"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror a local directory against the server",
	Long: `Runs one sync pass: local changes are pushed first, then
remote files missing locally are pulled. Files are compared by size.

With --watch, ventus keeps running and uploads files as they change.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var syncWatch bool

func init() {
	rootCmd.AddCommand(syncCmd)

	flags := syncCmd.Flags()
	addClientFlags(flags)
	flags.String("local", "", "Local directory to mirror")
	flags.String("remote", "", "Remote directory to mirror into")
	flags.Int("concurrency", 0, "Transfers in flight per directory")
	flags.BoolVarP(&syncWatch, "watch", "w", false, "Keep watching the local directory after the first pass")
}

func applySyncFlags(cfg *config.Config, flags *pflag.FlagSet) {
	applyClientFlags(cfg, flags)
	if flags.Changed("local") {
		cfg.Sync.Local, _ = flags.GetString("local")
	}
	if flags.Changed("remote") {
		cfg.Sync.Remote, _ = flags.GetString("remote")
	}
	if flags.Changed("concurrency") {
		cfg.Sync.Concurrency, _ = flags.GetInt("concurrency")
	}
}

// byteMeter sums the bytes moved by concurrent transfers from the running
// totals a ProgressFunc reports.
type byteMeter struct {
	mu    sync.Mutex
	last  map[string]int64
	total int64
}

func newByteMeter() *byteMeter {
	return &byteMeter{last: make(map[string]int64)}
}

func (m *byteMeter) progress(remotePath string, transferred int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.last[remotePath]
	if transferred < prev {
		// A retry or a new transfer of the same path.
		prev = 0
	}
	m.total += transferred - prev
	m.last[remotePath] = transferred
}

func (m *byteMeter) bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, applySyncFlags)
	if err != nil {
		return err
	}

	meter := newByteMeter()
	remote := newRemote(cfg, logger, ftp.WithProgress(meter.progress))

	engine, err := mirror.New(remote, cfg.Sync.Local, cfg.Sync.Remote,
		mirror.WithLogger(logger),
		mirror.WithConcurrency(cfg.Sync.Concurrency),
		mirror.WithDebounce(cfg.Sync.Debounce),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := engine.Sync(ctx)
	printReport(cmd.OutOrStdout(), engine, report, meter.bytes())
	if err != nil {
		return err
	}

	if syncWatch {
		color.New(color.FgCyan).Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", engine.LocalRoot())
		if err := engine.WatchLocal(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	if report.Err != nil {
		return fmt.Errorf("%d entries failed", len(report.Failures()))
	}
	return nil
}

func printReport(w io.Writer, engine *mirror.Engine, r *mirror.Report, bytes int64) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	bold.Fprintf(w, "%s <-> %s\n", engine.LocalRoot(), engine.RemoteRoot())
	green.Fprintf(w, "  uploaded:    %d\n", r.Uploaded)
	green.Fprintf(w, "  downloaded:  %d\n", r.Downloaded)
	fmt.Fprintf(w, "  unchanged:   %d\n", r.Skipped)
	fmt.Fprintf(w, "  directories: %d remote, %d local\n", r.RemoteDirsCreated, r.LocalDirsCreated)
	fmt.Fprintf(w, "  bytes:       %d\n", bytes)

	failures := r.Failures()
	if len(failures) == 0 {
		return
	}
	yellow.Fprintf(w, "  failed:      %d\n", len(failures))
	for _, f := range failures {
		red.Fprintf(w, "    %s %s: %v\n", f.Op, f.Path, f.Err)
	}
}
