package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/ventus/ftp"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a remote directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
	addClientFlags(lsCmd.Flags())
}

func runLs(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd, applyClientFlags)
	if err != nil {
		return err
	}

	dir := "/"
	if len(args) == 1 {
		dir = args[0]
	}

	entries, err := newRemote(cfg, logger).List(context.Background(), dir)
	if err != nil {
		return err
	}
	return renderEntries(cmd.OutOrStdout(), entries)
}

// renderEntries prints directories first, then files, each sorted by name.
func renderEntries(w io.Writer, entries []*ftp.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Directory is empty")
		return nil
	}

	slices.SortFunc(entries, func(a, b *ftp.Entry) int {
		if a.IsDir() != b.IsDir() {
			if a.IsDir() {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})

	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithRendition(tw.Rendition{Borders: tw.Border{Left: tw.Pending, Right: tw.Pending, Top: tw.Pending, Bottom: tw.Pending}}),
	)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Header = tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		}
		cfg.Row = tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		}
	})
	table.Header("Name", "Type", "Size")

	for _, e := range entries {
		name, size := e.Name, formatSize(e.Size)
		if e.IsDir() {
			name += "/"
			size = "-"
		}
		if err := table.Append([]string{name, string(e.Type), size}); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
