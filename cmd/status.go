package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/ftpsync/internal/artifact"
	"github.com/joescharf/ftpsync/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status <status-file>",
	Short: "Show a session's current progress",
	Long: `Read and render a status artifact written by a running session.

The status file is polled out-of-band: it can be read while the owning
session is running, after it stopped, or from another machine entirely.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(path string) error {
	rec, err := artifact.ReadStatus(path)
	if errors.Is(err, artifact.ErrUnavailable) {
		ui.Warning("status unavailable: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}

	ui.Info("session %s is %s (updated %s)",
		output.Cyan(rec.SessionID),
		output.PhaseColor(string(rec.Phase)),
		rec.UpdatedAt.Local().Format("15:04:05"))

	table := ui.Table([]string{"Scanned", "Downloaded", "Skipped", "Failed"})
	table.Append([]string{
		strconv.Itoa(rec.Counters.Scanned),
		strconv.Itoa(rec.Counters.Downloaded),
		strconv.Itoa(rec.Counters.Skipped),
		strconv.Itoa(rec.Counters.Failed),
	})
	if err := table.Render(); err != nil {
		return err
	}

	if rec.LastError != "" {
		ui.Warning("last error: %s", rec.LastError)
	}
	return nil
}
