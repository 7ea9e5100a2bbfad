package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ftpsync/internal/daemon"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running ftpsync process",
	Long: `Signal the ftpsync process recorded in the PID file to shut down.

The running process stops every session gracefully, flushing final result
and summary artifacts, before it exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopRun()
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func stopRun() error {
	pf := daemon.NewPIDFile(viper.GetString("pid_path"))

	pid, running := pf.IsRunning()
	if !running {
		ui.Warning("no running ftpsync process found")
		return nil
	}

	if err := pf.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal PID %d: %w", pid, err)
	}
	ui.Success("sent stop signal to PID %d", pid)
	return nil
}
