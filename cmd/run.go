package cmd

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ftpsync/internal/cache"
	"github.com/joescharf/ftpsync/internal/config"
	"github.com/joescharf/ftpsync/internal/daemon"
	"github.com/joescharf/ftpsync/internal/output"
	"github.com/joescharf/ftpsync/internal/runtime"
)

var (
	runManifest      string
	runSessionConfig string
	runSessionID     string
	runFresh         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run monitoring sessions in the foreground",
	Long: `Run one or more FTP monitoring sessions until interrupted.

With --manifest, every session listed in the YAML manifest is started.
With --session-config, a single session is started; its artifacts are
placed under the state directory unless overridden.

Sessions with a poll interval of zero run a single sync cycle and stop;
the command exits once every session has finished.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun()
	},
}

func init() {
	runCmd.Flags().StringVar(&runManifest, "manifest", "", "YAML manifest listing sessions to run")
	runCmd.Flags().StringVar(&runSessionConfig, "session-config", "", "Single session config file")
	runCmd.Flags().StringVar(&runSessionID, "id", "", "Session id (default: generated ULID)")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Clear the change-detection cache before starting")
	rootCmd.AddCommand(runCmd)
}

// newSessionID generates a ULID session id for when the caller omits one.
func newSessionID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

func runRun() error {
	entries, err := sessionEntries()
	if err != nil {
		return err
	}

	pf := daemon.NewPIDFile(viper.GetString("pid_path"))
	if err := pf.Acquire(); err != nil {
		return fmt.Errorf("acquire PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	rtCfg := runtime.DefaultConfig()
	rtCfg.StopGrace = viper.GetDuration("stop_grace")
	if verbose {
		rtCfg.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	rt := runtime.New(rtCfg)

	for _, e := range entries {
		if runFresh {
			if err := clearCache(e.CachePath); err != nil {
				ui.Warning("clear cache for %s: %v", e.ID, err)
			}
		}
		if err := rt.Start(runtime.StartRequest{
			SessionID:   e.ID,
			ConfigPath:  e.ConfigPath,
			StatusPath:  e.StatusPath,
			ResultPath:  e.ResultPath,
			SummaryPath: e.SummaryPath,
			CachePath:   e.CachePath,
		}); err != nil {
			ui.Error("start %s: %v", e.ID, err)
			continue
		}
		ui.Success("session %s started (status: %s)", output.Cyan(e.ID), e.StatusPath)
	}

	if len(rt.Active()) == 0 {
		_ = rt.Shutdown()
		return fmt.Errorf("no sessions running")
	}

	// Block until interrupted or every session finishes on its own.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	doneCh := make(chan struct{})
	go func() {
		rt.Wait()
		close(doneCh)
	}()

	select {
	case sig := <-sigCh:
		ui.Info("received %s, stopping sessions", sig)
	case <-doneCh:
		ui.Info("all sessions finished")
	}

	if err := rt.Shutdown(); err != nil {
		ui.Warning("shutdown: %v", err)
	}
	ui.Success("all sessions stopped")
	return nil
}

// sessionEntries resolves what to run from the manifest or the single-session
// flags. Artifact paths default to state_dir/<id>/ when not specified.
func sessionEntries() ([]config.ManifestEntry, error) {
	if runManifest != "" && runSessionConfig != "" {
		return nil, fmt.Errorf("--manifest and --session-config are mutually exclusive")
	}

	if runManifest != "" {
		m, err := config.LoadManifest(runManifest)
		if err != nil {
			return nil, err
		}
		for i := range m.Sessions {
			fillDefaults(&m.Sessions[i])
		}
		return m.Sessions, nil
	}

	if runSessionConfig == "" {
		return nil, fmt.Errorf("one of --manifest or --session-config is required")
	}

	id := runSessionID
	if id == "" {
		id = newSessionID()
	}
	e := config.ManifestEntry{ID: id, ConfigPath: runSessionConfig}
	fillDefaults(&e)
	return []config.ManifestEntry{e}, nil
}

func fillDefaults(e *config.ManifestEntry) {
	dir := filepath.Join(viper.GetString("state_dir"), e.ID)
	if e.StatusPath == "" {
		e.StatusPath = filepath.Join(dir, "status.json")
	}
	if e.ResultPath == "" {
		e.ResultPath = filepath.Join(dir, "result.json")
	}
	if e.SummaryPath == "" {
		e.SummaryPath = filepath.Join(dir, "summary.json")
	}
	if e.CachePath == "" {
		e.CachePath = filepath.Join(dir, "cache.db")
	}
}

// clearCache drops all fingerprint rows so the next cycle re-downloads
// everything, mirroring a cold start without deleting the database file.
func clearCache(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	store, err := cache.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return store.Clear(context.Background())
}
