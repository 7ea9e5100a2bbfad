// Package session runs one monitoring session as a state machine: repeated
// poll cycles of list → diff against the fingerprint cache → transfer
// changed files → report, until stopped or fatally failed.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"path"
	"path/filepath"
	"time"

	"github.com/joescharf/ftpsync/internal/artifact"
	"github.com/joescharf/ftpsync/internal/cache"
	"github.com/joescharf/ftpsync/internal/models"
	"github.com/joescharf/ftpsync/internal/transfer"
)

// Config wires a worker's collaborators. Everything is owned exclusively by
// this worker for its lifetime; nothing is shared across sessions.
type Config struct {
	SessionID string
	Session   models.SessionConfig
	CachePath string
	Writer    *artifact.Writer

	// Dialer establishes remote connections. Defaults to the FTP dialer
	// for the session's endpoint; tests inject fakes.
	Dialer transfer.Dialer

	// Logger receives worker activity. Defaults to a silent logger.
	Logger *log.Logger
}

// Worker owns one session's poll loop. Create with New, start with Run in a
// goroutine, observe completion via Done. A worker runs exactly once.
type Worker struct {
	cfg    Config
	logger *log.Logger

	engine *transfer.Engine
	store  cache.Store
	known  map[string]models.FingerprintEntry

	phase     models.Phase
	cycle     models.Counters
	totals    models.Counters
	reported  bool // current cycle already rolled into totals
	fileErrs  []models.FileError
	lastError string
	startedAt time.Time

	done chan struct{}
}

// New creates a worker for the given configuration.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = transfer.NewFTPDialer(cfg.Session)
	}
	return &Worker{
		cfg:    cfg,
		logger: logger,
		phase:  models.PhaseStarting,
		done:   make(chan struct{}),
	}
}

// Done is closed when the worker has fully terminated and flushed its final
// artifacts.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Phase returns the last phase the worker reached. Only meaningful after
// Done is closed; the live value belongs to the worker goroutine.
func (w *Worker) Phase() models.Phase { return w.phase }

// Run executes the session until the context is cancelled or an
// unrecoverable error occurs. It blocks; callers start it in a goroutine.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.startedAt = time.Now().UTC()
	w.engine = transfer.NewEngine(w.cfg.Dialer, w.cfg.Session.MaxRetries, w.cfg.Session.RetryBackoff, w.logger)
	defer func() { _ = w.engine.Close() }()

	defer func() {
		if w.store != nil {
			_ = w.store.Close()
		}
	}()
	if err := w.starting(ctx); err != nil {
		w.fail(err)
		return
	}

	for {
		cancelled, err := w.runCycle(ctx)
		if err != nil {
			w.fail(err)
			return
		}
		if cancelled || w.cfg.Session.RunOnce() {
			w.stop()
			return
		}

		select {
		case <-ctx.Done():
			w.stop()
			return
		case <-time.After(w.cfg.Session.PollInterval):
		}
	}
}

// starting loads the persisted cache and writes the initial artifacts. A
// missing or corrupt cache store degrades to an empty in-memory store: a
// full re-download is costly, never fatal.
func (w *Worker) starting(ctx context.Context) error {
	store, err := cache.Open(w.cfg.CachePath)
	if err != nil {
		w.logger.Printf("cache store unusable, starting cold: %v", err)
		w.store = cache.NewMemory()
	} else {
		w.store = store
	}

	known, err := w.store.Load(ctx)
	if err != nil {
		w.logger.Printf("cache load failed, starting cold: %v", err)
		_ = w.store.Close()
		w.store = cache.NewMemory()
		known = make(map[string]models.FingerprintEntry)
	}
	w.known = known
	w.logger.Printf("session %s starting with %d cached fingerprints", w.cfg.SessionID, len(known))

	if err := w.cfg.Writer.WriteSummary(models.SessionSummary{
		SessionID: w.cfg.SessionID,
		Config:    w.cfg.Session,
		StartedAt: w.startedAt,
	}); err != nil {
		return err
	}
	return w.setPhase(models.PhaseStarting)
}

// runCycle performs one full poll cycle. It returns cancelled=true when the
// context was cancelled at a safe checkpoint, and a non-nil error only for
// unrecoverable conditions that must move the session to Failed.
func (w *Worker) runCycle(ctx context.Context) (cancelled bool, err error) {
	w.cycle = models.Counters{}
	w.reported = false

	if err := w.setPhase(models.PhasePolling); err != nil {
		return false, err
	}

	listing, err := w.engine.List(ctx, w.cfg.Session.RemoteRoot)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return true, nil
		}
		return false, err
	}

	changed := w.diff(listing)
	w.logger.Printf("cycle: %d scanned, %d changed, %d unchanged",
		w.cycle.Scanned, len(changed), w.cycle.Skipped)

	if err := w.setPhase(models.PhaseTransferring); err != nil {
		return false, err
	}

	for _, rec := range changed {
		if ctx.Err() != nil {
			return true, w.report()
		}
		w.transferOne(ctx, rec)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return true, w.report()
	}
	return false, w.report()
}

// diff compares a fresh listing against the cached fingerprints and returns
// the records to download. A file is changed when it is unknown, its size
// differs from the cached row (size wins over cached metadata), or its
// identity fingerprint differs. When a listing repeats a path, the later
// entry wins.
func (w *Worker) diff(listing []models.RemoteFileRecord) []models.RemoteFileRecord {
	latest := make(map[string]models.RemoteFileRecord, len(listing))
	order := make([]string, 0, len(listing))
	for _, rec := range listing {
		if !w.matches(rec.Path) {
			continue
		}
		if _, seen := latest[rec.Path]; !seen {
			order = append(order, rec.Path)
		}
		latest[rec.Path] = rec
	}

	var changed []models.RemoteFileRecord
	for _, p := range order {
		rec := latest[p]
		w.cycle.Scanned++

		cached, ok := w.known[rec.Path]
		if ok && cached.Size == rec.Size && cached.Fingerprint == cache.Fingerprint(rec) {
			w.cycle.Skipped++
			continue
		}
		changed = append(changed, rec)
	}
	return changed
}

// matches applies the include/exclude filters to a remote file name.
func (w *Worker) matches(name string) bool {
	base := path.Base(name)
	for _, pattern := range w.cfg.Session.Exclude {
		if ok, _ := path.Match(pattern, base); ok {
			return false
		}
	}
	if len(w.cfg.Session.Include) == 0 {
		return true
	}
	for _, pattern := range w.cfg.Session.Include {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// transferOne downloads a single changed file and records the outcome. The
// cache entry is upserted immediately on success, before the next file, so
// completed work survives a later failure. A per-file failure is counted and
// the cycle continues.
func (w *Worker) transferOne(ctx context.Context, rec models.RemoteFileRecord) {
	remote := path.Join(w.cfg.Session.RemoteRoot, rec.Path)
	local := filepath.Join(w.cfg.Session.LocalRoot, filepath.FromSlash(rec.Path))

	if err := w.engine.Fetch(ctx, remote, local); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Printf("download %s failed: %v", rec.Path, err)
		w.cycle.Failed++
		w.lastError = err.Error()
		w.fileErrs = append(w.fileErrs, models.FileError{Path: rec.Path, Error: err.Error()})
		return
	}

	entry := cache.EntryFor(rec)
	if err := w.store.Put(ctx, entry); err != nil {
		// The file landed but its fingerprint did not persist; next cycle
		// re-downloads it. Count the download, remember the error.
		w.logger.Printf("fingerprint persist for %s failed: %v", rec.Path, err)
		w.lastError = err.Error()
	}
	w.known[rec.Path] = entry
	w.cycle.Downloaded++
}

// report flushes the cache checkpoint and publishes the cycle's status.
func (w *Worker) report() error {
	if err := w.store.Flush(context.Background()); err != nil {
		w.logger.Printf("cache flush failed: %v", err)
		w.lastError = err.Error()
	}
	w.totals.Add(w.cycle)
	w.reported = true
	return w.setPhase(models.PhaseReporting)
}

// stop performs the orderly Stopping → Stopped transition and writes the
// final artifacts exactly once.
func (w *Worker) stop() {
	w.phase = models.PhaseStopping
	w.logger.Printf("session %s stopping", w.cfg.SessionID)

	w.writeResult(true, "stopped")
	w.finalize(models.PhaseStopped)
}

// fail moves the session to the terminal Failed state. The causing error is
// surfaced only through the artifacts, never to the registry caller.
func (w *Worker) fail(cause error) {
	w.logger.Printf("session %s failed: %v", w.cfg.SessionID, cause)
	w.lastError = cause.Error()

	// Work completed during the failing cycle still counts.
	if !w.reported {
		w.totals.Add(w.cycle)
		w.reported = true
	}

	w.writeResult(false, cause.Error())
	w.finalize(models.PhaseFailed)
}

func (w *Worker) writeResult(success bool, message string) {
	if err := w.cfg.Writer.WriteResult(models.ResultRecord{
		SessionID: w.cfg.SessionID,
		Success:   success,
		Message:   message,
		Totals:    w.totals,
		Errors:    w.fileErrs,
	}); err != nil {
		w.logger.Printf("result write failed: %v", err)
	}
}

func (w *Worker) finalize(terminal models.Phase) {
	ended := time.Now().UTC()
	if err := w.cfg.Writer.WriteSummary(models.SessionSummary{
		SessionID: w.cfg.SessionID,
		Config:    w.cfg.Session,
		StartedAt: w.startedAt,
		EndedAt:   &ended,
	}); err != nil {
		w.logger.Printf("summary write failed: %v", err)
	}

	w.phase = terminal
	if err := w.writeStatus(); err != nil {
		w.logger.Printf("final status write failed: %v", err)
	}
	if w.store != nil {
		_ = w.store.Flush(context.Background())
	}
}

// setPhase records a phase transition and publishes it. A failed status
// write is unrecoverable: the session can no longer communicate its state.
func (w *Worker) setPhase(p models.Phase) error {
	w.phase = p
	return w.writeStatus()
}

func (w *Worker) writeStatus() error {
	return w.cfg.Writer.WriteStatus(models.StatusRecord{
		SessionID: w.cfg.SessionID,
		Phase:     w.phase,
		Counters:  w.cycle,
		LastError: w.lastError,
	})
}
