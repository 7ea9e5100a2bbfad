// Package runtime owns the process-wide table of active sessions. It is an
// explicit, injectable object: construct it with New, pass it to whoever
// starts and stops sessions, and tear it down with Shutdown. There is no
// package-global registry.
//
// The registry serializes Start/Stop/Shutdown against each other. Session
// work itself is never run under the registry lock; each worker owns its
// connection, cache store, and artifact paths exclusively.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/joescharf/ftpsync/internal/artifact"
	"github.com/joescharf/ftpsync/internal/config"
	"github.com/joescharf/ftpsync/internal/session"
	"github.com/joescharf/ftpsync/internal/transfer"
)

// Config holds runtime-wide settings.
type Config struct {
	// StopGrace bounds how long Stop and Shutdown wait for a worker to
	// reach a safe checkpoint and flush its final artifacts.
	StopGrace time.Duration

	// Logger receives registry and worker activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StopGrace: 30 * time.Second,
		Logger:    log.New(io.Discard, "", 0),
	}
}

// StartRequest names one session and the file paths it operates through.
// Every field is required and must be valid UTF-8.
type StartRequest struct {
	SessionID   string
	ConfigPath  string
	StatusPath  string
	ResultPath  string
	SummaryPath string
	CachePath   string

	// Dialer overrides the FTP dialer derived from the session config.
	// Used by tests; leave nil in production.
	Dialer transfer.Dialer
}

type handle struct {
	id     string
	cancel context.CancelFunc
	worker *session.Worker
}

// Runtime is the process-wide session registry.
type Runtime struct {
	cfg *Config

	mu       sync.Mutex
	sessions map[string]*handle
	closed   bool
}

// New constructs a runtime. Call Shutdown to release it; constructing a
// second runtime over the same artifact paths without shutting down the
// first is a caller error.
func New(cfg *Config) *Runtime {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 30 * time.Second
	}
	return &Runtime{
		cfg:      cfg,
		sessions: make(map[string]*handle),
	}
}

// Start validates the request, loads the session config, spawns a worker
// bound to the session id, and returns immediately. A request whose id is
// still registered to a running worker is rejected with ErrSessionExists;
// callers that want replace semantics compose Stop + Start themselves.
//
// Failures inside the running worker never surface here; they are observable
// only through the status and result artifacts.
func (r *Runtime) Start(req StartRequest) error {
	if err := validate(req); err != nil {
		return err
	}

	// Load and validate the config before touching the registry so a
	// malformed config never registers anything.
	cfg, err := config.LoadSession(req.ConfigPath)
	if err != nil {
		return fmt.Errorf("load session %s: %w", req.SessionID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRuntimeClosed
	}

	if h, ok := r.sessions[req.SessionID]; ok {
		select {
		case <-h.worker.Done():
			// The previous worker terminated on its own; its entry is
			// stale, not a conflict.
			delete(r.sessions, req.SessionID)
		default:
			return fmt.Errorf("%w: %s", ErrSessionExists, req.SessionID)
		}
	}

	worker := session.New(session.Config{
		SessionID: req.SessionID,
		Session:   *cfg,
		CachePath: req.CachePath,
		Writer:    artifact.NewWriter(req.StatusPath, req.ResultPath, req.SummaryPath),
		Dialer:    req.Dialer,
		Logger:    log.New(r.cfg.Logger.Writer(), "["+req.SessionID+"] ", r.cfg.Logger.Flags()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.sessions[req.SessionID] = &handle{
		id:     req.SessionID,
		cancel: cancel,
		worker: worker,
	}

	go worker.Run(ctx)

	r.cfg.Logger.Printf("session %s started", req.SessionID)
	return nil
}

// Stop signals the worker registered under id and blocks until it has exited
// its loop and flushed final artifacts, bounded by the stop grace period.
// After Stop returns, the id is free; a second Stop reports
// ErrSessionNotFound.
func (r *Runtime) Stop(id string) error {
	if id == "" {
		return ErrMissingSessionID
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: session id", ErrInvalidEncoding)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRuntimeClosed
	}
	h, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	return r.join(h)
}

// Shutdown stops every registered session and closes the runtime. It is
// best-effort: workers that outlive the grace period are abandoned with
// their contexts cancelled, and their errors are reported joined.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]*handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.sessions = make(map[string]*handle)
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, h := range handles {
		wg.Add(1)
		go func(h *handle) {
			defer wg.Done()
			if err := r.join(h); err != nil {
				emu.Lock()
				errs = append(errs, err)
				emu.Unlock()
			}
		}(h)
	}
	wg.Wait()

	r.cfg.Logger.Printf("runtime shut down, %d sessions stopped", len(handles))
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	return nil
}

// Wait blocks until every currently registered worker has terminated on its
// own. It does not cancel anything and does not remove entries; use it to
// wait out run-once sessions before shutting down.
func (r *Runtime) Wait() {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		<-h.worker.Done()
	}
}

// Active returns the ids of currently registered sessions.
func (r *Runtime) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// join cancels a worker and waits for it, bounded by the grace period.
func (r *Runtime) join(h *handle) error {
	h.cancel()
	select {
	case <-h.worker.Done():
		r.cfg.Logger.Printf("session %s stopped (%s)", h.id, h.worker.Phase())
		return nil
	case <-time.After(r.cfg.StopGrace):
		return fmt.Errorf("stop %s: %w", h.id, ErrStopTimeout)
	}
}

func validate(req StartRequest) error {
	fields := []struct {
		value   string
		missing error
		name    string
	}{
		{req.SessionID, ErrMissingSessionID, "session id"},
		{req.ConfigPath, ErrMissingConfigPath, "config path"},
		{req.StatusPath, ErrMissingStatusPath, "status path"},
		{req.ResultPath, ErrMissingResultPath, "result path"},
		{req.SummaryPath, ErrMissingSummaryPath, "summary path"},
		{req.CachePath, ErrMissingCachePath, "cache path"},
	}
	for _, f := range fields {
		if f.value == "" {
			return f.missing
		}
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: %s", ErrInvalidEncoding, f.name)
		}
	}
	return nil
}
