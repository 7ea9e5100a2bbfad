package runtime

import "errors"

// Validation and lookup failures are reported synchronously to the caller,
// one distinct error per condition, before any worker is spawned.
var (
	ErrRuntimeClosed      = errors.New("runtime is shut down")
	ErrSessionExists      = errors.New("session id already running")
	ErrSessionNotFound    = errors.New("session not found")
	ErrMissingSessionID   = errors.New("missing session id")
	ErrMissingConfigPath  = errors.New("missing config path")
	ErrMissingStatusPath  = errors.New("missing status path")
	ErrMissingResultPath  = errors.New("missing result path")
	ErrMissingSummaryPath = errors.New("missing summary path")
	ErrMissingCachePath   = errors.New("missing cache path")
	ErrInvalidEncoding    = errors.New("argument is not valid UTF-8")
	ErrStopTimeout        = errors.New("worker did not stop within the grace period")
)
