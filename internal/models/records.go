package models

import "time"

// Counters aggregates per-file outcomes for a poll cycle or a whole session.
type Counters struct {
	Scanned    int `json:"scanned_count"`
	Downloaded int `json:"downloaded_count"`
	Skipped    int `json:"skipped_count"`
	Failed     int `json:"failed_count"`
}

// Add accumulates another counter set, used to roll cycles into session totals.
func (c *Counters) Add(other Counters) {
	c.Scanned += other.Scanned
	c.Downloaded += other.Downloaded
	c.Skipped += other.Skipped
	c.Failed += other.Failed
}

// StatusRecord is the current-progress snapshot written after every cycle
// stage. Counters cover the current poll cycle and marshal as top-level
// fields (scanned_count etc.); external readers poll the status artifact and
// parse it by shape, so each write replaces the whole document.
type StatusRecord struct {
	SessionID string `json:"session_id"`
	Phase     Phase  `json:"phase"`
	Counters
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileError records a single per-file failure for the final result.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ResultRecord is the final session outcome, written exactly once when a
// session terminates. Totals are cumulative across all cycles.
type ResultRecord struct {
	SessionID string      `json:"session_id"`
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Totals    Counters    `json:"totals"`
	Errors    []FileError `json:"errors,omitempty"`
}

// SessionSummary is written at session start and finalized at session end.
// EndedAt stays nil while the session is running.
type SessionSummary struct {
	SessionID string        `json:"session_id"`
	Config    SessionConfig `json:"config"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}
