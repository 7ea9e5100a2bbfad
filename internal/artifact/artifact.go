// Package artifact persists status, result, and session-summary documents
// for external readers. Every write replaces the target atomically, so a
// reader polling the path never observes a partially written document.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joescharf/ftpsync/internal/models"
)

// ErrUnavailable indicates the status artifact does not exist or cannot be read.
var ErrUnavailable = errors.New("status unavailable")

// ErrMalformed indicates the status artifact exists but is not a complete document.
var ErrMalformed = errors.New("status malformed")

// Writer serializes a session's artifacts to their configured paths.
type Writer struct {
	StatusPath  string
	ResultPath  string
	SummaryPath string
}

// NewWriter creates a Writer bound to the three artifact paths.
func NewWriter(statusPath, resultPath, summaryPath string) *Writer {
	return &Writer{
		StatusPath:  statusPath,
		ResultPath:  resultPath,
		SummaryPath: summaryPath,
	}
}

// WriteStatus replaces the status document. The updated_at timestamp is
// stamped here so callers cannot write stale clocks.
func (w *Writer) WriteStatus(rec models.StatusRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	if err := replaceJSON(w.StatusPath, rec); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// WriteResult writes the final result document.
func (w *Writer) WriteResult(rec models.ResultRecord) error {
	if err := replaceJSON(w.ResultPath, rec); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// WriteSummary writes or finalizes the session summary document.
func (w *Writer) WriteSummary(rec models.SessionSummary) error {
	if err := replaceJSON(w.SummaryPath, rec); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// ReadStatus reads and decodes a status document from path. It returns
// ErrUnavailable if the file is missing or unreadable and ErrMalformed if
// the content does not decode to a status record.
func ReadStatus(path string) (*models.StatusRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, path)
	}

	var rec models.StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if rec.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session_id", ErrMalformed)
	}
	return &rec, nil
}

// replaceJSON stages the encoded document in a temp file and renames it into
// place. Rename is atomic on POSIX filesystems, which is what guarantees
// readers a complete document.
func replaceJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("stage write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("stage sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("stage close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
