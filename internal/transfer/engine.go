package transfer

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/joescharf/ftpsync/internal/models"
)

const (
	// serverBusyFactor stretches the backoff for server-side rejections,
	// which recover slower than network blips.
	serverBusyFactor = 5

	maxBackoff = 5 * time.Minute
)

// Engine drives one FTP connection through listing and fetch operations for
// a single session. It is not safe for concurrent use; each session worker
// owns exactly one engine.
type Engine struct {
	dial       Dialer
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger

	client Client
}

// NewEngine creates an engine that dials lazily and retries transient
// failures up to maxRetries with exponential backoff starting at backoff.
func NewEngine(dial Dialer, maxRetries int, backoff time.Duration, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Engine{
		dial:       dial,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}
}

// List retrieves the remote directory listing, retrying transient failures.
func (e *Engine) List(ctx context.Context, remotePath string) ([]models.RemoteFileRecord, error) {
	var records []models.RemoteFileRecord
	err := e.withRetry(ctx, fmt.Sprintf("list %s", remotePath), func(c Client) error {
		var err error
		records, err = c.List(remotePath)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Fetch downloads a remote file to localPath using a stage-then-commit
// write: bytes stream into a temporary file beside the destination, which is
// renamed into place only after a fully successful transfer. A killed
// process never leaves a half-downloaded file at its final path.
func (e *Engine) Fetch(ctx context.Context, remotePath, localPath string) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PermanentError{Err: fmt.Errorf("create destination directory: %w", err)}
	}

	return e.withRetry(ctx, fmt.Sprintf("fetch %s", remotePath), func(c Client) error {
		tmp, err := os.CreateTemp(dir, filepath.Base(localPath)+".partial-*")
		if err != nil {
			return &PermanentError{Err: fmt.Errorf("stage download: %w", err)}
		}
		tmpName := tmp.Name()

		if err := c.Retrieve(remotePath, tmp); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
			return err
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
			return fmt.Errorf("sync download: %w", err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmpName)
			return fmt.Errorf("close download: %w", err)
		}
		if err := os.Rename(tmpName, localPath); err != nil {
			_ = os.Remove(tmpName)
			return &PermanentError{Err: fmt.Errorf("commit download: %w", err)}
		}
		return nil
	})
}

// Close releases the underlying connection, if any.
func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// withRetry runs op against a live client, redialing and retrying on
// transient failures. Permanent failures return immediately wrapped in
// *PermanentError. Cancellation is honored before every attempt and during
// backoff sleeps.
func (e *Engine) withRetry(ctx context.Context, what string, op func(Client) error) error {
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		client, err := e.connect()
		if err == nil {
			err = op(client)
			if err == nil {
				return nil
			}
		}
		lastErr = err

		if IsPermanent(err) {
			return err
		}
		class := classify(err)
		if class == classPermanent {
			return &PermanentError{Err: err}
		}

		// Connection state is suspect after any retryable failure.
		e.dropConnection()

		if attempt == e.maxRetries {
			break
		}

		delay := e.delayFor(class, attempt)
		e.logger.Printf("%s failed (attempt %d/%d), retrying in %s: %v",
			what, attempt+1, e.maxRetries+1, delay.Round(time.Millisecond), err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%s: retries exhausted: %w", what, lastErr)
}

func (e *Engine) connect() (Client, error) {
	if e.client != nil {
		return e.client, nil
	}
	client, err := e.dial()
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

func (e *Engine) dropConnection() {
	if e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
}

// delayFor computes exponential backoff with jitter, stretched for
// server-busy conditions and capped at maxBackoff.
func (e *Engine) delayFor(class errClass, attempt int) time.Duration {
	base := e.backoff
	if class == classServerBusy {
		base *= serverBusyFactor
	}

	delay := base << min(attempt, 6)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
