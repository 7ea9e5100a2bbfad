// Package transfer drives a single FTP connection through listing and fetch
// operations with bounded retries, reconnects, and atomic local writes.
package transfer

import (
	"io"

	"github.com/joescharf/ftpsync/internal/models"
)

// Client is the subset of an FTP connection the engine needs. The production
// implementation adapts github.com/gonzalop/ftp; tests substitute fakes.
type Client interface {
	// List returns the file entries of a remote directory. Subdirectories
	// are not descended into.
	List(path string) ([]models.RemoteFileRecord, error)

	// Retrieve streams the remote file's bytes into w.
	Retrieve(path string, w io.Writer) error

	Close() error
}

// Dialer establishes a new Client. The engine redials after connection-level
// failures, so a Dialer must be safe to call repeatedly.
type Dialer func() (Client, error)
