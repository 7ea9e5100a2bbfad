package transfer

import (
	"crypto/tls"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/gonzalop/ftp"

	"github.com/joescharf/ftpsync/internal/models"
)

// ftpClient adapts a gonzalop/ftp connection to the Client interface.
type ftpClient struct {
	conn *ftp.Client
}

// NewFTPDialer builds a Dialer that connects and logs in with the session's
// credentials. Explicit TLS upgrades the control connection via AUTH TLS.
func NewFTPDialer(cfg models.SessionConfig) Dialer {
	return func() (Client, error) {
		opts := []ftp.Option{
			ftp.WithTimeout(30 * time.Second),
		}
		if cfg.ExplicitTLS {
			opts = append(opts, ftp.WithExplicitTLS(&tls.Config{ServerName: cfg.Host}))
		}

		conn, err := ftp.Dial(cfg.Addr(), opts...)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Addr(), err)
		}
		if err := conn.Login(cfg.Username, cfg.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("login %s@%s: %w", cfg.Username, cfg.Host, err)
		}
		return &ftpClient{conn: conn}, nil
	}
}

// List returns the plain files of dir. LIST entries carry no usable
// timestamp, so each file's modification time comes from a per-file MDTM
// query; when the server cannot answer it, the current time stands in and
// the file reads as changed.
func (c *ftpClient) List(dir string) ([]models.RemoteFileRecord, error) {
	entries, err := c.conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	records := make([]models.RemoteFileRecord, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		records = append(records, fileRecord(dir, e.Name, int64(e.Size), c.conn.ModTime))
	}
	return records, nil
}

// fileRecord resolves one listing entry into a record, querying modTime
// (MDTM) with the file's full remote path.
func fileRecord(dir, name string, size int64, modTime func(string) (time.Time, error)) models.RemoteFileRecord {
	t, err := modTime(path.Join(dir, name))
	if err != nil {
		t = time.Now().UTC()
	}
	return models.RemoteFileRecord{
		Path:    name,
		Size:    size,
		ModTime: t,
	}
}

func (c *ftpClient) Retrieve(path string, w io.Writer) error {
	if err := c.conn.Retrieve(path, w); err != nil {
		return fmt.Errorf("retrieve %s: %w", path, err)
	}
	return nil
}

func (c *ftpClient) Close() error {
	return c.conn.Quit()
}
