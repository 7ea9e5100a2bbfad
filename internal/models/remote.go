package models

import "time"

// RemoteFileRecord is one entry from a remote directory listing. Records are
// transient: a fresh set is built on every poll cycle.
type RemoteFileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FingerprintEntry is one persisted change-detection cache row: the
// best-known identity of a remote file and the content fingerprint recorded
// the last time it was downloaded successfully.
type FingerprintEntry struct {
	Path        string
	Size        int64
	ModTimeUnix int64
	Fingerprint uint64
	RecordedAt  time.Time
}
