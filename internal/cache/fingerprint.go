package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/joescharf/ftpsync/internal/models"
)

// Fingerprint digests a remote file's identity attributes. Two listings of
// an unchanged file produce the same value; any change to path, size, or
// server modification time produces a different one.
func Fingerprint(rec models.RemoteFileRecord) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s|%d|%d", rec.Path, rec.Size, rec.ModTime.Unix()))
}

// EntryFor builds the cache row recorded after a successful download of rec.
func EntryFor(rec models.RemoteFileRecord) models.FingerprintEntry {
	return models.FingerprintEntry{
		Path:        rec.Path,
		Size:        rec.Size,
		ModTimeUnix: rec.ModTime.Unix(),
		Fingerprint: Fingerprint(rec),
	}
}
