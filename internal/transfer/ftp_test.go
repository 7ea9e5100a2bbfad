package transfer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRecord_QueriesModTimeWithFullPath(t *testing.T) {
	want := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	var queried string
	modTime := func(p string) (time.Time, error) {
		queried = p
		return want, nil
	}

	rec := fileRecord("/outbound/reports", "daily.csv", 2048, modTime)
	assert.Equal(t, "/outbound/reports/daily.csv", queried)
	assert.Equal(t, "daily.csv", rec.Path)
	assert.Equal(t, int64(2048), rec.Size)
	assert.Equal(t, want, rec.ModTime)
}

func TestFileRecord_ModTimeFailureFallsBackToNow(t *testing.T) {
	modTime := func(string) (time.Time, error) {
		return time.Time{}, errors.New("502 MDTM not implemented")
	}

	before := time.Now().UTC()
	rec := fileRecord("/outbound", "a.csv", 5, modTime)
	after := time.Now().UTC()

	require.False(t, rec.ModTime.IsZero(), "a zero mod time would make every fingerprint collide")
	assert.False(t, rec.ModTime.Before(before))
	assert.False(t, rec.ModTime.After(after))
}
