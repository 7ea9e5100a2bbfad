package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gonzalop/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ftpsync/internal/artifact"
	"github.com/joescharf/ftpsync/internal/models"
	"github.com/joescharf/ftpsync/internal/transfer"
)

// scriptedClient is a fake remote endpoint: a fixed listing plus per-path
// file contents and failures.
type scriptedClient struct {
	mu      sync.Mutex
	listing []models.RemoteFileRecord
	files   map[string]string // full remote path -> content
	fail    map[string]error  // full remote path -> retrieve error
	fetched []string
}

func (c *scriptedClient) List(path string) ([]models.RemoteFileRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.RemoteFileRecord, len(c.listing))
	copy(out, c.listing)
	return out, nil
}

func (c *scriptedClient) Retrieve(path string, w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.fail[path]; ok {
		return err
	}
	c.fetched = append(c.fetched, path)
	_, err := io.WriteString(w, c.files[path])
	return err
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fetched)
}

func dialer(c transfer.Client) transfer.Dialer {
	return func() (transfer.Client, error) { return c, nil }
}

type harness struct {
	dir       string
	localRoot string
	cachePath string
	writer    *artifact.Writer
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	return &harness{
		dir:       dir,
		localRoot: filepath.Join(dir, "local"),
		cachePath: filepath.Join(dir, "cache.db"),
		writer: artifact.NewWriter(
			filepath.Join(dir, "status.json"),
			filepath.Join(dir, "result.json"),
			filepath.Join(dir, "summary.json"),
		),
	}
}

func (h *harness) sessionConfig() models.SessionConfig {
	return models.SessionConfig{
		Host:         "ftp.example.com",
		Port:         21,
		Username:     "reports",
		RemoteRoot:   "/outbound",
		LocalRoot:    h.localRoot,
		PollInterval: 0, // single cycle
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	}
}

func (h *harness) runOnce(t *testing.T, sess models.SessionConfig, client transfer.Client) *Worker {
	t.Helper()
	w := New(Config{
		SessionID: "sess-1",
		Session:   sess,
		CachePath: h.cachePath,
		Writer:    h.writer,
		Dialer:    dialer(client),
	})
	go w.Run(context.Background())
	waitDone(t, w)
	return w
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not terminate")
	}
}

func (h *harness) readResult(t *testing.T) models.ResultRecord {
	t.Helper()
	data, err := os.ReadFile(h.writer.ResultPath)
	require.NoError(t, err)
	var rec models.ResultRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func (h *harness) readSummary(t *testing.T) models.SessionSummary {
	t.Helper()
	data, err := os.ReadFile(h.writer.SummaryPath)
	require.NoError(t, err)
	var rec models.SessionSummary
	require.NoError(t, json.Unmarshal(data, &rec))
	return rec
}

func TestWorker_SingleCycleDownloadsEverything(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
			{Path: "sub/b.csv", Size: 7, ModTime: time.Unix(1700000100, 0)},
		},
		files: map[string]string{
			"/outbound/a.csv":     "aaaaa",
			"/outbound/sub/b.csv": "bbbbbbb",
		},
	}

	w := h.runOnce(t, h.sessionConfig(), client)
	assert.Equal(t, models.PhaseStopped, w.Phase())

	data, err := os.ReadFile(filepath.Join(h.localRoot, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "aaaaa", string(data))

	data, err = os.ReadFile(filepath.Join(h.localRoot, "sub", "b.csv"))
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbb", string(data))

	result := h.readResult(t)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Totals.Scanned)
	assert.Equal(t, 2, result.Totals.Downloaded)
	assert.Zero(t, result.Totals.Failed)

	status, err := artifact.ReadStatus(h.writer.StatusPath)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseStopped, status.Phase)

	summary := h.readSummary(t)
	assert.Equal(t, "sess-1", summary.SessionID)
	require.NotNil(t, summary.EndedAt)
	assert.False(t, summary.EndedAt.Before(summary.StartedAt))
}

func TestWorker_SecondCycleSkipsUnchanged(t *testing.T) {
	h := newHarness(t)
	listing := []models.RemoteFileRecord{
		{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
		{Path: "b.csv", Size: 7, ModTime: time.Unix(1700000100, 0)},
	}
	client := &scriptedClient{
		listing: listing,
		files: map[string]string{
			"/outbound/a.csv": "aaaaa",
			"/outbound/b.csv": "bbbbbbb",
		},
	}

	h.runOnce(t, h.sessionConfig(), client)
	require.Equal(t, 2, client.fetchCount())

	// b changed on the server; a did not. The persisted cache must carry the
	// first run's fingerprints across worker lifetimes.
	client.mu.Lock()
	client.listing[1].Size = 9
	client.listing[1].ModTime = time.Unix(1700000500, 0)
	client.files["/outbound/b.csv"] = "bbbbbbbbb"
	client.mu.Unlock()

	h.runOnce(t, h.sessionConfig(), client)

	result := h.readResult(t)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Totals.Scanned)
	assert.Equal(t, 1, result.Totals.Downloaded)
	assert.Equal(t, 1, result.Totals.Skipped)
	assert.Equal(t, 3, client.fetchCount(), "only the changed file is re-downloaded")

	data, err := os.ReadFile(filepath.Join(h.localRoot, "b.csv"))
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbb", string(data))
}

func TestWorker_IdenticalSecondCycleDownloadsNothing(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
		},
		files: map[string]string{"/outbound/a.csv": "aaaaa"},
	}

	h.runOnce(t, h.sessionConfig(), client)
	h.runOnce(t, h.sessionConfig(), client)

	result := h.readResult(t)
	assert.Equal(t, 1, result.Totals.Scanned)
	assert.Zero(t, result.Totals.Downloaded)
	assert.Equal(t, 1, result.Totals.Skipped)
	assert.Equal(t, 1, client.fetchCount(), "an unchanged file is never re-fetched")
}

func TestWorker_PerFileFailureIsolated(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "good.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
			{Path: "bad.csv", Size: 7, ModTime: time.Unix(1700000100, 0)},
		},
		files: map[string]string{"/outbound/good.csv": "aaaaa"},
		fail: map[string]error{
			"/outbound/bad.csv": &ftp.ProtocolError{Code: 550, Response: "No such file"},
		},
	}

	w := h.runOnce(t, h.sessionConfig(), client)
	assert.Equal(t, models.PhaseStopped, w.Phase(), "a per-file failure does not fail the session")

	_, err := os.Stat(filepath.Join(h.localRoot, "good.csv"))
	assert.NoError(t, err, "the good file still lands")
	_, err = os.Stat(filepath.Join(h.localRoot, "bad.csv"))
	assert.True(t, os.IsNotExist(err))

	result := h.readResult(t)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Totals.Downloaded)
	assert.Equal(t, 1, result.Totals.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad.csv", result.Errors[0].Path)

	status, err := artifact.ReadStatus(h.writer.StatusPath)
	require.NoError(t, err)
	assert.NotEmpty(t, status.LastError)
}

func TestWorker_FailedFileRetriedNextCycle(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "flaky.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
		},
		files: map[string]string{"/outbound/flaky.csv": "aaaaa"},
		fail: map[string]error{
			"/outbound/flaky.csv": &ftp.ProtocolError{Code: 550, Response: "No such file"},
		},
	}

	h.runOnce(t, h.sessionConfig(), client)
	require.NoFileExists(t, filepath.Join(h.localRoot, "flaky.csv"))

	// Server recovers; nothing about the file's identity changed, but a
	// failed file must not be remembered as downloaded.
	client.mu.Lock()
	delete(client.fail, "/outbound/flaky.csv")
	client.mu.Unlock()

	h.runOnce(t, h.sessionConfig(), client)

	data, err := os.ReadFile(filepath.Join(h.localRoot, "flaky.csv"))
	require.NoError(t, err)
	assert.Equal(t, "aaaaa", string(data))
}

func TestWorker_CorruptCacheStartsColdButRuns(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.cachePath, []byte("not a database"), 0o644))

	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
		},
		files: map[string]string{"/outbound/a.csv": "aaaaa"},
	}

	w := h.runOnce(t, h.sessionConfig(), client)
	assert.Equal(t, models.PhaseStopped, w.Phase())

	result := h.readResult(t)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Totals.Downloaded, "cold start re-downloads everything")
}

func TestWorker_IncludeExcludeFilters(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
			{Path: "notes.txt", Size: 3, ModTime: time.Unix(1700000100, 0)},
			{Path: "tmp_b.csv", Size: 4, ModTime: time.Unix(1700000200, 0)},
		},
		files: map[string]string{
			"/outbound/a.csv":     "aaaaa",
			"/outbound/notes.txt": "nnn",
			"/outbound/tmp_b.csv": "tttt",
		},
	}

	sess := h.sessionConfig()
	sess.Include = []string{"*.csv"}
	sess.Exclude = []string{"tmp_*"}
	h.runOnce(t, sess, client)

	result := h.readResult(t)
	assert.Equal(t, 1, result.Totals.Scanned, "filtered-out files are not counted")
	assert.Equal(t, 1, result.Totals.Downloaded)

	require.FileExists(t, filepath.Join(h.localRoot, "a.csv"))
	require.NoFileExists(t, filepath.Join(h.localRoot, "notes.txt"))
	require.NoFileExists(t, filepath.Join(h.localRoot, "tmp_b.csv"))
}

func TestWorker_DuplicateListingEntriesLaterWins(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
			{Path: "a.csv", Size: 9, ModTime: time.Unix(1700000300, 0)},
		},
		files: map[string]string{"/outbound/a.csv": "later one"},
	}

	h.runOnce(t, h.sessionConfig(), client)

	result := h.readResult(t)
	assert.Equal(t, 1, result.Totals.Scanned, "a repeated path counts once")
	assert.Equal(t, 1, result.Totals.Downloaded)
	assert.Equal(t, 1, client.fetchCount())
}

func TestWorker_ListFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	fail := transfer.Dialer(func() (transfer.Client, error) {
		return nil, &ftp.ProtocolError{Code: 530, Response: "Not logged in"}
	})

	w := New(Config{
		SessionID: "sess-1",
		Session:   h.sessionConfig(),
		CachePath: h.cachePath,
		Writer:    h.writer,
		Dialer:    fail,
	})
	go w.Run(context.Background())
	waitDone(t, w)

	assert.Equal(t, models.PhaseFailed, w.Phase())

	result := h.readResult(t)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Message)

	status, err := artifact.ReadStatus(h.writer.StatusPath)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, status.Phase)

	summary := h.readSummary(t)
	assert.NotNil(t, summary.EndedAt, "a failed session still finalizes its summary")
}

func TestWorker_FailureCountsCurrentCycleWork(t *testing.T) {
	h := newHarness(t)
	w := New(Config{
		SessionID: "sess-1",
		Session:   h.sessionConfig(),
		CachePath: h.cachePath,
		Writer:    h.writer,
		Dialer:    dialer(&scriptedClient{}),
	})
	w.startedAt = time.Now().UTC()

	// Two clean cycles behind us, a third in flight with one download and
	// one per-file failure when the fatal error hits.
	w.totals = models.Counters{Scanned: 2, Downloaded: 2}
	w.cycle = models.Counters{Scanned: 3, Downloaded: 1, Failed: 1}
	w.fileErrs = []models.FileError{{Path: "c.csv", Error: "connection reset"}}

	w.fail(errors.New("status write: no space left on device"))

	assert.Equal(t, models.PhaseFailed, w.Phase())
	result := h.readResult(t)
	assert.False(t, result.Success)
	assert.Equal(t, 5, result.Totals.Scanned, "in-flight cycle work must not vanish")
	assert.Equal(t, 3, result.Totals.Downloaded)
	assert.Equal(t, 1, result.Totals.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "c.csv", result.Errors[0].Path)
}

func TestWorker_FailureAfterReportDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t)
	w := New(Config{
		SessionID: "sess-1",
		Session:   h.sessionConfig(),
		CachePath: h.cachePath,
		Writer:    h.writer,
		Dialer:    dialer(&scriptedClient{}),
	})
	w.startedAt = time.Now().UTC()

	w.totals = models.Counters{Scanned: 3, Downloaded: 1}
	w.cycle = models.Counters{Scanned: 3, Downloaded: 1}
	w.reported = true

	w.fail(errors.New("poll interval wait interrupted"))

	result := h.readResult(t)
	assert.Equal(t, 3, result.Totals.Scanned, "a reported cycle is already in the totals")
	assert.Equal(t, 1, result.Totals.Downloaded)
}

func TestWorker_CancelStopsPollingLoop(t *testing.T) {
	h := newHarness(t)
	client := &scriptedClient{
		listing: []models.RemoteFileRecord{
			{Path: "a.csv", Size: 5, ModTime: time.Unix(1700000000, 0)},
		},
		files: map[string]string{"/outbound/a.csv": "aaaaa"},
	}

	sess := h.sessionConfig()
	sess.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	w := New(Config{
		SessionID: "sess-1",
		Session:   sess,
		CachePath: h.cachePath,
		Writer:    h.writer,
		Dialer:    dialer(client),
	})
	go w.Run(ctx)

	// Wait for the first cycle to publish, then cancel mid-wait.
	require.Eventually(t, func() bool {
		status, err := artifact.ReadStatus(h.writer.StatusPath)
		return err == nil && status.Phase == models.PhaseReporting
	}, 10*time.Second, 5*time.Millisecond)

	cancel()
	waitDone(t, w)

	assert.Equal(t, models.PhaseStopped, w.Phase())
	result := h.readResult(t)
	assert.True(t, result.Success)
	assert.Equal(t, "stopped", result.Message)
}
