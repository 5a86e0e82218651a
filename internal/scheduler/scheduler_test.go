package scheduler

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vodarr/internal/library"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RescanPicksUpNewAndDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "Forrest_Gump-480p.mkv")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0o644))

	catalog := library.New(dir, testLogger())
	_, err := catalog.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, catalog.Len())

	s := New(catalog, testLogger())

	// A new file appears and the old one disappears between runs.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "The_Godfather-720p.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.Remove(keep))

	s.Rescan(context.Background())

	assert.Equal(t, 1, catalog.Len())
	_, err = catalog.Lookup("The_Godfather", "720p", "mp4")
	assert.NoError(t, err)
	_, err = catalog.Lookup("Forrest_Gump", "480p", "mkv")
	assert.ErrorIs(t, err, library.ErrNotFound)

	lastRun, lastErr := s.LastRun()
	assert.False(t, lastRun.IsZero())
	assert.NoError(t, lastErr)
}

func TestScheduler_AddRescanRejectsBadSpec(t *testing.T) {
	catalog := library.New(t.TempDir(), testLogger())
	s := New(catalog, testLogger())

	assert.Error(t, s.AddRescan("not a cron spec"))
	assert.NoError(t, s.AddRescan("@every 5m"))
}

func TestScheduler_RunFiresScheduledRescan(t *testing.T) {
	dir := t.TempDir()
	catalog := library.New(dir, testLogger())

	s := New(catalog, testLogger())
	require.NoError(t, s.AddRescan("@every 100ms"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Forrest_Gump-480p.mkv"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return catalog.Len() == 1
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
