package transcode

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
	"github.com/jmylchreest/vodarr/internal/media"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeVideo(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("not really video data"), 0o644))
	return path
}

// writeStub writes a shell script standing in for ffmpeg. Like the real
// binary, it treats its last argument as the output path.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

const stubSucceed = `for last; do :; done
echo "transcoded" > "$last"`

const stubFailBadTitles = `for last; do :; done
case "$last" in
*Bad-*) echo "partial" > "$last"; exit 1 ;;
*) echo "transcoded" > "$last" ;;
esac`

const stubSleep = `sleep 5`

func startExecutor(t *testing.T, e *Executor) (context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestExecutor_SynthesizesMissingVariants(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, dir, "Alien-480p.mkv")

	catalog := library.New(dir, discardLogger())
	_, err := catalog.Scan(context.Background())
	require.NoError(t, err)

	executor := NewExecutor(catalog, writeStub(t, stubSucceed), 2, 16, discardLogger())
	startExecutor(t, executor)

	targets := Plan(catalog.Snapshot())
	require.Len(t, targets, 8)
	assert.Equal(t, 8, executor.Enqueue(targets))

	// 3 containers x {240p,360p,480p} once the pool drains.
	require.Eventually(t, func() bool { return catalog.Len() == 9 },
		5*time.Second, 20*time.Millisecond)

	for _, container := range media.Containers() {
		for _, resolution := range media.ResolutionsUpTo(media.Resolution480p) {
			name := media.ComposeFilename("Alien", resolution, container)
			_, statErr := os.Stat(filepath.Join(dir, name))
			assert.NoError(t, statErr, "variant %s must exist on disk", name)
		}
	}

	jobs := executor.Jobs()
	require.Len(t, jobs, 8)
	for _, job := range jobs {
		assert.Equal(t, StateDone, job.State)
		assert.NotNil(t, job.StartedAt)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestExecutor_FailureRemovesPartialAndDrains(t *testing.T) {
	dir := t.TempDir()
	catalog := library.New(dir, discardLogger())

	executor := NewExecutor(catalog, writeStub(t, stubFailBadTitles), 1, 16, discardLogger())
	startExecutor(t, executor)

	badSource := testEntry("Bad", media.Resolution480p, media.ContainerMKV)
	goodSource := testEntry("Good", media.Resolution480p, media.ContainerMKV)
	executor.Enqueue([]Target{
		{Source: badSource, Resolution: media.Resolution240p, Container: media.ContainerMKV},
		{Source: goodSource, Resolution: media.Resolution240p, Container: media.ContainerMKV},
	})

	// The failing job must not stop the good one behind it.
	require.Eventually(t, func() bool { return catalog.Len() == 1 },
		5*time.Second, 20*time.Millisecond)

	_, err := catalog.Lookup("Good", media.Resolution240p, media.ContainerMKV)
	assert.NoError(t, err)
	_, err = catalog.Lookup("Bad", media.Resolution240p, media.ContainerMKV)
	assert.ErrorIs(t, err, library.ErrNotFound)

	_, statErr := os.Stat(filepath.Join(dir, "Bad-240p.mkv"))
	assert.True(t, os.IsNotExist(statErr), "partial output must be removed")

	var failed *Job
	for _, job := range executor.Jobs() {
		if job.Target.Title == "Bad" {
			failed = job
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, StateFailed, failed.State)
	assert.NotEmpty(t, failed.Error)
}

func TestExecutor_SkipsExistingTarget(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "Alien-240p.mp4")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	catalog := library.New(dir, discardLogger())
	executor := NewExecutor(catalog, writeStub(t, stubSucceed), 1, 16, discardLogger())
	startExecutor(t, executor)

	source := testEntry("Alien", media.Resolution480p, media.ContainerMKV)
	executor.Enqueue([]Target{
		{Source: source, Resolution: media.Resolution240p, Container: media.ContainerMP4},
	})

	require.Eventually(t, func() bool { return catalog.Len() == 1 },
		5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data), "existing target must not be re-encoded")

	jobs := executor.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StateDone, jobs[0].State)
}

func TestExecutor_DeduplicatesInflightTargets(t *testing.T) {
	dir := t.TempDir()
	catalog := library.New(dir, discardLogger())
	executor := NewExecutor(catalog, writeStub(t, stubSleep), 1, 16, discardLogger())

	source := testEntry("Alien", media.Resolution480p, media.ContainerMKV)
	target := Target{Source: source, Resolution: media.Resolution240p, Container: media.ContainerMP4}

	assert.Equal(t, 1, executor.Enqueue([]Target{target}))
	assert.Equal(t, 0, executor.Enqueue([]Target{target}), "same variant must not queue twice")
	assert.Len(t, executor.Jobs(), 1)
}

func TestExecutor_CancellationDrainsQueue(t *testing.T) {
	dir := t.TempDir()
	catalog := library.New(dir, discardLogger())
	executor := NewExecutor(catalog, writeStub(t, stubSleep), 1, 16, discardLogger())
	cancel, done := startExecutor(t, executor)

	source := testEntry("Alien", media.Resolution1080p, media.ContainerMKV)
	executor.Enqueue([]Target{
		{Source: source, Resolution: media.Resolution240p, Container: media.ContainerMP4},
		{Source: source, Resolution: media.Resolution360p, Container: media.ContainerMP4},
		{Source: source, Resolution: media.Resolution480p, Container: media.ContainerMP4},
	})

	// Wait for the single worker to pick up the first job.
	require.Eventually(t, func() bool {
		for _, job := range executor.Jobs() {
			if job.State == StateRunning {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not stop after cancellation")
	}

	for _, job := range executor.Jobs() {
		assert.Equal(t, StateCancelled, job.State, "job %s", job.Target.String())
	}
	assert.Equal(t, 0, catalog.Len())
}

func TestPlannerExecutor_ConvergesToClosure(t *testing.T) {
	dir := t.TempDir()
	writeVideo(t, dir, "Alien-240p.mkv")

	catalog := library.New(dir, discardLogger())
	_, err := catalog.Scan(context.Background())
	require.NoError(t, err)

	executor := NewExecutor(catalog, writeStub(t, stubSucceed), 2, 16, discardLogger())
	planner := NewPlanner(catalog, executor, discardLogger()).WithCoalesce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	execDone := make(chan struct{})
	planDone := make(chan struct{})
	go func() { _ = executor.Run(ctx); close(execDone) }()
	go func() { _ = planner.Run(ctx); close(planDone) }()
	t.Cleanup(func() {
		cancel()
		<-execDone
		<-planDone
	})

	// Initial plan fills in the 240p family; a new higher-resolution source
	// triggers a replan that fans out the rest.
	require.Eventually(t, func() bool { return catalog.Len() == 3 },
		5*time.Second, 20*time.Millisecond)

	path := writeVideo(t, dir, "Alien-480p.mkv")
	entry, err := media.EntryFromPath(path)
	require.NoError(t, err)
	require.NoError(t, catalog.Add(entry))

	require.Eventually(t, func() bool { return catalog.Len() == 9 },
		10*time.Second, 20*time.Millisecond)

	// A further replan over the complete family enqueues nothing.
	assert.Equal(t, 0, planner.PlanOnce(ctx))
}
