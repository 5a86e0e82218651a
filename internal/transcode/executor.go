package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/vodarr/internal/ffmpeg"
	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
)

const (
	// DefaultParallelism is the number of concurrent transcode workers.
	DefaultParallelism = 2
	// DefaultQueueSize bounds the job queue.
	DefaultQueueSize = 256

	jobRetention    = 5 * time.Minute
	cleanupInterval = time.Minute
)

// Executor runs transcode jobs on a bounded worker pool. Each job spawns
// one FFmpeg child process; successful jobs register their output with the
// catalog, failed jobs remove the partial output and the pool keeps
// draining.
type Executor struct {
	catalog     *library.Catalog
	ffmpegPath  string
	parallelism int
	queue       chan *Job

	mu       sync.RWMutex
	jobs     map[string]*Job
	inflight map[media.Key]*Job
	cmds     map[string]*ffmpeg.Command

	stop     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewExecutor creates an executor writing variants into the catalog's
// video directory. Non-positive parallelism or queue size fall back to the
// defaults.
func NewExecutor(catalog *library.Catalog, ffmpegPath string, parallelism, queueSize int, logger *slog.Logger) *Executor {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Executor{
		catalog:     catalog,
		ffmpegPath:  ffmpegPath,
		parallelism: parallelism,
		queue:       make(chan *Job, queueSize),
		jobs:        make(map[string]*Job),
		inflight:    make(map[media.Key]*Job),
		cmds:        make(map[string]*ffmpeg.Command),
		stop:        make(chan struct{}),
		logger:      observability.WithComponent(logger, "transcode"),
	}
}

// Enqueue adds jobs for the given targets, skipping any whose variant is
// already queued or running. Returns the number of jobs accepted.
func (e *Executor) Enqueue(targets []Target) int {
	enqueued := 0
	for _, target := range targets {
		key := target.Key()
		targetPath := filepath.Join(
			e.catalog.VideoDir(),
			media.ComposeFilename(target.Source.Title, target.Resolution, target.Container),
		)

		e.mu.Lock()
		if _, busy := e.inflight[key]; busy {
			e.mu.Unlock()
			continue
		}
		job := newJob(target, targetPath)
		e.jobs[job.ID] = job
		e.inflight[key] = job
		e.mu.Unlock()

		select {
		case e.queue <- job:
			enqueued++
			e.logger.Debug("job enqueued",
				"job_id", job.ID,
				"target", key.String(),
				"source", target.Source.Key().String(),
			)
		case <-e.stop:
			e.finish(job, StateCancelled, nil)
			return enqueued
		}
	}
	return enqueued
}

// Run starts the worker pool and blocks until ctx is cancelled. On
// cancellation, running FFmpeg children are killed via their context and
// every queued job is drained to cancelled before Run returns.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("transcode executor started",
		"parallelism", e.parallelism,
		"queue_size", cap(e.queue),
	)

	var wg sync.WaitGroup
	for i := 0; i < e.parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.stopOnce.Do(func() { close(e.stop) })
			wg.Wait()
			// Catch anything that slipped into the buffer while the
			// workers were exiting.
			e.drain()
			e.logger.Info("transcode executor stopped")
			return ctx.Err()
		case <-ticker.C:
			e.pruneStale()
		}
	}
}

func (e *Executor) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drain()
			return
		case job := <-e.queue:
			if ctx.Err() != nil {
				e.finish(job, StateCancelled, nil)
				continue
			}
			e.runJob(ctx, job)
		}
	}
}

// drain empties the queue, marking every remaining job cancelled.
func (e *Executor) drain() {
	for {
		select {
		case job := <-e.queue:
			e.finish(job, StateCancelled, nil)
		default:
			return
		}
	}
}

func (e *Executor) runJob(ctx context.Context, job *Job) {
	e.setRunning(job)

	// A variant already on disk means a previous run produced it; just make
	// sure the catalog knows about it.
	if info, err := os.Stat(job.TargetPath); err == nil && info.Mode().IsRegular() {
		e.logger.Debug("target already exists, skipping transcode",
			"job_id", job.ID,
			"target", job.Target.String(),
		)
		e.register(job)
		return
	}

	cmd := e.buildCommand(job)
	e.mu.Lock()
	e.cmds[job.ID] = cmd
	e.mu.Unlock()

	e.logger.Info("transcode started",
		"job_id", job.ID,
		"source", job.Source.String(),
		"target", job.Target.String(),
	)

	err := cmd.Run(ctx)
	stats := cmd.ProcessStats()

	e.mu.Lock()
	delete(e.cmds, job.ID)
	job.Stats = stats
	e.mu.Unlock()

	if err != nil {
		// Never leave a partial variant behind.
		if rmErr := os.Remove(job.TargetPath); rmErr != nil && !os.IsNotExist(rmErr) {
			e.logger.Warn("failed to remove partial target",
				"job_id", job.ID,
				"path", job.TargetPath,
				"error", rmErr,
			)
		}

		if ctx.Err() != nil {
			e.finish(job, StateCancelled, nil)
			return
		}

		e.logger.Error("transcode failed",
			"job_id", job.ID,
			"target", job.Target.String(),
			"error", err,
			"stderr", strings.Join(stderrTail(cmd, 5), "\n"),
		)
		e.finish(job, StateFailed, err)
		return
	}

	e.register(job)
}

// register adds the finished variant to the catalog and closes the job.
func (e *Executor) register(job *Job) {
	entry := media.Entry{
		Title:      job.Target.Title,
		Resolution: job.Target.Resolution,
		Container:  job.Target.Container,
		Path:       job.TargetPath,
	}
	if err := e.catalog.Add(entry); err != nil {
		e.finish(job, StateFailed, fmt.Errorf("registering output: %w", err))
		return
	}

	e.finish(job, StateDone, nil)
	e.logger.Info("transcode complete",
		"job_id", job.ID,
		"target", job.Target.String(),
	)
}

func (e *Executor) buildCommand(job *Job) *ffmpeg.Command {
	builder := ffmpeg.NewCommandBuilder(e.ffmpegPath).
		Overwrite().
		Input(job.sourcePath).
		Scale(job.Target.Resolution.Height())

	switch job.Target.Container {
	case media.ContainerMP4:
		builder.VideoCodec("libx264").CRF(23).VideoPreset("medium")
	case media.ContainerMKV:
		builder.VideoCodec("libx264").CRF(23)
	case media.ContainerAVI:
		builder.VideoCodec("mpeg4").VideoQuality(6)
	}

	return builder.AudioCodec("aac").Output(job.TargetPath).Build()
}

func (e *Executor) setRunning(job *Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	job.State = StateRunning
	job.StartedAt = &now
}

func (e *Executor) finish(job *Job, state State, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	job.State = state
	job.FinishedAt = &now
	if err != nil {
		job.Error = err.Error()
	}
	delete(e.inflight, job.Target)
}

// pruneStale drops terminal jobs that finished more than jobRetention ago.
func (e *Executor) pruneStale() {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-jobRetention)
	removed := 0
	for id, job := range e.jobs {
		if job.State.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(e.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Debug("pruned stale jobs", "count", removed)
	}
}

// Jobs returns a copy of all known jobs ordered by enqueue time. Running
// jobs carry a fresh process stats sample.
func (e *Executor) Jobs() []*Job {
	e.mu.RLock()
	out := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		copied := *job
		if cmd, ok := e.cmds[job.ID]; ok && copied.State == StateRunning {
			copied.Stats = cmd.ProcessStats()
		}
		out = append(out, &copied)
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Job) int {
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// QueueDepth returns the number of jobs waiting for a worker.
func (e *Executor) QueueDepth() int {
	return len(e.queue)
}

func stderrTail(cmd *ffmpeg.Command, n int) []string {
	lines := cmd.GetStderrLines()
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
