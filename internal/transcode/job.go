// Package transcode plans and executes the synthesis of missing video
// variants via FFmpeg child processes.
package transcode

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vodarr/internal/ffmpeg"
	"github.com/jmylchreest/vodarr/internal/media"
)

// State is the lifecycle state of a transcode job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Target names one missing variant and the entry it will be derived from.
type Target struct {
	Source     media.Entry
	Resolution media.Resolution
	Container  media.Container
}

// Key returns the catalog key of the variant this target produces.
func (t Target) Key() media.Key {
	return media.Key{Title: t.Source.Title, Resolution: t.Resolution, Container: t.Container}
}

// Job tracks one transcode through its lifecycle.
type Job struct {
	ID         string               `json:"id"`
	Source     media.Key            `json:"source"`
	Target     media.Key            `json:"target"`
	TargetPath string               `json:"-"`
	State      State                `json:"state"`
	Error      string               `json:"error,omitempty"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Stats      *ffmpeg.ProcessStats `json:"stats,omitempty"`

	sourcePath string
}

func newJob(target Target, targetPath string) *Job {
	return &Job{
		ID:         ulid.Make().String(),
		Source:     target.Source.Key(),
		Target:     target.Key(),
		TargetPath: targetPath,
		State:      StateQueued,
		EnqueuedAt: time.Now(),
		sourcePath: target.Source.Path,
	}
}
