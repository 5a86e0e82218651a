package transcode

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
)

// Plan computes the missing variants for every title in the snapshot. The
// candidate set per title is every supported container crossed with every
// resolution up to the title's best source; tuples already present are
// excluded. Planning over a complete catalog yields nothing.
func Plan(entries []media.Entry) []Target {
	present := make(map[media.Key]struct{}, len(entries))
	byTitle := make(map[string][]media.Entry)
	var titles []string
	for _, e := range entries {
		present[e.Key()] = struct{}{}
		if _, ok := byTitle[e.Title]; !ok {
			titles = append(titles, e.Title)
		}
		byTitle[e.Title] = append(byTitle[e.Title], e)
	}
	slices.SortFunc(titles, strings.Compare)

	var targets []Target
	for _, title := range titles {
		source := pickSource(byTitle[title])
		for _, container := range media.Containers() {
			for _, resolution := range media.ResolutionsUpTo(source.Resolution) {
				key := media.Key{Title: title, Resolution: resolution, Container: container}
				if _, ok := present[key]; ok {
					continue
				}
				targets = append(targets, Target{
					Source:     source,
					Resolution: resolution,
					Container:  container,
				})
			}
		}
	}
	return targets
}

// pickSource returns the highest-resolution entry for a title. Resolution
// ties are broken by container registry order, so an mp4 source beats an
// avi source at the same height.
func pickSource(entries []media.Entry) media.Entry {
	best := entries[0]
	for _, e := range entries[1:] {
		switch cmp := media.CompareResolution(e.Resolution, best.Resolution); {
		case cmp > 0:
			best = e
		case cmp == 0 && containerRank(e.Container) < containerRank(best.Container):
			best = e
		}
	}
	return best
}

func containerRank(c media.Container) int {
	for i, candidate := range media.Containers() {
		if candidate == c {
			return i
		}
	}
	return len(media.Containers())
}

// Planner keeps the catalog's variant closure up to date: it plans once at
// startup and replans whenever the catalog changes. Change bursts (a scan,
// a batch of completed transcodes) are coalesced before replanning.
type Planner struct {
	catalog  *library.Catalog
	executor *Executor
	coalesce time.Duration
	logger   *slog.Logger
}

// NewPlanner creates a planner feeding the given executor.
func NewPlanner(catalog *library.Catalog, executor *Executor, logger *slog.Logger) *Planner {
	return &Planner{
		catalog:  catalog,
		executor: executor,
		coalesce: 500 * time.Millisecond,
		logger:   observability.WithComponent(logger, "transcode"),
	}
}

// WithCoalesce overrides the event coalescing window.
func (p *Planner) WithCoalesce(d time.Duration) *Planner {
	p.coalesce = d
	return p
}

// PlanOnce computes and enqueues missing variants. Returns the number of
// jobs accepted by the executor.
func (p *Planner) PlanOnce(ctx context.Context) int {
	targets := Plan(p.catalog.Snapshot())
	if len(targets) == 0 {
		return 0
	}
	enqueued := p.executor.Enqueue(targets)
	p.logger.Info("transcode plan computed",
		"missing", len(targets),
		"enqueued", enqueued,
	)
	return enqueued
}

// Run plans once, then replans after each coalesced burst of catalog
// changes. Blocks until ctx is cancelled.
func (p *Planner) Run(ctx context.Context) error {
	sub := p.catalog.Subscribe()
	defer p.catalog.Unsubscribe(sub.ID)

	p.PlanOnce(ctx)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case _, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if timer == nil {
				timer = time.NewTimer(p.coalesce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(p.coalesce)
			}

		case <-fire:
			timer = nil
			fire = nil
			p.PlanOnce(ctx)
		}
	}
}
