// Package library maintains the in-memory video catalog backed by a single
// directory of media files.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jmylchreest/vodarr/internal/media"
	"github.com/jmylchreest/vodarr/internal/observability"
)

// ErrNotFound is returned when a catalog lookup misses.
var ErrNotFound = errors.New("video not found")

// Catalog is the in-memory index of media entries. A single writer mutates
// it (scans, transcode completions, verification); readers work on copies.
type Catalog struct {
	mu          sync.RWMutex
	videoDir    string
	entries     map[media.Key]media.Entry
	byTitle     map[string]map[media.Key]struct{}
	subscribers map[string]*Subscriber
	logger      *slog.Logger
}

// ScanResult summarizes a directory scan.
type ScanResult struct {
	Scanned   int
	Added     int
	Malformed int
}

// New creates an empty catalog rooted at videoDir.
func New(videoDir string, logger *slog.Logger) *Catalog {
	return &Catalog{
		videoDir:    videoDir,
		entries:     make(map[media.Key]media.Entry),
		byTitle:     make(map[string]map[media.Key]struct{}),
		subscribers: make(map[string]*Subscriber),
		logger:      observability.WithComponent(logger, "library"),
	}
}

// VideoDir returns the directory the catalog indexes.
func (c *Catalog) VideoDir() string {
	return c.videoDir
}

// Scan reads the video directory once and inserts every well-formed entry.
// Files whose names don't parse are skipped with a warning. Scan never
// removes entries; see Verify.
func (c *Catalog) Scan(ctx context.Context) (ScanResult, error) {
	done := observability.TimedOperation(ctx, c.logger, "library scan")
	defer done()

	var result ScanResult

	dirEntries, err := os.ReadDir(c.videoDir)
	if err != nil {
		return result, fmt.Errorf("reading video directory: %w", err)
	}

	parsed := make([]media.Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !d.Type().IsRegular() {
			continue
		}
		result.Scanned++

		entry, err := media.EntryFromPath(filepath.Join(c.videoDir, d.Name()))
		if err != nil {
			result.Malformed++
			c.logger.Warn("skipping file with unrecognised name",
				"file", d.Name(),
				"error", err,
			)
			continue
		}
		parsed = append(parsed, entry)
	}

	c.mu.Lock()
	for _, entry := range parsed {
		if c.insertLocked(entry) {
			result.Added++
		}
	}
	if result.Added > 0 {
		c.broadcastLocked(Event{Type: EventScanned, Added: result.Added})
	}
	c.mu.Unlock()

	c.logger.Info("library scan complete",
		"dir", c.videoDir,
		"scanned", result.Scanned,
		"added", result.Added,
		"malformed", result.Malformed,
	)
	return result, nil
}

// Add inserts a single entry whose file already exists on disk. Used by the
// transcode executor when a job produces a new variant. Adding an entry
// that is already present is a no-op.
func (c *Catalog) Add(entry media.Entry) error {
	info, err := os.Stat(entry.Path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", entry.Path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file", entry.Path)
	}
	if base := filepath.Base(entry.Path); base != entry.Filename() {
		return fmt.Errorf("path %q does not match entry %s", base, entry.Key())
	}

	c.mu.Lock()
	inserted := c.insertLocked(entry)
	if inserted {
		c.broadcastLocked(Event{Type: EventAdded, Entry: entry, Added: 1})
	}
	c.mu.Unlock()

	if inserted {
		c.logger.Debug("catalog entry added", "entry", entry.Key().String())
	}
	return nil
}

// insertLocked adds an entry to both indexes. Must be called with c.mu held.
// Returns false when the key was already present.
func (c *Catalog) insertLocked(entry media.Entry) bool {
	key := entry.Key()
	if _, exists := c.entries[key]; exists {
		return false
	}
	c.entries[key] = entry
	if c.byTitle[entry.Title] == nil {
		c.byTitle[entry.Title] = make(map[media.Key]struct{})
	}
	c.byTitle[entry.Title][key] = struct{}{}
	return true
}

// removeLocked drops an entry from both indexes. Must be called with c.mu held.
func (c *Catalog) removeLocked(key media.Key) {
	delete(c.entries, key)
	if titleKeys, ok := c.byTitle[key.Title]; ok {
		delete(titleKeys, key)
		if len(titleKeys) == 0 {
			delete(c.byTitle, key.Title)
		}
	}
}

// Verify re-checks every entry's backing file and drops entries whose path
// is no longer a regular file. Returns the number of entries removed.
func (c *Catalog) Verify(ctx context.Context) int {
	snapshot := c.Snapshot()

	var missing []media.Entry
	for _, entry := range snapshot {
		if err := ctx.Err(); err != nil {
			return 0
		}
		info, err := os.Stat(entry.Path)
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	c.mu.Lock()
	removed := 0
	for _, entry := range missing {
		key := entry.Key()
		if _, ok := c.entries[key]; !ok {
			continue
		}
		c.removeLocked(key)
		removed++
		c.broadcastLocked(Event{Type: EventRemoved, Entry: entry, Removed: 1})
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Info("removed entries with missing files", "count", removed)
	}
	return removed
}

// Lookup returns the entry for an exact (title, resolution, container) key.
func (c *Catalog) Lookup(title string, resolution media.Resolution, container media.Container) (media.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[media.Key{Title: title, Resolution: resolution, Container: container}]
	if !ok {
		return media.Entry{}, ErrNotFound
	}
	return entry, nil
}

// Snapshot returns a sorted copy of all entries.
func (c *Catalog) Snapshot() []media.Entry {
	c.mu.RLock()
	out := make([]media.Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, compareEntries)
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ListVideos returns entries in the given container whose height fits the
// bandwidth-derived resolution ceiling. Ordered container asc, title asc,
// height desc.
func (c *Catalog) ListVideos(container media.Container, bandwidthMbps float64) []media.Entry {
	ceiling := media.ResolutionForBandwidth(bandwidthMbps).Height()

	c.mu.RLock()
	out := make([]media.Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if entry.Container == container && entry.Resolution.Height() <= ceiling {
			out = append(out, entry)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, compareEntries)
	return out
}

// ListContainers returns the distinct containers present in the catalog in
// ascending order. An empty catalog yields the full supported list so
// clients can still pick one.
func (c *Catalog) ListContainers() []media.Container {
	c.mu.RLock()
	seen := make(map[media.Container]struct{})
	for key := range c.entries {
		seen[key.Container] = struct{}{}
	}
	c.mu.RUnlock()

	if len(seen) == 0 {
		return media.Containers()
	}

	out := make([]media.Container, 0, len(seen))
	for container := range seen {
		out = append(out, container)
	}
	slices.SortFunc(out, func(a, b media.Container) int {
		return strings.Compare(string(a), string(b))
	})
	return out
}

// compareEntries orders entries container asc (lexical), title asc,
// height desc.
func compareEntries(a, b media.Entry) int {
	if c := strings.Compare(string(a.Container), string(b.Container)); c != 0 {
		return c
	}
	if c := strings.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	return b.Resolution.Height() - a.Resolution.Height()
}
