// Package ffmpeg provides FFmpeg binary detection and a process wrapper
// for transcode jobs.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/vodarr/internal/util"
)

// BinaryInfo describes the detected FFmpeg installation.
type BinaryInfo struct {
	FFmpegPath  string    `json:"ffmpeg_path"`
	FFplayPath  string    `json:"ffplay_path,omitempty"`
	Version     string    `json:"version"`
	Major       int       `json:"major"`
	Minor       int       `json:"minor"`
	Encoders    []string  `json:"encoders,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// BinaryDetector locates the FFmpeg binaries and probes their capabilities.
// Results are cached; detection runs the binary so the cache avoids paying
// that cost on every transcode job.
type BinaryDetector struct {
	mu         sync.RWMutex
	cache      *BinaryInfo
	cacheTTL   time.Duration
	ffmpegPath string
}

// NewBinaryDetector creates a new binary detector.
func NewBinaryDetector() *BinaryDetector {
	return &BinaryDetector{
		cacheTTL: 5 * time.Minute,
	}
}

// WithCacheTTL sets the cache TTL.
func (d *BinaryDetector) WithCacheTTL(ttl time.Duration) *BinaryDetector {
	d.cacheTTL = ttl
	return d
}

// WithFFmpegPath pins the ffmpeg binary to an explicit path, bypassing
// environment and PATH lookup.
func (d *BinaryDetector) WithFFmpegPath(path string) *BinaryDetector {
	d.ffmpegPath = path
	return d
}

// Detect finds the FFmpeg binaries and returns their info. ffmpeg is
// required; ffplay is optional and only populated when present.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.cache != nil && time.Since(d.cache.LastChecked) < d.cacheTTL {
		info := *d.cache
		d.mu.RUnlock()
		return &info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check after acquiring the write lock.
	if d.cache != nil && time.Since(d.cache.LastChecked) < d.cacheTTL {
		info := *d.cache
		return &info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.cache = info
	copied := *info
	return &copied, nil
}

// Clear clears the cache.
func (d *BinaryDetector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	ffmpegPath := d.ffmpegPath
	if ffmpegPath == "" {
		var err error
		ffmpegPath, err = util.FindBinary("ffmpeg", "VODARR_FFMPEG_BINARY")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
	}

	info := &BinaryInfo{
		FFmpegPath:  ffmpegPath,
		LastChecked: time.Now(),
	}

	// ffplay is only needed by the playback client, so absence is fine.
	if ffplayPath, err := util.FindBinary("ffplay", "VODARR_FFPLAY_BINARY"); err == nil {
		info.FFplayPath = ffplayPath
	}

	if err := d.getVersion(ctx, info); err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}

	if err := d.getEncoders(ctx, info); err != nil {
		return nil, fmt.Errorf("getting ffmpeg encoders: %w", err)
	}

	return info, nil
}

func (d *BinaryDetector) getVersion(ctx context.Context, info *BinaryInfo) error {
	cmd := exec.CommandContext(ctx, info.FFmpegPath, "-version")
	output, err := cmd.Output()
	if err != nil {
		return err
	}

	lines := strings.Split(string(output), "\n")
	if len(lines) == 0 {
		return fmt.Errorf("empty version output")
	}

	// First line: "ffmpeg version 6.1.1 Copyright ..."
	fields := strings.Fields(lines[0])
	for i, field := range fields {
		if field == "version" && i+1 < len(fields) {
			info.Version = fields[i+1]
			break
		}
	}

	if info.Version == "" {
		return fmt.Errorf("could not parse version from: %s", lines[0])
	}

	// Some distro builds prefix the tag, e.g. "n6.1.1".
	re := regexp.MustCompile(`^n?(\d+)\.(\d+)`)
	matches := re.FindStringSubmatch(info.Version)
	if len(matches) >= 3 {
		info.Major, _ = strconv.Atoi(matches[1])
		info.Minor, _ = strconv.Atoi(matches[2])
	}

	return nil
}

func (d *BinaryDetector) getEncoders(ctx context.Context, info *BinaryInfo) error {
	cmd := exec.CommandContext(ctx, info.FFmpegPath, "-encoders")
	output, err := cmd.Output()
	if err != nil {
		return err
	}

	lines := strings.Split(string(output), "\n")
	inEncoders := false

	for _, line := range lines {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "------") {
			inEncoders = true
			continue
		}

		if !inEncoders || line == "" {
			continue
		}

		// Format: " V....D h264  H.264 / AVC ..."
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			info.Encoders = append(info.Encoders, fields[1])
		}
	}

	return nil
}

// HasEncoder checks whether a specific encoder is available.
func (info *BinaryInfo) HasEncoder(encoder string) bool {
	for _, e := range info.Encoders {
		if e == encoder {
			return true
		}
	}
	return false
}

// SupportsMinVersion checks whether the binary meets a minimum version.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.Major > major {
		return true
	}
	if info.Major == major && info.Minor >= minor {
		return true
	}
	return false
}
