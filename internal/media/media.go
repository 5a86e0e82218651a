// Package media defines the supported container formats and resolutions,
// the filename grammar for materialized video files, and the bandwidth
// policy that maps a measured downlink to a resolution ceiling. It is the
// shared vocabulary for the library, transcoder, control protocol, and
// streaming dispatcher.
package media

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Container represents a media container format, identified by its file
// extension without the dot.
type Container string

// Container constants in registry order. Registry order breaks ties when
// the transcode planner picks a source entry.
const (
	ContainerMP4 Container = "mp4"
	ContainerMKV Container = "mkv"
	ContainerAVI Container = "avi"
)

// Resolution represents a named vertical pixel count.
type Resolution string

// Resolution constants in ascending order.
const (
	Resolution240p  Resolution = "240p"
	Resolution360p  Resolution = "360p"
	Resolution480p  Resolution = "480p"
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// Transport represents a wire-level delivery mode.
type Transport string

// Transport tokens as they appear on the control channel.
const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
	TransportRTP Transport = "rtp"
)

// ErrMalformedName is returned when a filename does not match the
// <title>-<resolution>.<container> grammar.
var ErrMalformedName = errors.New("malformed media filename")

var containerRegistry = []Container{ContainerMP4, ContainerMKV, ContainerAVI}

var resolutionRegistry = []Resolution{
	Resolution240p,
	Resolution360p,
	Resolution480p,
	Resolution720p,
	Resolution1080p,
}

var resolutionHeights = map[Resolution]int{
	Resolution240p:  240,
	Resolution360p:  360,
	Resolution480p:  480,
	Resolution720p:  720,
	Resolution1080p: 1080,
}

// Title may contain hyphens; the greedy first group splits at the last
// hyphen that precedes a valid resolution token.
var filenamePattern = regexp.MustCompile(
	`^(.+)-((?i:240p|360p|480p|720p|1080p))\.((?i:mp4|mkv|avi))$`,
)

// String returns the container's file extension.
func (c Container) String() string {
	return string(c)
}

// String returns the resolution token (e.g. "720p").
func (r Resolution) String() string {
	return string(r)
}

// Height returns the vertical pixel count, or 0 for an unknown resolution.
func (r Resolution) Height() int {
	return resolutionHeights[r]
}

// String returns the transport token (e.g. "udp").
func (t Transport) String() string {
	return string(t)
}

// Containers returns the supported containers in registry order.
func Containers() []Container {
	out := make([]Container, len(containerRegistry))
	copy(out, containerRegistry)
	return out
}

// Resolutions returns the supported resolutions in ascending order.
func Resolutions() []Resolution {
	out := make([]Resolution, len(resolutionRegistry))
	copy(out, resolutionRegistry)
	return out
}

// ParseContainer parses a container token (case-insensitive).
func ParseContainer(s string) (Container, bool) {
	switch Container(strings.ToLower(strings.TrimSpace(s))) {
	case ContainerMP4:
		return ContainerMP4, true
	case ContainerMKV:
		return ContainerMKV, true
	case ContainerAVI:
		return ContainerAVI, true
	}
	return "", false
}

// ParseResolution parses a resolution token (case-insensitive).
func ParseResolution(s string) (Resolution, bool) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := resolutionHeights[r]; !ok {
		return "", false
	}
	return r, true
}

// ParseTransport parses a transport token (case-insensitive).
func ParseTransport(s string) (Transport, bool) {
	switch Transport(strings.ToLower(strings.TrimSpace(s))) {
	case TransportTCP:
		return TransportTCP, true
	case TransportUDP:
		return TransportUDP, true
	case TransportRTP:
		return TransportRTP, true
	}
	return "", false
}

// CompareResolution orders two resolutions by height. It returns a negative
// value when a < b, zero when equal, and a positive value when a > b.
func CompareResolution(a, b Resolution) int {
	return a.Height() - b.Height()
}

// ResolutionsUpTo returns all supported resolutions with height less than
// or equal to r, in ascending order.
func ResolutionsUpTo(r Resolution) []Resolution {
	var out []Resolution
	for _, candidate := range resolutionRegistry {
		if candidate.Height() <= r.Height() {
			out = append(out, candidate)
		}
	}
	return out
}

// ParseFilename splits a basename of the form <title>-<resolution>.<container>
// into its parts. The title is split at the last hyphen and is case-sensitive;
// the resolution token and extension are case-insensitive. Any deviation
// yields ErrMalformedName.
func ParseFilename(name string) (title string, res Resolution, c Container, err error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedName, name)
	}
	res, _ = ParseResolution(m[2])
	c, _ = ParseContainer(m[3])
	return m[1], res, c, nil
}

// ComposeFilename builds the canonical basename for an entry.
func ComposeFilename(title string, res Resolution, c Container) string {
	return fmt.Sprintf("%s-%s.%s", title, res, c)
}

// ResolutionForBandwidth maps a measured downlink in Mbps to the highest
// resolution the link is expected to sustain. Negative or undefined (NaN)
// readings fall back to 480p.
func ResolutionForBandwidth(mbps float64) Resolution {
	if math.IsNaN(mbps) || mbps < 0 {
		return Resolution480p
	}
	switch {
	case mbps < 2:
		return Resolution240p
	case mbps < 5:
		return Resolution360p
	case mbps < 8:
		return Resolution480p
	case mbps < 12:
		return Resolution720p
	default:
		return Resolution1080p
	}
}

// TransportForResolution picks the default delivery mode for a resolution:
// low resolutions ride the reliable stream, mid resolutions plain datagrams,
// high resolutions RTP.
func TransportForResolution(r Resolution) Transport {
	switch r {
	case Resolution240p:
		return TransportTCP
	case Resolution360p, Resolution480p:
		return TransportUDP
	default:
		return TransportRTP
	}
}
