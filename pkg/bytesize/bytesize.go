// Package bytesize provides human-readable byte size parsing and formatting
// using binary (1024) units.
//
// Supported units (case-insensitive): B, KB/K/KiB, MB/M/MiB, GB/G/GiB,
// TB/T/TiB. A bare number is taken as bytes.
//
// Examples:
//   - "16KB" = 16384 bytes
//   - "1.5 GB" = 1610612736 bytes
//   - "1400" = 1400 bytes
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size represents a byte size as int64.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
)

var units = []struct {
	names []string
	size  Size
}{
	{[]string{"tib", "tb", "t"}, TB},
	{[]string{"gib", "gb", "g"}, GB},
	{[]string{"mib", "mb", "m"}, MB},
	{[]string{"kib", "kb", "k"}, KB},
	{[]string{"bytes", "byte", "b"}, B},
}

// Parse parses a human-readable byte size string. Integer and floating
// point values are accepted, with or without whitespace before the unit.
// A missing unit means bytes.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	lower := strings.ToLower(trimmed)
	multiplier := B
	number := lower
	for _, u := range units {
		matched := false
		for _, name := range u.names {
			if strings.HasSuffix(lower, name) {
				number = strings.TrimSpace(strings.TrimSuffix(lower, name))
				multiplier = u.size
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}

	return Size(value * float64(multiplier)), nil
}

// Format converts a byte size to a human-readable string using the largest
// unit that yields a value >= 1.
func Format(s Size) string {
	negative := s < 0
	if negative {
		s = -s
	}

	var formatted string
	switch {
	case s >= TB:
		formatted = trimFloat(float64(s)/float64(TB)) + "TB"
	case s >= GB:
		formatted = trimFloat(float64(s)/float64(GB)) + "GB"
	case s >= MB:
		formatted = trimFloat(float64(s)/float64(MB)) + "MB"
	case s >= KB:
		formatted = trimFloat(float64(s)/float64(KB)) + "KB"
	default:
		formatted = fmt.Sprintf("%dB", s)
	}

	if negative {
		return "-" + formatted
	}
	return formatted
}

// trimFloat renders a value with up to two decimals, dropping trailing zeros.
func trimFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	out := fmt.Sprintf("%.2f", value)
	out = strings.TrimRight(out, "0")
	return strings.TrimRight(out, ".")
}

// Bytes returns the size in bytes as int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

// String returns a human-readable string representation.
func (s Size) String() string {
	return Format(s)
}
