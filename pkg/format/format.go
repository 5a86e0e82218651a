// Package format renders byte counts, numbers and cron schedules as
// prose for log lines and CLI output.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jmylchreest/vodarr/pkg/duration"
)

// Bytes renders a byte count with a binary-scaled unit: 1536 -> "1.5 KB".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for rest := n / unit; rest >= unit; rest /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), units[exp])
}

var printer = message.NewPrinter(language.English)

// Number renders an integer with thousand separators: 1234567 -> "1,234,567".
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// CronDescription renders a rescan schedule as prose. It understands the
// @descriptors and the five-field cron form the scheduler accepts;
// anything it cannot interpret comes back unchanged.
func CronDescription(spec string) string {
	spec = strings.TrimSpace(spec)

	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(rest)); err == nil {
			return "Every " + duration.Format(d)
		}
		return spec
	}

	switch spec {
	case "@hourly":
		return "Every hour"
	case "@daily", "@midnight":
		return "Daily at midnight"
	case "@weekly":
		return "Sundays at midnight"
	case "@monthly":
		return "1st of each month at midnight"
	case "@yearly", "@annually":
		return "Every January 1st at midnight"
	}

	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return spec
	}
	min, hour, dom, _, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	if interval, ok := stepInterval(min); ok && hour == "*" {
		if interval == 1 {
			return "Every minute"
		}
		return fmt.Sprintf("Every %d minutes", interval)
	}
	if min == "*" && hour == "*" {
		return "Every minute"
	}
	if interval, ok := stepInterval(hour); ok {
		if interval == 1 {
			return "Every hour"
		}
		return fmt.Sprintf("Every %d hours", interval)
	}

	m, err := strconv.Atoi(min)
	if err != nil {
		return spec
	}
	if hour == "*" {
		if m == 0 {
			return "Every hour"
		}
		return fmt.Sprintf("Every hour at :%02d", m)
	}
	h, err := strconv.Atoi(hour)
	if err != nil {
		return spec
	}
	at := clockTime(h, m)

	if dow != "*" && dom == "*" {
		if day, ok := weekday(dow); ok {
			return fmt.Sprintf("%ss at %s", day, at)
		}
		return spec
	}
	if dom != "*" {
		if d, err := strconv.Atoi(dom); err == nil {
			return fmt.Sprintf("%s of each month at %s", ordinal(d), at)
		}
		return spec
	}
	return "Daily at " + at
}

// stepInterval parses a */N cron field.
func stepInterval(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func clockTime(hour, minute int) string {
	switch {
	case hour == 0 && minute == 0:
		return "midnight"
	case hour == 12 && minute == 0:
		return "noon"
	}
	period := "AM"
	display := hour
	if hour >= 12 {
		period = "PM"
		if hour > 12 {
			display = hour - 12
		}
	}
	if hour == 0 {
		display = 12
	}
	if minute == 0 {
		return fmt.Sprintf("%d%s", display, period)
	}
	return fmt.Sprintf("%d:%02d%s", display, minute, period)
}

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func weekday(field string) (string, bool) {
	d, err := strconv.Atoi(field)
	if err != nil || d < 0 || d > 6 {
		return "", false
	}
	return weekdays[d], true
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 10 {
	case 1:
		if n%100 != 11 {
			suffix = "st"
		}
	case 2:
		if n%100 != 12 {
			suffix = "nd"
		}
	case 3:
		if n%100 != 13 {
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
