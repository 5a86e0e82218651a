package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID            int       `json:"pid"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryRSS      uint64    `json:"memory_rss_bytes"`
	MemoryVMS      uint64    `json:"memory_vms_bytes"`
	MemoryPercent  float64   `json:"memory_percent"`
	StartTime      time.Time `json:"start_time"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// ProcessMonitor periodically samples resource usage of a child process
// from /proc. Stats are best-effort: on unsupported platforms or once the
// process exits, the last sample is retained.
type ProcessMonitor struct {
	pid       int
	startTime time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	prevCPUTime    float64
	prevSampleTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:       pid,
		startTime: time.Now(),
		interval:  time.Second,
		stats: ProcessStats{
			PID:       pid,
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetInterval changes the sampling interval. Call before Start.
func (m *ProcessMonitor) SetInterval(interval time.Duration) {
	m.interval = interval
}

// Start begins sampling in the background.
func (m *ProcessMonitor) Start() {
	m.wg.Add(1)
	go m.monitorLoop()
}

// Stop ends sampling and waits for the loop to exit.
func (m *ProcessMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Stats returns a copy of the latest sample.
func (m *ProcessMonitor) Stats() ProcessStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.UptimeSeconds = time.Since(m.startTime).Seconds()
	return stats
}

func (m *ProcessMonitor) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ProcessMonitor) sample() {
	if runtime.GOOS != "linux" {
		return
	}

	if err := m.sampleLinux(); err != nil {
		// Process likely exited between ticks; keep the last sample.
		return
	}
}

func (m *ProcessMonitor) sampleLinux() error {
	statPath := fmt.Sprintf("/proc/%d/stat", m.pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		return err
	}

	// The comm field is parenthesised and may contain spaces, so split
	// after the closing paren.
	statLine := string(data)
	closeParen := strings.LastIndex(statLine, ")")
	if closeParen == -1 {
		return fmt.Errorf("malformed stat line")
	}

	fields := strings.Fields(statLine[closeParen+1:])
	if len(fields) < 13 {
		return fmt.Errorf("insufficient stat fields")
	}

	// Fields after comm: state(0) ... utime(11) stime(12), in clock ticks.
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return err
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return err
	}

	clockTicks := getClockTicks()
	totalCPUTime := float64(utime+stime) / float64(clockTicks)

	now := time.Now()
	var cpuPercent float64
	if !m.prevSampleTime.IsZero() {
		elapsed := now.Sub(m.prevSampleTime).Seconds()
		if elapsed > 0 {
			cpuPercent = (totalCPUTime - m.prevCPUTime) / elapsed * 100
		}
	}
	m.prevCPUTime = totalCPUTime
	m.prevSampleTime = now

	statmPath := fmt.Sprintf("/proc/%d/statm", m.pid)
	statmData, err := os.ReadFile(statmPath)
	if err != nil {
		return err
	}

	statmFields := strings.Fields(string(statmData))
	if len(statmFields) < 2 {
		return fmt.Errorf("insufficient statm fields")
	}

	pageSize := uint64(os.Getpagesize())
	vmsPages, _ := strconv.ParseUint(statmFields[0], 10, 64)
	rssPages, _ := strconv.ParseUint(statmFields[1], 10, 64)

	memoryVMS := vmsPages * pageSize
	memoryRSS := rssPages * pageSize

	var memoryPercent float64
	if totalMem := getTotalMemory(); totalMem > 0 {
		memoryPercent = float64(memoryRSS) / float64(totalMem) * 100
	}

	m.mu.Lock()
	m.stats.CPUPercent = cpuPercent
	m.stats.MemoryRSS = memoryRSS
	m.stats.MemoryVMS = memoryVMS
	m.stats.MemoryPercent = memoryPercent
	m.stats.LastUpdateTime = now
	m.mu.Unlock()

	return nil
}

// getClockTicks returns the kernel clock tick rate. Linux has used 100 on
// every mainstream architecture for a long time, so avoid the cgo
// sysconf(_SC_CLK_TCK) call.
func getClockTicks() uint64 {
	return 100
}

func getTotalMemory() uint64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, err := strconv.ParseUint(fields[1], 10, 64)
				if err == nil {
					return kb * 1024
				}
			}
		}
	}

	return 0
}
