// Package handlers provides the read-only status API handlers for vodarr.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/scheduler"
	"github.com/jmylchreest/vodarr/internal/session"
	"github.com/jmylchreest/vodarr/internal/transcode"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	catalog   *library.Catalog
	registry  *session.Registry
	executor  *transcode.Executor
	scheduler *scheduler.Scheduler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, catalog *library.Catalog, registry *session.Registry, executor *transcode.Executor) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		catalog:   catalog,
		registry:  registry,
		executor:  executor,
	}
}

// WithScheduler includes scheduler status in health responses.
func (h *HealthHandler) WithScheduler(s *scheduler.Scheduler) *HealthHandler {
	h.scheduler = s
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(),
			Memory:        h.getMemoryInfo(),
			Components: HealthComponents{
				Library: LibraryHealth{
					Status: "ok",
					Videos: h.catalog.Len(),
				},
				Sessions: SessionsHealth{
					Status:    "ok",
					Connected: h.registry.Len(),
				},
				Transcoder: h.getTranscoderHealth(),
				Scheduler:  h.getSchedulerHealth(),
			},
		},
	}, nil
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()

	info := CPUInfo{
		Cores: cores,
	}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15

		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

// getMemoryInfo returns system memory usage plus the process tree, which
// includes any running FFmpeg children.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.ProcessMemoryMB = float64(memInfo.RSS) / 1024 / 1024
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				info.ChildProcessesMB += float64(childMem.RSS) / 1024 / 1024
			}
		}
	}

	return info
}

func (h *HealthHandler) getTranscoderHealth() TranscoderHealth {
	health := TranscoderHealth{Status: "ok"}
	if h.executor == nil {
		health.Status = "disabled"
		return health
	}
	health.QueueDepth = h.executor.QueueDepth()
	return health
}

func (h *HealthHandler) getSchedulerHealth() SchedulerHealth {
	health := SchedulerHealth{Status: "ok"}
	if h.scheduler == nil {
		health.Status = "disabled"
		return health
	}

	lastRun, lastErr := h.scheduler.LastRun()
	if !lastRun.IsZero() {
		health.LastRun = lastRun.UTC().Format(time.RFC3339)
	}
	if lastErr != nil {
		health.Status = "error"
		health.LastError = lastErr.Error()
	}
	return health
}
