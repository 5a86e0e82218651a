package handlers

// HealthResponse is the body of the health check endpoint.
type HealthResponse struct {
	Status        string           `json:"status"`
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	Uptime        string           `json:"uptime"`
	UptimeSeconds float64          `json:"uptime_seconds"`
	CPUInfo       CPUInfo          `json:"cpu"`
	Memory        MemoryInfo       `json:"memory"`
	Components    HealthComponents `json:"components"`
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	ChildProcessCount int     `json:"child_process_count"`
	ChildProcessesMB  float64 `json:"child_processes_mb"`
}

// HealthComponents summarizes the state of each subsystem.
type HealthComponents struct {
	Library    LibraryHealth    `json:"library"`
	Sessions   SessionsHealth   `json:"sessions"`
	Transcoder TranscoderHealth `json:"transcoder"`
	Scheduler  SchedulerHealth  `json:"scheduler"`
}

// LibraryHealth reports catalog size.
type LibraryHealth struct {
	Status string `json:"status"`
	Videos int    `json:"videos"`
}

// SessionsHealth reports connected client count.
type SessionsHealth struct {
	Status    string `json:"status"`
	Connected int    `json:"connected"`
}

// TranscoderHealth reports transcode queue pressure.
type TranscoderHealth struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
}

// SchedulerHealth reports the last scheduled rescan.
type SchedulerHealth struct {
	Status    string `json:"status"`
	LastRun   string `json:"last_run,omitempty"`
	LastError string `json:"last_error,omitempty"`
}
