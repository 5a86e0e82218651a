package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vodarr/internal/transcode"
)

// JobHandler handles transcode job API endpoints.
type JobHandler struct {
	executor *transcode.Executor
}

// NewJobHandler creates a new job handler.
func NewJobHandler(executor *transcode.Executor) *JobHandler {
	return &JobHandler{executor: executor}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List transcode jobs",
		Description: "Returns transcode jobs, optionally filtered by state",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getJobStats",
		Method:      "GET",
		Path:        "/api/v1/jobs/stats",
		Summary:     "Get transcode job statistics",
		Description: "Returns job counts per state and the current queue depth",
		Tags:        []string{"Jobs"},
	}, h.GetStats)
}

// ListJobsInput is the input for the job listing endpoint.
type ListJobsInput struct {
	State string `query:"state" enum:"queued,running,done,failed,cancelled" doc:"Job state to filter by"`
}

// ListJobsOutput is the output for the job listing endpoint.
type ListJobsOutput struct {
	Body struct {
		Jobs  []*transcode.Job `json:"jobs"`
		Count int              `json:"count"`
	}
}

// List returns transcode jobs.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	jobs := h.executor.Jobs()

	if input.State != "" {
		filtered := jobs[:0]
		for _, job := range jobs {
			if job.State == transcode.State(input.State) {
				filtered = append(filtered, job)
			}
		}
		jobs = filtered
	}

	out := &ListJobsOutput{}
	out.Body.Jobs = jobs
	out.Body.Count = len(jobs)
	return out, nil
}

// GetStatsInput is the input for the job statistics endpoint.
type GetStatsInput struct{}

// GetStatsOutput is the output for the job statistics endpoint.
type GetStatsOutput struct {
	Body struct {
		ByState    map[transcode.State]int `json:"by_state"`
		QueueDepth int                     `json:"queue_depth"`
		Total      int                     `json:"total"`
	}
}

// GetStats returns job counts per state and the current queue depth.
func (h *JobHandler) GetStats(ctx context.Context, input *GetStatsInput) (*GetStatsOutput, error) {
	jobs := h.executor.Jobs()

	byState := make(map[transcode.State]int)
	for _, job := range jobs {
		byState[job.State]++
	}

	out := &GetStatsOutput{}
	out.Body.ByState = byState
	out.Body.QueueDepth = h.executor.QueueDepth()
	out.Body.Total = len(jobs)
	return out, nil
}
