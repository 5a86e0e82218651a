package handlers

import (
	"context"
	"math"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vodarr/internal/library"
	"github.com/jmylchreest/vodarr/internal/media"
)

// VideoHandler handles catalog API endpoints.
type VideoHandler struct {
	catalog *library.Catalog
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(catalog *library.Catalog) *VideoHandler {
	return &VideoHandler{catalog: catalog}
}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listVideos",
		Method:      "GET",
		Path:        "/api/v1/videos",
		Summary:     "List videos",
		Description: "Returns cataloged videos, optionally filtered by container and bandwidth ceiling",
		Tags:        []string{"Catalog"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "listContainers",
		Method:      "GET",
		Path:        "/api/v1/containers",
		Summary:     "List containers",
		Description: "Returns the distinct container formats present in the catalog",
		Tags:        []string{"Catalog"},
	}, h.ListContainers)
}

// ListVideosInput is the input for the video listing endpoint.
type ListVideosInput struct {
	Container string  `query:"container" doc:"Container format to filter by (mp4, mkv, avi)"`
	Bandwidth float64 `query:"bandwidth" doc:"Downlink bandwidth in Mbps; limits results to the resolution this bandwidth supports"`
}

// ListVideosOutput is the output for the video listing endpoint.
type ListVideosOutput struct {
	Body struct {
		Videos []media.Entry `json:"videos"`
		Count  int           `json:"count"`
	}
}

// List returns cataloged videos. Without a container filter the full
// catalog snapshot is returned.
func (h *VideoHandler) List(ctx context.Context, input *ListVideosInput) (*ListVideosOutput, error) {
	out := &ListVideosOutput{}

	if input.Container == "" {
		out.Body.Videos = h.catalog.Snapshot()
		out.Body.Count = len(out.Body.Videos)
		return out, nil
	}

	container, ok := media.ParseContainer(input.Container)
	if !ok {
		return nil, huma.Error400BadRequest("unknown container format: " + input.Container)
	}

	bandwidth := input.Bandwidth
	if bandwidth == 0 {
		// No ceiling requested: every resolution fits.
		bandwidth = math.Inf(1)
	}

	out.Body.Videos = h.catalog.ListVideos(container, bandwidth)
	out.Body.Count = len(out.Body.Videos)
	return out, nil
}

// ListContainersInput is the input for the container listing endpoint.
type ListContainersInput struct{}

// ListContainersOutput is the output for the container listing endpoint.
type ListContainersOutput struct {
	Body struct {
		Containers []media.Container `json:"containers"`
	}
}

// ListContainers returns the distinct container formats in the catalog.
func (h *VideoHandler) ListContainers(ctx context.Context, input *ListContainersInput) (*ListContainersOutput, error) {
	out := &ListContainersOutput{}
	out.Body.Containers = h.catalog.ListContainers()
	return out, nil
}
