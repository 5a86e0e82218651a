package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vodarr/internal/session"
)

// SessionHandler handles session API endpoints.
type SessionHandler struct {
	registry *session.Registry
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// Register registers the session routes with the API.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List sessions",
		Description: "Returns connected client sessions and their active streams",
		Tags:        []string{"Sessions"},
	}, h.List)
}

// ListSessionsInput is the input for the session listing endpoint.
type ListSessionsInput struct{}

// ListSessionsOutput is the output for the session listing endpoint.
type ListSessionsOutput struct {
	Body struct {
		Sessions []session.Info `json:"sessions"`
		Count    int            `json:"count"`
	}
}

// List returns all connected sessions.
func (h *SessionHandler) List(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	out := &ListSessionsOutput{}
	out.Body.Sessions = h.registry.Snapshot()
	out.Body.Count = len(out.Body.Sessions)
	return out, nil
}
