package handlers

import (
	"context"

	"github.com/maruel/eduapi/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version   string
	goVersion string
	revision  string
	dirty     bool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version, goVersion, revision string, dirty bool) *HealthHandler {
	return &HealthHandler{
		version:   version,
		goVersion: goVersion,
		revision:  revision,
		dirty:     dirty,
	}
}

// Health handles health check requests.
func (h *HealthHandler) Health(ctx context.Context, req *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: h.goVersion,
		Revision:  h.revision,
		Dirty:     h.dirty,
	}, nil
}
