package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"adforge/internal/domain"
	"adforge/internal/infra"
	"adforge/internal/pipeline"
)

// Pipeline is the slice of the orchestrator the HTTP layer needs.
type Pipeline interface {
	Start(ctx context.Context, req pipeline.StartRequest) (pipeline.StartResult, error)
	Lookup(ctx context.Context, jobID, campaignID string) (pipeline.JobView, error)
	Approve(ctx context.Context, jobID string) (pipeline.JobView, error)
	Deliver(ctx context.Context, jobID string) (pipeline.JobView, error)
}

// ArchiveReader loads packaged delivery archives.
type ArchiveReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

type App struct {
	Pipeline Pipeline
	Archives ArchiveReader
	Logger   infra.Logger
}

func NewApp(p Pipeline, archives ArchiveReader, logger infra.Logger) *App {
	return &App{Pipeline: p, Archives: archives, Logger: logger}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorResponse{Error: errCode, Message: message})
}

// fail maps domain errors onto HTTP responses. Unknown errors are logged and
// reported without detail.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", "job was modified concurrently, retry")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
