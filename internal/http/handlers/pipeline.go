package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"adforge/internal/domain/jsoncfg"
	"adforge/internal/pipeline"
	"adforge/internal/storage"
)

type startRequest struct {
	CampaignID           string                       `json:"campaignId"`
	CustomerID           string                       `json:"customerId"`
	BusinessIntelligence jsoncfg.BusinessIntelligence `json:"businessIntelligence"`
	Priority             string                       `json:"priority"`
}

type startResponse struct {
	JobID  string   `json:"jobId"`
	Stages []string `json:"stages"`
}

// maxStartBody bounds the business intelligence payload.
const maxStartBody = 1 << 20

func (a *App) PipelineStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	res, err := a.Pipeline.Start(r.Context(), pipeline.StartRequest{
		CampaignID:           req.CampaignID,
		CustomerID:           req.CustomerID,
		BusinessIntelligence: req.BusinessIntelligence,
		Priority:             req.Priority,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, startResponse{JobID: res.JobID, Stages: res.Stages})
}

func (a *App) PipelineStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobID := strings.TrimSpace(q.Get("jobId"))
	campaignID := strings.TrimSpace(q.Get("campaignId"))
	if jobID == "" && campaignID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "jobId or campaignId required")
		return
	}
	view, err := a.Pipeline.Lookup(r.Context(), jobID, campaignID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) PipelineApprove(w http.ResponseWriter, r *http.Request) {
	view, err := a.Pipeline.Approve(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) PipelineDeliver(w http.ResponseWriter, r *http.Request) {
	view, err := a.Pipeline.Deliver(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) PipelineArchive(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	view, err := a.Pipeline.Lookup(r.Context(), jobID, "")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !view.CanDownload {
		a.error(w, http.StatusConflict, "not_downloadable", fmt.Sprintf("job is %s", view.Status))
		return
	}
	if view.ArchiveKey == "" || a.Archives == nil {
		a.error(w, http.StatusNotFound, "not_found", "archive not available")
		return
	}
	data, err := a.Archives.Read(r.Context(), view.ArchiveKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "archive not available")
			return
		}
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", view.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
