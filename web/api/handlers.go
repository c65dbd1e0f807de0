package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chunkerbatch/chunkerbatch/internal/domain"
	"github.com/chunkerbatch/chunkerbatch/internal/history"
)

// StatusResponse is the API response for the live run status
type StatusResponse struct {
	Active    bool   `json:"active"`
	RunID     string `json:"run_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Total     int    `json:"total,omitempty"`
	Index     int    `json:"index,omitempty"`
	World     string `json:"world,omitempty"`
	Percent   int    `json:"percent,omitempty"`
	Succeeded int    `json:"succeeded,omitempty"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// RunResponse is the API response for one recorded run
type RunResponse struct {
	ID         string  `json:"id"`
	StartedAt  string  `json:"started_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Status     string  `json:"status"`
	Total      int     `json:"total"`
	Succeeded  int     `json:"succeeded"`
	Cancelled  bool    `json:"cancelled"`
	Format     string  `json:"format"`
	OutputRoot string  `json:"output_root,omitempty"`
}

// OutcomeResponse is the API response for one world's outcome
type OutcomeResponse struct {
	Position   int    `json:"position"`
	World      string `json:"world"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Warnings   int    `json:"warnings"`
	DurationMS int64  `json:"duration_ms"`
}

// RunDetailResponse is a run with its outcomes
type RunDetailResponse struct {
	Run      RunResponse       `json:"run"`
	Outcomes []OutcomeResponse `json:"outcomes"`
}

func runToResponse(r *history.Run) RunResponse {
	resp := RunResponse{
		ID:         r.ID,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		Status:     string(r.Status),
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Cancelled:  r.Cancelled,
		Format:     r.Format,
		OutputRoot: r.OutputRoot,
	}
	if r.FinishedAt != nil {
		t := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func outcomeToResponse(o *history.Outcome) OutcomeResponse {
	return OutcomeResponse{
		Position:   o.Position,
		World:      o.World,
		Success:    o.Success,
		Message:    o.Message,
		Warnings:   o.Warnings,
		DurationMS: o.Duration.Milliseconds(),
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var status StatusResponse
		if s.snapshot != nil {
			if snap := s.snapshot(); snap != nil {
				status = StatusResponse{
					Active:    snap.Status == domain.StatusRunning,
					RunID:     snap.RunID,
					Status:    string(snap.Status),
					Total:     snap.Total,
					Index:     snap.Index,
					World:     snap.World,
					Percent:   snap.Percent,
					Succeeded: snap.Result.Succeeded,
					Cancelled: snap.Result.Cancelled,
				}
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 20
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		runs, err := s.store.RecentRuns(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}

		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
		if runID == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.store.GetRun(runID)
		if err != nil {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}

		outcomes, err := s.store.RunOutcomes(runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		detail := RunDetailResponse{
			Run:      runToResponse(run),
			Outcomes: make([]OutcomeResponse, len(outcomes)),
		}
		for i, o := range outcomes {
			detail.Outcomes[i] = outcomeToResponse(o)
		}

		writeJSON(w, detail)
	}
}
