package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/runstore"
)

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes an error response with the given status code and message
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]any{
		"error":  message,
		"status": "error",
	})
}

// parseLimit extracts the limit query parameter, returning def if absent or invalid
func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleReady reports ready once a model is loaded
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.Model() == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "error": "no model loaded"})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handlePredict classifies one questionnaire
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	svc := s.Model()
	if svc == nil {
		s.metrics.PredictionFailed("no_model")
		writeErrorResponse(w, http.StatusServiceUnavailable, "no model loaded")
		return
	}

	var req models.PredictionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		reason := "bad_request"
		if errors.Is(err, models.ErrSchemaMismatch) {
			reason = "schema_mismatch"
		}
		s.metrics.PredictionFailed(reason)
		writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		s.metrics.PredictionFailed("schema_mismatch")
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	pred, err := svc.Predict(*req.Record)
	if err != nil {
		if errors.Is(err, models.ErrSchemaMismatch) {
			s.metrics.PredictionFailed("schema_mismatch")
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.metrics.PredictionFailed("internal")
		s.log.Errorw("Prediction failed", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "prediction failed")
		return
	}

	s.metrics.ObservePrediction(pred.Label, time.Since(start))
	writeJSONResponse(w, http.StatusOK, pred)
}

// handleGetModel describes the loaded bundle
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	svc := s.Model()
	if svc == nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "no model loaded")
		return
	}
	b := svc.Bundle()
	body := map[string]any{
		"run_id":         b.RunID,
		"format_version": b.FormatVersion,
		"created_at":     b.CreatedAt,
		"schema":         b.Schema,
		"classes":        b.Classes,
		"balancer":       b.Balancer,
		"classifier":     b.Forest.Info(),
		"top_features":   b.Forest.TopFeatures(10),
	}
	if s.runs != nil {
		latest, err := s.runs.LatestSuccessful(r.Context())
		switch {
		case err == nil:
			body["latest_successful_run"] = latest
			body["is_latest"] = latest.ID == b.RunID
		case !errors.Is(err, runstore.ErrRunNotFound):
			s.log.Warnw("Failed to look up latest successful run", "error", err)
		}
	}
	writeJSONResponse(w, http.StatusOK, body)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeErrorResponse(w, http.StatusNotFound, "run registry disabled")
		return
	}
	runs, err := s.runs.ListRuns(r.Context(), parseLimit(r, 20))
	if err != nil {
		s.log.Errorw("Failed to list runs", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeErrorResponse(w, http.StatusNotFound, "run registry disabled")
		return
	}
	run, err := s.runs.GetRun(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, runstore.ErrRunNotFound) {
		writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.Errorw("Failed to get run", "error", err)
		writeErrorResponse(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSONResponse(w, http.StatusOK, run)
}

func (s *Server) handleListRefreshJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeErrorResponse(w, http.StatusNotFound, "scheduler disabled")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"jobs": s.scheduler.List()})
}

// handleRunRefreshJob triggers a refresh job immediately
func (s *Server) handleRunRefreshJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeErrorResponse(w, http.StatusNotFound, "scheduler disabled")
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := s.scheduler.Get(id); err != nil {
		writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	exec, err := s.scheduler.RunNow(r.Context(), id)
	if exec == nil {
		writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
	}
	writeJSONResponse(w, status, exec)
}
