package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

type executionStartRequest struct {
	Name        string          `json:"name"`
	Application json.RawMessage `json:"application"`
}

type executionStartResponse struct {
	Execution *types.Execution `json:"execution"`
	Warning   string           `json:"warning,omitempty"`
}

func (s *Server) executionStart(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req executionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidDescription, "malformed request body"))
		return
	}

	execution, warning, err := s.facade.ExecutionStart(uid, role, req.Name, req.Application)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, executionStartResponse{Execution: execution, Warning: warning})
}

func (s *Server) executionByID(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	execution, err := s.facade.ExecutionByID(uid, role, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func (s *Server) executionList(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter := storage.ExecutionFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: types.ExecutionStatus(r.URL.Query().Get("status")),
	}
	executions, err := s.facade.ExecutionList(uid, role, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

// executionDelete implements "terminate if active, else delete if admin",
// the single DELETE verb's dual effect from the REST table.
func (s *Server) executionDelete(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	execution, err := s.facade.ExecutionByID(uid, role, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if execution.Status.Active() {
		if err := s.facade.ExecutionTerminate(uid, role, id); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if err := s.facade.ExecutionDelete(uid, role, id); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executionEndpoints(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	services, endpoints, err := s.facade.ExecutionEndpoints(uid, role, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services":  services,
		"endpoints": endpoints,
	})
}

func (s *Server) serviceByID(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	service, err := s.facade.ServiceByID(uid, role, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service)
}

func (s *Server) serviceLogs(w http.ResponseWriter, r *http.Request) {
	uid, role, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rc, err := s.facade.ServiceLogs(uid, role, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) statisticsScheduler(w http.ResponseWriter, r *http.Request) {
	if _, _, err := callerFrom(r); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.facade.StatisticsScheduler())
}
