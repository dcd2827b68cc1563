package api

import (
	"encoding/json"
	"net/http"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/log"
)

// errorMessage is the JSON shape every non-2xx response body takes, per
// the propagation policy: the facade classifies, this layer maps kind to
// status and emits {message: <string>}.
type errorMessage struct {
	Message string `json:"message"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.InvalidDescription: http.StatusBadRequest,
	apperr.InvalidState:       http.StatusBadRequest,
	apperr.NotFound:           http.StatusNotFound,
	apperr.Auth:               http.StatusUnauthorized,
	apperr.Forbidden:          http.StatusForbidden,
	apperr.BackendUnavailable: http.StatusServiceUnavailable,
	apperr.Internal:           http.StatusInternalServerError,
}

func statusForErr(err error) int {
	status, ok := kindStatus[apperr.KindOf(err)]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForErr(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("api request failed", err)
	}
	writeJSON(w, status, errorMessage{Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
