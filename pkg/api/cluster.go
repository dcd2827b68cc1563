package api

import (
	"encoding/json"
	"net/http"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/log"
)

// clusterJoinRequest mirrors the unexported joinRequest shape pkg/manager's
// Join posts to a leader's /cluster/join: a node presenting a join token
// asks to be added as a Raft voter at its own bind address.
type clusterJoinRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
	Token    string `json:"token"`
}

func (s *Server) clusterJoin(w http.ResponseWriter, r *http.Request) {
	var req clusterJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidState, "malformed join request"))
		return
	}

	if _, err := s.manager.ValidateJoinToken(req.Token); err != nil {
		writeError(w, apperr.Wrap(apperr.Auth, err, "invalid join token"))
		return
	}

	if err := s.manager.AddVoter(req.NodeID, req.BindAddr); err != nil {
		log.Errorf("cluster join: add voter "+req.NodeID, err)
		writeError(w, apperr.Wrap(apperr.BackendUnavailable, err, "add voter"))
		return
	}

	// Manager.Join checks for exactly http.StatusOK from this endpoint.
	w.WriteHeader(http.StatusOK)
}
