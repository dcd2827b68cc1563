package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zoe-analytics/zoe/pkg/manager"
)

// healthServer backs the plain liveness/readiness endpoints mounted
// directly on the chi router by Router(), outside the /api/<version>
// prefix and its authentication requirement.
type healthServer struct {
	manager *manager.Manager
}

func newHealthServer(mgr *manager.Manager) *healthServer {
	return &healthServer{manager: mgr}
}

// HealthResponse is the /health liveness response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready readiness response.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a liveness check: 200 if the process is alive, nothing
// more.
func (hs *healthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler checks Raft leadership and storage reachability before
// reporting ready.
func (hs *healthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.manager == nil {
		checks["raft"] = "not initialized"
		checks["storage"] = "not initialized"
		ready = false
		message = "manager not initialized"
	} else {
		if hs.manager.IsLeader() {
			checks["raft"] = "leader"
		} else if leaderAddr := hs.manager.LeaderAddr(); leaderAddr != "" {
			checks["raft"] = fmt.Sprintf("follower (leader: %s)", leaderAddr)
		} else {
			checks["raft"] = "no leader elected"
			ready = false
			message = "waiting for leader election"
		}

		if _, err := hs.manager.ListUsers(); err != nil {
			checks["storage"] = fmt.Sprintf("error: %v", err)
			ready = false
			if message == "" {
				message = "storage not accessible"
			}
		} else {
			checks["storage"] = "ok"
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks, Message: message})
}
