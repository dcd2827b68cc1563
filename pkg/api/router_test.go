package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/facade"
	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/types"
)

type fakeScheduler struct{}

func (fakeScheduler) Submit(string) error   { return nil }
func (fakeScheduler) Terminate(string) error { return nil }
func (fakeScheduler) Statistics() scheduler.Stats {
	return scheduler.Stats{QueueLength: 0, Running: 0}
}

const wellFormedZApp = `{
	"name": "wordcount",
	"services": [
		{
			"name": "master",
			"image": "zoe/spark-master:2.4",
			"essential": true,
			"resources": {"memory_min": 1024, "cores_min": 1}
		}
	]
}`

func newTestServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   "manager-1",
		BindAddr: "127.0.0.1:17080",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Shutdown() })
	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 5*time.Second, 10*time.Millisecond)

	adminHash, err := HashPassword("adminpass")
	require.NoError(t, err)
	require.NoError(t, mgr.CreateUser(&types.User{
		ID:           "admin-1",
		Name:         "admin",
		Role:         types.RoleAdmin,
		PasswordHash: adminHash,
	}))

	userHash, err := HashPassword("userpass")
	require.NoError(t, err)
	require.NoError(t, mgr.CreateUser(&types.User{
		ID:           "user-1",
		Name:         "alice",
		Role:         types.RoleUser,
		PasswordHash: userHash,
	}))

	f := facade.New(mgr, fakeScheduler{}, facade.Config{ServiceLogsBasePath: t.TempDir(), DeploymentName: "zoe-test"})
	return NewServer(f, mgr, Config{SessionSigningKey: "test-signing-key"}), mgr
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginSetsSessionCookie(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(loginRequest{Username: "admin", Password: "adminpass"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	uid, role, ok := s.sessions.verify(cookies[0].Value)
	require.True(t, ok)
	assert.Equal(t, "admin-1", uid)
	assert.Equal(t, "admin", role)
}

func TestExecutionLifecycleOverREST(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(executionStartRequest{Name: "wc1", Application: json.RawMessage(wellFormedZApp)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/execution", bytes.NewReader(body))
	req.SetBasicAuth("alice", "userpass")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var started executionStartResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&started))
	require.NotNil(t, started.Execution)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/execution/"+started.Execution.ID, nil)
	req.SetBasicAuth("alice", "userpass")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/execution/"+started.Execution.ID, nil)
	req.SetBasicAuth("admin", "adminpass")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "admin can see any execution")

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/execution/"+started.Execution.ID, nil)
	req.SetBasicAuth("alice", "userpass")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code, "active execution is terminated, not deleted")
}

func TestExecutionRejectsMissingCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/execution", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserListRequiresAdminOverREST(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	req.SetBasicAuth("alice", "userpass")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	req.SetBasicAuth("admin", "adminpass")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflightReturns204(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/execution", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSWildcardOriginDropsAllowCredentials(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/execution", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSConfiguredOriginKeepsAllowCredentials(t *testing.T) {
	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   "manager-1",
		BindAddr: "127.0.0.1:17081",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Shutdown() })
	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 5*time.Second, 10*time.Millisecond)

	f := facade.New(mgr, fakeScheduler{}, facade.Config{ServiceLogsBasePath: t.TempDir(), DeploymentName: "zoe-test"})
	s := NewServer(f, mgr, Config{
		SessionSigningKey:  "test-signing-key",
		CORSAllowedOrigins: []string{"https://app.example.com"},
	})
	router := s.Router()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/execution", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestClusterJoinRejectsInvalidToken(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(clusterJoinRequest{NodeID: "node-2", BindAddr: "127.0.0.1:18080", Token: "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/cluster/join", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndReadyRoutesMounted(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
