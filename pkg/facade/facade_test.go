package facade

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/types"
)

type fakeScheduler struct {
	submitErr  error
	submitted  []string
	terminated []string
	stats      scheduler.Stats
}

func (f *fakeScheduler) Submit(executionID string) error {
	f.submitted = append(f.submitted, executionID)
	return f.submitErr
}

func (f *fakeScheduler) Terminate(executionID string) error {
	f.terminated = append(f.terminated, executionID)
	return nil
}

func (f *fakeScheduler) Statistics() scheduler.Stats {
	return f.stats
}

func newTestFacade(t *testing.T) (*Facade, *manager.Manager, *fakeScheduler) {
	t.Helper()

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   "manager-1",
		BindAddr: "127.0.0.1:17070",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Shutdown() })
	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 5*time.Second, 10*time.Millisecond)

	sched := &fakeScheduler{}
	f := New(mgr, sched, Config{ServiceLogsBasePath: t.TempDir(), DeploymentName: "zoe-test"})
	return f, mgr, sched
}

const wellFormedZApp = `{
	"name": "wordcount",
	"services": [
		{
			"name": "master",
			"image": "zoe/spark-master:2.4",
			"essential": true,
			"resources": {"memory_min": 1024, "cores_min": 1},
			"ports": [{"name": "web-ui", "port_number": 8080, "protocol": "tcp", "url_template": "http://{ip_port}/"}]
		}
	]
}`

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Kind
}

func TestExecutionStartPersistsAndSubmits(t *testing.T) {
	f, mgr, sched := newTestFacade(t)

	execution, warning, err := f.ExecutionStart("u1", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, types.ExecStatusSubmitted, execution.Status)
	assert.Len(t, execution.Services, 1)
	assert.Contains(t, sched.submitted, execution.ID)

	stored, err := mgr.GetExecution(execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "wc1", stored.Name)
}

func TestExecutionStartRejectsInvalidDescription(t *testing.T) {
	f, _, _ := newTestFacade(t)

	_, _, err := f.ExecutionStart("u1", "user", "bad", []byte(`{"name": "x", "services": []}`))
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidDescription, kindOf(t, err))
}

func TestExecutionStartEnforcesGuestQuota(t *testing.T) {
	f, _, _ := newTestFacade(t)

	_, _, err := f.ExecutionStart("guest1", "guest", "first", []byte(wellFormedZApp))
	require.NoError(t, err)

	_, _, err = f.ExecutionStart("guest1", "guest", "second", []byte(wellFormedZApp))
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidState, kindOf(t, err))
}

func TestExecutionStartSchedulerUnavailableStillPersists(t *testing.T) {
	f, mgr, sched := newTestFacade(t)
	sched.submitErr = errors.New("scheduler stopped")

	execution, warning, err := f.ExecutionStart("u1", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)
	assert.NotEmpty(t, warning)
	assert.Contains(t, warning, "master is unavailable")

	stored, err := mgr.GetExecution(execution.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusSubmitted, stored.Status)
}

func TestExecutionByIDEnforcesOwnership(t *testing.T) {
	f, _, _ := newTestFacade(t)

	execution, _, err := f.ExecutionStart("owner", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)

	_, err = f.ExecutionByID("owner", "user", execution.ID)
	require.NoError(t, err)

	_, err = f.ExecutionByID("someone-else", "user", execution.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, kindOf(t, err))

	_, err = f.ExecutionByID("someone-else", "admin", execution.ID)
	require.NoError(t, err)
}

func TestExecutionTerminateRejectsInactive(t *testing.T) {
	f, mgr, _ := newTestFacade(t)

	execution, _, err := f.ExecutionStart("u1", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)
	require.NoError(t, mgr.SetExecutionStatus(execution.ID, types.ExecStatusError))

	err = f.ExecutionTerminate("u1", "user", execution.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidState, kindOf(t, err))
}

func TestExecutionDeleteRequiresAdmin(t *testing.T) {
	f, mgr, _ := newTestFacade(t)

	execution, _, err := f.ExecutionStart("u1", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)
	require.NoError(t, mgr.SetExecutionStatus(execution.ID, types.ExecStatusError))

	err = f.ExecutionDelete("u1", "user", execution.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, kindOf(t, err))

	require.NoError(t, f.ExecutionDelete("u1", "admin", execution.ID))
	_, err = mgr.GetExecution(execution.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestServiceLogsNotFoundThenReadable(t *testing.T) {
	f, _, _ := newTestFacade(t)

	execution, _, err := f.ExecutionStart("u1", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)
	service := execution.Services[0]

	_, err = f.ServiceLogs("u1", "user", service.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, kindOf(t, err))

	logDir := filepath.Join(f.cfg.ServiceLogsBasePath, f.cfg.DeploymentName, execution.ID)
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logDir, service.Name+".txt"), []byte("hello\n"), 0o644))

	rc, err := f.ServiceLogs("u1", "user", service.ID)
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestExecutionEndpointsResolvesURL(t *testing.T) {
	f, mgr, _ := newTestFacade(t)

	execution, _, err := f.ExecutionStart("u1", "user", "wc1", []byte(wellFormedZApp))
	require.NoError(t, err)
	service := execution.Services[0]

	require.NoError(t, mgr.CreatePort(&types.Port{
		ID:           "p1",
		ServiceID:    service.ID,
		InternalName: "8080/tcp",
		ExternalIP:   "10.0.0.5",
		ExternalPort: 30080,
	}))

	services, endpoints, err := f.ExecutionEndpoints("u1", "user", execution.ID)
	require.NoError(t, err)
	assert.Len(t, services, 1)
	require.Len(t, endpoints, 1)
	assert.Equal(t, "web-ui", endpoints[0].Name)
	assert.Equal(t, "http://10.0.0.5:30080/", endpoints[0].URL)
}

func TestUserListRequiresAdmin(t *testing.T) {
	f, _, _ := newTestFacade(t)

	_, err := f.UserList("user")
	require.Error(t, err)
	assert.Equal(t, apperr.Forbidden, kindOf(t, err))

	_, err = f.UserList("admin")
	require.NoError(t, err)
}
