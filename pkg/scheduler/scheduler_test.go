package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/runtime"
	"github.com/zoe-analytics/zoe/pkg/stats"
	"github.com/zoe-analytics/zoe/pkg/types"
)

func newTestScheduler(t *testing.T) (*Scheduler, *manager.Manager, *runtime.FakeDriver) {
	t.Helper()

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   "manager-1",
		BindAddr: "127.0.0.1:17060",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Shutdown() })
	require.NoError(t, mgr.Bootstrap())
	require.Eventually(t, mgr.IsLeader, 5*time.Second, 10*time.Millisecond)

	driver := runtime.NewFakeDriver("zoe-test")
	t.Cleanup(func() { driver.Close() })

	provider := stats.NewProvider(driver, time.Hour)
	provider.Start()
	t.Cleanup(provider.Stop)
	require.Eventually(t, func() bool {
		_, err := provider.Snapshot()
		return err == nil
	}, time.Second, 5*time.Millisecond)

	sched := New(mgr, driver, provider, time.Hour)
	sched.Start()
	t.Cleanup(sched.Stop)

	return sched, mgr, driver
}

func submittedExecution(t *testing.T, mgr *manager.Manager, id string, services ...*types.Service) *types.Execution {
	t.Helper()
	execution := &types.Execution{ID: id, UserID: "u1", Name: id, Status: types.ExecStatusSubmitted}
	require.NoError(t, mgr.CreateExecution(execution))
	for _, s := range services {
		s.ExecutionID = id
		require.NoError(t, mgr.CreateService(s))
	}
	return execution
}

func TestSchedulerSubmitPlacesEssentialService(t *testing.T) {
	sched, mgr, _ := newTestScheduler(t)

	service := &types.Service{ID: "s1", Essential: true, Resources: types.ResourceMin{Memory: 1}, Image: "fake/image:latest"}
	submittedExecution(t, mgr, "e1", service)

	require.NoError(t, sched.Submit("e1"))

	updated, err := mgr.GetService("s1")
	require.NoError(t, err)
	assert.Equal(t, types.ServiceStatusActive, updated.Status)
	assert.NotEmpty(t, updated.ContainerID)

	execution, err := mgr.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusRunning, execution.Status)
}

func TestSchedulerTerminateDestroysContainers(t *testing.T) {
	sched, mgr, driver := newTestScheduler(t)

	service := &types.Service{ID: "s1", Essential: true, Resources: types.ResourceMin{Memory: 1}, Image: "fake/image:latest"}
	submittedExecution(t, mgr, "e1", service)
	require.NoError(t, sched.Submit("e1"))

	require.NoError(t, sched.Terminate("e1"))

	execution, err := mgr.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusTerminated, execution.Status)

	updated, err := mgr.GetService("s1")
	require.NoError(t, err)
	assert.Empty(t, updated.ContainerID)
	assert.Equal(t, types.ServiceStatusInactive, updated.Status)

	_ = driver
}

func TestSchedulerOnContainerDiedMonitorTerminatesExecution(t *testing.T) {
	sched, mgr, _ := newTestScheduler(t)

	monitor := &types.Service{ID: "s1", Essential: true, Monitor: true, Resources: types.ResourceMin{Memory: 1}, Image: "fake/image:latest"}
	submittedExecution(t, mgr, "e1", monitor)
	require.NoError(t, sched.Submit("e1"))

	placed, err := mgr.GetService("s1")
	require.NoError(t, err)
	require.NotEmpty(t, placed.ContainerID)

	require.NoError(t, sched.OnContainerDied(placed.ContainerID))

	execution, err := mgr.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusTerminated, execution.Status)
}

func TestSchedulerOnContainerDiedNonMonitorMarksDie(t *testing.T) {
	sched, mgr, _ := newTestScheduler(t)

	service := &types.Service{ID: "s1", Essential: true, Monitor: false, Resources: types.ResourceMin{Memory: 1}, Image: "fake/image:latest"}
	submittedExecution(t, mgr, "e1", service)
	require.NoError(t, sched.Submit("e1"))

	placed, err := mgr.GetService("s1")
	require.NoError(t, err)

	require.NoError(t, sched.OnContainerDied(placed.ContainerID))

	updated, err := mgr.GetService("s1")
	require.NoError(t, err)
	assert.Equal(t, types.BackendStatusDie, updated.BackendStatus)

	execution, err := mgr.GetExecution("e1")
	require.NoError(t, err)
	assert.True(t, execution.Status.Active())
}

func TestSchedulerEssentialServiceDoesNotFitStaysQueued(t *testing.T) {
	sched, mgr, _ := newTestScheduler(t)

	hugeService := &types.Service{ID: "s1", Essential: true, Resources: types.ResourceMin{Memory: 1 << 62}, Image: "fake/image:latest"}
	submittedExecution(t, mgr, "e1", hugeService)

	require.NoError(t, sched.Submit("e1"))

	updated, err := mgr.GetService("s1")
	require.NoError(t, err)
	assert.Empty(t, updated.ContainerID)

	execution, err := mgr.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusScheduled, execution.Status)
}

func TestSchedulerStatisticsReportsQueueAndPlacement(t *testing.T) {
	sched, mgr, _ := newTestScheduler(t)

	service := &types.Service{ID: "s1", Essential: true, Resources: types.ResourceMin{Memory: 1}, Image: "fake/image:latest"}
	submittedExecution(t, mgr, "e1", service)
	require.NoError(t, sched.Submit("e1"))

	st := sched.Statistics()
	assert.Equal(t, 0, st.QueueLength)
	assert.Equal(t, 1, st.Running)
	assert.Contains(t, st.ServiceStats, "s1")
}
