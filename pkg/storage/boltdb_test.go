package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUserCRUD(t *testing.T) {
	store := newTestStore(t)

	user := &types.User{ID: "u1", Name: "ada", Role: types.RoleUser}
	require.NoError(t, store.CreateUser(user))

	got, err := store.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Name)

	byName, err := store.GetUserByName("ada")
	require.NoError(t, err)
	assert.Equal(t, "u1", byName.ID)

	_, err = store.GetUserByName("nobody")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	got.Role = types.RoleAdmin
	require.NoError(t, store.UpdateUser(got))
	reloaded, err := store.GetUser("u1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, reloaded.Role)

	list, err := store.ListUsers()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestExecutionStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    types.ExecutionStatus
		to      types.ExecutionStatus
		wantErr bool
	}{
		{"submitted to scheduled", types.ExecStatusSubmitted, types.ExecStatusScheduled, false},
		{"scheduled to starting", types.ExecStatusScheduled, types.ExecStatusStarting, false},
		{"starting to image download", types.ExecStatusStarting, types.ExecStatusImageDownload, false},
		{"starting to running", types.ExecStatusStarting, types.ExecStatusRunning, false},
		{"image download to running", types.ExecStatusImageDownload, types.ExecStatusRunning, false},
		{"running to cleaning up", types.ExecStatusRunning, types.ExecStatusCleaningUp, false},
		{"cleaning up to terminated", types.ExecStatusCleaningUp, types.ExecStatusTerminated, false},
		{"any to error", types.ExecStatusRunning, types.ExecStatusError, false},
		{"submitted to running is illegal", types.ExecStatusSubmitted, types.ExecStatusRunning, true},
		{"terminated to running is illegal", types.ExecStatusTerminated, types.ExecStatusRunning, true},
		{"running to scheduled is illegal", types.ExecStatusRunning, types.ExecStatusScheduled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			exec := &types.Execution{ID: "e1", UserID: "u1", Status: tt.from}
			require.NoError(t, store.CreateExecution(exec))

			err := store.SetExecutionStatus("e1", tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.InvalidState))
			} else {
				require.NoError(t, err)
				got, gerr := store.GetExecution("e1")
				require.NoError(t, gerr)
				assert.Equal(t, tt.to, got.Status)
			}
		})
	}
}

func TestDeleteExecutionRequiresInactive(t *testing.T) {
	store := newTestStore(t)
	exec := &types.Execution{ID: "e1", UserID: "u1", Status: types.ExecStatusRunning}
	require.NoError(t, store.CreateExecution(exec))

	err := store.DeleteExecution("e1")
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	require.NoError(t, store.SetExecutionStatus("e1", types.ExecStatusError))
	require.NoError(t, store.DeleteExecution("e1"))

	_, err = store.GetExecution("e1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestDeleteExecutionCascadesServicesAndPorts(t *testing.T) {
	store := newTestStore(t)
	exec := &types.Execution{ID: "e1", UserID: "u1", Status: types.ExecStatusTerminated}
	require.NoError(t, store.CreateExecution(exec))

	svc := &types.Service{ID: "s1", ExecutionID: "e1", Name: "worker"}
	require.NoError(t, store.CreateService(svc))

	port := &types.Port{ID: "p1", ServiceID: "s1", InternalName: "8080/tcp"}
	require.NoError(t, store.CreatePort(port))

	require.NoError(t, store.DeleteExecution("e1"))

	_, err := store.GetService("s1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	_, err = store.GetPort("p1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestListExecutionsFilter(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateExecution(&types.Execution{ID: "e1", UserID: "u1", Status: types.ExecStatusRunning}))
	require.NoError(t, store.CreateExecution(&types.Execution{ID: "e2", UserID: "u2", Status: types.ExecStatusRunning}))
	require.NoError(t, store.CreateExecution(&types.Execution{ID: "e3", UserID: "u1", Status: types.ExecStatusSubmitted}))

	byUser, err := store.ListExecutions(ExecutionFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byStatus, err := store.ListExecutions(ExecutionFilter{Status: types.ExecStatusRunning})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	byBoth, err := store.ListExecutions(ExecutionFilter{UserID: "u1", Status: types.ExecStatusSubmitted})
	require.NoError(t, err)
	require.Len(t, byBoth, 1)
	assert.Equal(t, "e3", byBoth[0].ID)
}

func TestServiceAndPortCRUD(t *testing.T) {
	store := newTestStore(t)
	svc := &types.Service{ID: "s1", ExecutionID: "e1", Name: "web", Status: types.ServiceStatusInactive}
	require.NoError(t, store.CreateService(svc))

	svc.Status = types.ServiceStatusActive
	require.NoError(t, store.UpdateService(svc))

	got, err := store.GetService("s1")
	require.NoError(t, err)
	assert.Equal(t, types.ServiceStatusActive, got.Status)

	list, err := store.ListServicesByExecution("e1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteService("s1"))
	_, err = store.GetService("s1")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}
