package manager

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

func newTestFSM(t *testing.T) (*ZoeFSM, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewZoeFSM(store), store
}

func applyCmd(t *testing.T, fsm *ZoeFSM, op string, data interface{}) interface{} {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	cmdData, err := json.Marshal(Command{Op: op, Data: raw})
	require.NoError(t, err)
	return fsm.Apply(&raft.Log{Data: cmdData})
}

func TestFSMApplyCreateExecutionAndService(t *testing.T) {
	fsm, store := newTestFSM(t)

	execution := &types.Execution{ID: "e1", UserID: "u1", Status: types.ExecStatusSubmitted}
	result := applyCmd(t, fsm, "create_execution", execution)
	assert.Nil(t, result)

	got, err := store.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusSubmitted, got.Status)

	result = applyCmd(t, fsm, "set_execution_status", statusChange{ID: "e1", Status: types.ExecStatusScheduled})
	assert.Nil(t, result)

	got, err = store.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusScheduled, got.Status)

	service := &types.Service{ID: "s1", ExecutionID: "e1", Name: "web"}
	result = applyCmd(t, fsm, "create_service", service)
	assert.Nil(t, result)

	svcs, err := store.ListServicesByExecution("e1")
	require.NoError(t, err)
	require.Len(t, svcs, 1)
	assert.Equal(t, "web", svcs[0].Name)
}

func TestFSMApplyUnknownCommand(t *testing.T) {
	fsm, _ := newTestFSM(t)
	result := applyCmd(t, fsm, "not_a_real_op", map[string]string{})
	require.NotNil(t, result)
	_, ok := result.(error)
	assert.True(t, ok)
}

// fakeSnapshotSink adapts an io.WriteCloser to raft.SnapshotSink for tests
// that exercise Persist/Restore without a real Raft snapshot store.
type fakeSnapshotSink struct {
	io.WriteCloser
}

func (s *fakeSnapshotSink) ID() string    { return "test-snapshot" }
func (s *fakeSnapshotSink) Cancel() error { return nil }

func TestFSMSnapshotRestore(t *testing.T) {
	fsm, store := newTestFSM(t)

	require.NoError(t, store.CreateUser(&types.User{ID: "u1", Name: "ada", Role: types.RoleUser}))
	require.NoError(t, store.CreateExecution(&types.Execution{ID: "e1", UserID: "u1", Status: types.ExecStatusRunning}))
	require.NoError(t, store.CreateService(&types.Service{ID: "s1", ExecutionID: "e1", Name: "web"}))
	require.NoError(t, store.CreatePort(&types.Port{ID: "p1", ServiceID: "s1", InternalName: "80/tcp"}))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	freshStore, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { freshStore.Close() })
	freshFSM := NewZoeFSM(freshStore)

	pr, pw := io.Pipe()
	go func() {
		_ = snap.Persist(&fakeSnapshotSink{WriteCloser: pw})
	}()
	require.NoError(t, freshFSM.Restore(pr))

	restored, err := freshStore.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecStatusRunning, restored.Status)

	restoredSvcs, err := freshStore.ListServicesByExecution("e1")
	require.NoError(t, err)
	assert.Len(t, restoredSvcs, 1)

	restoredPorts, err := freshStore.ListPortsByService("s1")
	require.NoError(t, err)
	assert.Len(t, restoredPorts, 1)
}
