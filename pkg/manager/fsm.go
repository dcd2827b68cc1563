package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// ZoeFSM implements the Raft finite state machine over the execution state
// store: it applies committed log entries to the durable store and handles
// snapshot/restore for log compaction.
type ZoeFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewZoeFSM creates a new FSM instance backed by store.
func NewZoeFSM(store storage.Store) *ZoeFSM {
	return &ZoeFSM{
		store: store,
	}
}

// Command represents a state change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// statusChange is the payload of the set_execution_status command.
type statusChange struct {
	ID     string              `json:"id"`
	Status types.ExecutionStatus `json:"status"`
}

// Apply applies a Raft log entry to the FSM. Called by Raft once the entry
// is committed to a quorum of the log.
func (f *ZoeFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	// User operations
	case "create_user":
		var user types.User
		if err := json.Unmarshal(cmd.Data, &user); err != nil {
			return err
		}
		return f.store.CreateUser(&user)

	case "update_user":
		var user types.User
		if err := json.Unmarshal(cmd.Data, &user); err != nil {
			return err
		}
		return f.store.UpdateUser(&user)

	// Execution operations
	case "create_execution":
		var execution types.Execution
		if err := json.Unmarshal(cmd.Data, &execution); err != nil {
			return err
		}
		return f.store.CreateExecution(&execution)

	case "set_execution_status":
		var change statusChange
		if err := json.Unmarshal(cmd.Data, &change); err != nil {
			return err
		}
		return f.store.SetExecutionStatus(change.ID, change.Status)

	case "delete_execution":
		var executionID string
		if err := json.Unmarshal(cmd.Data, &executionID); err != nil {
			return err
		}
		return f.store.DeleteExecution(executionID)

	// Service operations
	case "create_service":
		var service types.Service
		if err := json.Unmarshal(cmd.Data, &service); err != nil {
			return err
		}
		return f.store.CreateService(&service)

	case "update_service":
		var service types.Service
		if err := json.Unmarshal(cmd.Data, &service); err != nil {
			return err
		}
		return f.store.UpdateService(&service)

	case "delete_service":
		var serviceID string
		if err := json.Unmarshal(cmd.Data, &serviceID); err != nil {
			return err
		}
		return f.store.DeleteService(serviceID)

	// Port operations
	case "create_port":
		var port types.Port
		if err := json.Unmarshal(cmd.Data, &port); err != nil {
			return err
		}
		return f.store.CreatePort(&port)

	case "update_port":
		var port types.Port
		if err := json.Unmarshal(cmd.Data, &port); err != nil {
			return err
		}
		return f.store.UpdatePort(&port)

	case "delete_port":
		var portID string
		if err := json.Unmarshal(cmd.Data, &portID); err != nil {
			return err
		}
		return f.store.DeletePort(portID)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM. Called periodically
// by Raft to compact the log.
func (f *ZoeFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	users, err := f.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %v", err)
	}

	executions, err := f.store.ListExecutions(storage.ExecutionFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %v", err)
	}

	var services []*types.Service
	var ports []*types.Port
	for _, execution := range executions {
		svcs, err := f.store.ListServicesByExecution(execution.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list services: %v", err)
		}
		services = append(services, svcs...)
		for _, svc := range svcs {
			svcPorts, err := f.store.ListPortsByService(svc.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list ports: %v", err)
			}
			ports = append(ports, svcPorts...)
		}
	}

	snapshot := &ZoeSnapshot{
		Users:      users,
		Executions: executions,
		Services:   services,
		Ports:      ports,
	}

	return snapshot, nil
}

// Restore restores the FSM from a snapshot. Called when a manager restarts
// or a new one joins the cluster and needs to catch up.
func (f *ZoeFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot ZoeSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range snapshot.Users {
		if err := f.store.CreateUser(user); err != nil {
			return fmt.Errorf("failed to restore user: %v", err)
		}
	}

	for _, execution := range snapshot.Executions {
		if err := f.store.CreateExecution(execution); err != nil {
			return fmt.Errorf("failed to restore execution: %v", err)
		}
	}

	for _, service := range snapshot.Services {
		if err := f.store.CreateService(service); err != nil {
			return fmt.Errorf("failed to restore service: %v", err)
		}
	}

	for _, port := range snapshot.Ports {
		if err := f.store.CreatePort(port); err != nil {
			return fmt.Errorf("failed to restore port: %v", err)
		}
	}

	return nil
}

// ZoeSnapshot represents a point-in-time snapshot of control-plane state.
type ZoeSnapshot struct {
	Users      []*types.User
	Executions []*types.Execution
	Services   []*types.Service
	Ports      []*types.Port
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *ZoeSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources.
func (s *ZoeSnapshot) Release() {}
