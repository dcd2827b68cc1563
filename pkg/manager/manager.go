package manager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/zoe-analytics/zoe/pkg/events"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// Manager owns the replicated execution state store: a Raft-backed log whose
// FSM applies committed commands to a local BoltDB store. Everything the API
// facade and scheduler need to read or mutate durable state goes through one
// of these two paths (Apply for writes, the store accessors for reads).
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft        *raft.Raft
	fsm         *ZoeFSM
	store       storage.Store
	tokenManager *TokenManager
	eventBroker *events.Broker
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewManager creates a new Manager instance, opening (or creating) its
// BoltDB-backed store under cfg.DataDir.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	fsm := NewZoeFSM(store)
	tokenManager := NewTokenManager()

	eventBroker := events.NewBroker()
	eventBroker.Start()

	m := &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		fsm:          fsm,
		store:        store,
		tokenManager: tokenManager,
		eventBroker:  eventBroker,
	}

	return m, nil
}

func raftConfig(nodeID string) *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(nodeID)

	// Tuned for LAN deployments rather than Raft's WAN-oriented defaults:
	// faster heartbeat/election detection trades some churn sensitivity for
	// a shorter failover window.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	return config
}

func (m *Manager) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log store: %w", err)
	}

	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig(m.nodeID), m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create raft: %w", err)
	}

	return r, transport, nil
}

// Bootstrap initializes a new single-node Raft cluster with this manager as
// its only member.
func (m *Manager) Bootstrap() error {
	r, transport, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(m.nodeID),
				Address: transport.LocalAddr(),
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	return nil
}

// joinRequest is the body this manager POSTs to the leader's join endpoint.
type joinRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
	Token    string `json:"token"`
}

// Join starts this manager's Raft instance and asks the leader at
// leaderAPIAddr (an http(s) base URL for its API facade) to add it as a
// voter, authenticated with a previously issued join token.
func (m *Manager) Join(leaderAPIAddr string, token string) error {
	r, _, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r

	reqBody, err := json.Marshal(joinRequest{NodeID: m.nodeID, BindAddr: m.bindAddr, Token: token})
	if err != nil {
		return fmt.Errorf("failed to encode join request: %w", err)
	}

	resp, err := http.Post(leaderAPIAddr+"/cluster/join", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to contact leader: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("leader rejected join request: status %d", resp.StatusCode)
	}

	log.Info(fmt.Sprintf("manager %s joined cluster via %s", m.nodeID, leaderAPIAddr))
	return nil
}

// AddVoter adds a new manager node to the Raft cluster. Called by the
// cluster-join HTTP handler once a presented join token validates.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}

	return nil
}

// RemoveServer removes a server from the Raft cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}

	return nil
}

// GetClusterServers returns information about all servers in the Raft cluster.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}

	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns Raft statistics for the metrics collectors.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	configFuture := m.raft.GetConfiguration()
	if err := configFuture.Error(); err == nil {
		stats["peers"] = uint64(len(configFuture.Configuration().Servers))
	} else {
		stats["peers"] = uint64(0)
	}

	return stats
}

// GetEventBroker returns the internal pub/sub broker shared by the event
// ingest handler and any internal subscribers (metrics, audit log).
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes an event to all subscribers.
func (m *Manager) PublishEvent(event *events.Event) {
	if m.eventBroker != nil {
		m.eventBroker.Publish(event)
	}
}

// Apply submits a command to the Raft cluster and waits for it to commit.
func (m *Manager) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %w", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

// --- User operations ---

func (m *Manager) CreateUser(user *types.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "create_user", Data: data})
}

func (m *Manager) UpdateUser(user *types.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "update_user", Data: data})
}

func (m *Manager) GetUser(id string) (*types.User, error) {
	return m.store.GetUser(id)
}

func (m *Manager) GetUserByName(name string) (*types.User, error) {
	return m.store.GetUserByName(name)
}

func (m *Manager) ListUsers() ([]*types.User, error) {
	return m.store.ListUsers()
}

// --- Execution operations ---

func (m *Manager) CreateExecution(execution *types.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "create_execution", Data: data})
}

func (m *Manager) SetExecutionStatus(id string, status types.ExecutionStatus) error {
	data, err := json.Marshal(statusChange{ID: id, Status: status})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "set_execution_status", Data: data})
}

func (m *Manager) DeleteExecution(id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "delete_execution", Data: data})
}

func (m *Manager) GetExecution(id string) (*types.Execution, error) {
	return m.store.GetExecution(id)
}

func (m *Manager) ListExecutions(filter storage.ExecutionFilter) ([]*types.Execution, error) {
	return m.store.ListExecutions(filter)
}

// --- Service operations ---

func (m *Manager) CreateService(service *types.Service) error {
	data, err := json.Marshal(service)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "create_service", Data: data})
}

func (m *Manager) UpdateService(service *types.Service) error {
	data, err := json.Marshal(service)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "update_service", Data: data})
}

func (m *Manager) DeleteService(id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "delete_service", Data: data})
}

func (m *Manager) GetService(id string) (*types.Service, error) {
	return m.store.GetService(id)
}

func (m *Manager) ListServicesByExecution(executionID string) ([]*types.Service, error) {
	return m.store.ListServicesByExecution(executionID)
}

// --- Port operations ---

func (m *Manager) CreatePort(port *types.Port) error {
	data, err := json.Marshal(port)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "create_port", Data: data})
}

func (m *Manager) UpdatePort(port *types.Port) error {
	data, err := json.Marshal(port)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "update_port", Data: data})
}

func (m *Manager) DeletePort(id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: "delete_port", Data: data})
}

func (m *Manager) GetPort(id string) (*types.Port, error) {
	return m.store.GetPort(id)
}

func (m *Manager) ListPortsByService(serviceID string) ([]*types.Port, error) {
	return m.store.ListPortsByService(serviceID)
}

// GenerateJoinToken generates a new join token for adding manager nodes.
func (m *Manager) GenerateJoinToken(role string) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return m.tokenManager.GenerateToken(role, 24*time.Hour)
}

// ValidateJoinToken validates a join token.
func (m *Manager) ValidateJoinToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// NodeID returns the manager's node ID.
func (m *Manager) NodeID() string {
	return m.nodeID
}

// Shutdown gracefully shuts down the manager.
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}

	return nil
}
