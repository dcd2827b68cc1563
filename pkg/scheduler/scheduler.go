// Package scheduler is the single serial actor that owns all placement
// state: a FIFO ready queue of executions awaiting essential placement,
// the set of running executions, and the last committed service→node
// placement. Every operation (submit, terminate, a container dying, or
// the periodic tick) is funneled through one goroutine's command channel,
// so placement passes never interleave.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/metrics"
	"github.com/zoe-analytics/zoe/pkg/runtime"
	"github.com/zoe-analytics/zoe/pkg/simulator"
	"github.com/zoe-analytics/zoe/pkg/stats"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// DefaultTickInterval drives a scheduling pass even absent external
// triggers, matching a ticker-driven background loop.
const DefaultTickInterval = 5 * time.Second

type commandKind int

const (
	cmdSubmit commandKind = iota
	cmdTerminate
	cmdContainerDied
	cmdTick
)

type command struct {
	kind        commandKind
	executionID string
	containerID string
	result      chan error
}

// NodeStat is one online node's allocatable state, as reported by
// statistics().
type NodeStat struct {
	Name           string
	FreeMemory     int64
	FreeCores      float64
	ContainerCount int
}

// Stats is the scheduler's point-in-time view of its own state, returned
// by Statistics().
type Stats struct {
	Nodes        []NodeStat
	ServiceStats map[string]string // service id -> node name
	QueueLength  int
	Running      int
}

// Scheduler is the single-actor placement engine. All exported methods
// are safe for concurrent use: they enqueue a command and block for its
// result, so the actual state mutation always happens on one goroutine.
type Scheduler struct {
	manager       *manager.Manager
	driver        runtime.Driver
	statsProvider *stats.Provider
	tickInterval  time.Duration

	cmdCh  chan command
	stopCh chan struct{}

	readyQueue []string
	running    []string
	lastPlaced map[string]string // service id -> node name, last committed

	statsMu    sync.RWMutex
	lastStats  Stats
}

// New creates a scheduler. tickInterval of zero uses DefaultTickInterval.
func New(mgr *manager.Manager, driver runtime.Driver, statsProvider *stats.Provider, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Scheduler{
		manager:       mgr,
		driver:        driver,
		statsProvider: statsProvider,
		tickInterval:  tickInterval,
		cmdCh:         make(chan command),
		stopCh:        make(chan struct{}),
		lastPlaced:    make(map[string]string),
	}
}

// Start begins the actor loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop ends the actor loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-s.cmdCh:
			cmd.result <- s.handle(cmd)
		case <-ticker.C:
			s.pass()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) handle(cmd command) error {
	switch cmd.kind {
	case cmdSubmit:
		s.readyQueue = append(s.readyQueue, cmd.executionID)
		if err := s.manager.SetExecutionStatus(cmd.executionID, types.ExecStatusScheduled); err != nil {
			return err
		}
		s.pass()
		return nil
	case cmdTerminate:
		return s.terminate(cmd.executionID)
	case cmdContainerDied:
		return s.onContainerDied(cmd.containerID)
	default:
		s.pass()
		return nil
	}
}

func (s *Scheduler) send(kind commandKind, executionID, containerID string) error {
	result := make(chan error, 1)
	select {
	case s.cmdCh <- command{kind: kind, executionID: executionID, containerID: containerID, result: result}:
	case <-s.stopCh:
		return fmt.Errorf("scheduler stopped")
	}
	return <-result
}

// Submit enqueues an execution for placement and transitions it to
// scheduled.
func (s *Scheduler) Submit(executionID string) error {
	return s.send(cmdSubmit, executionID, "")
}

// Terminate marks an execution cleaning-up, deallocates both placement
// tiers, commands the backend to destroy its containers, and transitions
// it to terminated.
func (s *Scheduler) Terminate(executionID string) error {
	return s.send(cmdTerminate, executionID, "")
}

// OnContainerDied locates the owning service for containerID; if it is a
// monitor service the whole execution is terminated, else the service's
// backend status is marked die so the next pass may reschedule it.
func (s *Scheduler) OnContainerDied(containerID string) error {
	return s.send(cmdContainerDied, "", containerID)
}

func (s *Scheduler) terminate(executionID string) error {
	execution, err := s.fetchExecution(executionID)
	if err != nil {
		return err
	}

	if err := s.manager.SetExecutionStatus(executionID, types.ExecStatusCleaningUp); err != nil {
		return err
	}

	ctx := context.Background()
	for _, service := range execution.Services {
		if service.ContainerID == "" {
			continue
		}
		if err := s.driver.DestroyContainer(ctx, service.ContainerID); err != nil {
			log.Error("destroy container failed during termination: " + err.Error())
		}
		service.Status = types.ServiceStatusInactive
		service.NodeName = ""
		service.ContainerID = ""
		if err := s.manager.UpdateService(service); err != nil {
			return err
		}
		delete(s.lastPlaced, service.ID)
	}

	s.removeFromSlice(&s.readyQueue, executionID)
	s.removeFromSlice(&s.running, executionID)

	return s.manager.SetExecutionStatus(executionID, types.ExecStatusTerminated)
}

func (s *Scheduler) onContainerDied(containerID string) error {
	service, execution, err := s.findServiceByContainer(containerID)
	if err != nil {
		// Delivery failure because the container is unknown to the store
		// is benign: log at debug and do not retry.
		log.Debug("on_container_died: unknown container " + containerID)
		return nil
	}

	metrics.ContainerDeathsTotal.Inc()

	if service.Monitor {
		return s.terminate(execution.ID)
	}

	service.BackendStatus = types.BackendStatusDie
	return s.manager.UpdateService(service)
}

// pass runs one scheduling pass: a fresh simulated platform from the
// latest snapshot, replay of the currently committed allocation, FIFO
// essential placement of queued executions, opportunistic elastic
// placement for running executions, and a diff-driven commit to the
// backend driver.
func (s *Scheduler) pass() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingPassDuration)

	snapshot, err := s.statsProvider.Snapshot()
	if err != nil {
		log.Debug("scheduling pass skipped: " + err.Error())
		return
	}

	platform := simulator.NewPlatform(snapshot)

	runningExecutions := make([]*types.Execution, 0, len(s.running))
	for _, id := range s.running {
		execution, err := s.fetchExecution(id)
		if err != nil {
			continue
		}
		runningExecutions = append(runningExecutions, execution)
		for _, service := range execution.Services {
			if service.NodeName != "" {
				platform.ReplayPlacement(service.NodeName, service)
			}
		}
	}

	var stillQueued []string
	for _, id := range s.readyQueue {
		execution, err := s.fetchExecution(id)
		if err != nil {
			continue
		}
		if platform.AllocateEssential(execution) {
			if err := s.manager.SetExecutionStatus(id, types.ExecStatusStarting); err != nil {
				log.Error("transition to starting failed: " + err.Error())
				stillQueued = append(stillQueued, id)
				continue
			}
			execution.Status = types.ExecStatusStarting
			s.running = append(s.running, id)
			runningExecutions = append(runningExecutions, execution)
		} else {
			metrics.ServicesUnschedulableTotal.Inc()
			stillQueued = append(stillQueued, id)
		}
	}
	s.readyQueue = stillQueued

	for _, execution := range runningExecutions {
		platform.AllocateElastic(execution)
	}

	newPlacement := platform.GetServiceAllocation()
	s.commit(runningExecutions, newPlacement)
	s.advanceStarting(runningExecutions)
	s.recordStats(platform, newPlacement)
}

// advanceStarting promotes executions whose essential services have all
// been placed and started from "starting" to "running" - commit() is what
// gives each service its active status and container id, so this always
// runs after it.
func (s *Scheduler) advanceStarting(executions []*types.Execution) {
	for _, execution := range executions {
		if execution.Status != types.ExecStatusStarting {
			continue
		}
		if !allEssentialActive(execution) {
			continue
		}
		if err := s.manager.SetExecutionStatus(execution.ID, types.ExecStatusRunning); err != nil {
			log.Error("transition to running failed: " + err.Error())
		}
	}
}

// allEssentialActive reports whether every essential service of an
// execution is active with a live container.
func allEssentialActive(execution *types.Execution) bool {
	essential := execution.EssentialServices()
	if len(essential) == 0 {
		return false
	}
	for _, service := range essential {
		if service.Status != types.ServiceStatusActive || service.ContainerID == "" {
			return false
		}
	}
	return true
}

// commit diffs the simulator's final placement against the last
// committed one and drives the backend driver for every add/remove.
func (s *Scheduler) commit(executions []*types.Execution, newPlacement map[string]string) {
	ctx := context.Background()
	servicesByID := make(map[string]*types.Service)
	for _, execution := range executions {
		for _, service := range execution.Services {
			servicesByID[service.ID] = service
		}
	}

	for serviceID, oldNode := range s.lastPlaced {
		if newNode, ok := newPlacement[serviceID]; ok && newNode == oldNode {
			continue
		}
		service, ok := servicesByID[serviceID]
		if !ok || service.ContainerID == "" {
			continue
		}
		if err := s.driver.DestroyContainer(ctx, service.ContainerID); err != nil {
			log.Error("destroy container failed, will retry next pass: " + err.Error())
			continue
		}
		service.NodeName = ""
		service.ContainerID = ""
		_ = s.manager.UpdateService(service)
	}

	for serviceID, node := range newPlacement {
		if s.lastPlaced[serviceID] == node {
			continue
		}
		service, ok := servicesByID[serviceID]
		if !ok {
			continue
		}
		containerID, ports, err := s.driver.CreateContainer(ctx, service, node)
		if err != nil {
			log.Error("create container failed, service remains unplaced: " + err.Error())
			continue
		}
		service.NodeName = node
		service.ContainerID = containerID
		service.Status = types.ServiceStatusActive
		service.BackendStatus = types.BackendStatusStarted
		if err := s.manager.UpdateService(service); err != nil {
			log.Error("persist placed service failed: " + err.Error())
			continue
		}
		metrics.ServicesScheduledTotal.Inc()

		for _, port := range ports {
			port.ID = uuid.New().String()
			port.ServiceID = service.ID
			if err := s.manager.CreatePort(&port); err != nil {
				log.Error("persist port failed: " + err.Error())
			}
		}
	}

	s.lastPlaced = newPlacement
}

func (s *Scheduler) recordStats(platform *simulator.Platform, placement map[string]string) {
	nodes := make([]NodeStat, 0, len(platform.Nodes()))
	for _, n := range platform.Nodes() {
		nodes = append(nodes, NodeStat{
			Name:           n.Name(),
			FreeMemory:     n.FreeMemory(),
			FreeCores:      n.FreeCores(),
			ContainerCount: n.ContainerCount(),
		})
	}

	s.statsMu.Lock()
	s.lastStats = Stats{
		Nodes:        nodes,
		ServiceStats: placement,
		QueueLength:  len(s.readyQueue),
		Running:      len(s.running),
	}
	s.statsMu.Unlock()
}

// Statistics returns the scheduler's last computed stats snapshot.
func (s *Scheduler) Statistics() Stats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.lastStats
}

func (s *Scheduler) fetchExecution(id string) (*types.Execution, error) {
	execution, err := s.manager.GetExecution(id)
	if err != nil {
		return nil, err
	}
	services, err := s.manager.ListServicesByExecution(id)
	if err != nil {
		return nil, err
	}
	execution.Services = services
	return execution, nil
}

func (s *Scheduler) findServiceByContainer(containerID string) (*types.Service, *types.Execution, error) {
	for _, id := range s.running {
		execution, err := s.fetchExecution(id)
		if err != nil {
			continue
		}
		for _, service := range execution.Services {
			if service.ContainerID == containerID {
				return service, execution, nil
			}
		}
	}
	return nil, nil, apperr.New(apperr.NotFound, "no service owns container %s", containerID)
}

func (s *Scheduler) removeFromSlice(slice *[]string, value string) {
	out := (*slice)[:0]
	for _, v := range *slice {
		if v != value {
			out = append(out, v)
		}
	}
	*slice = out
}
