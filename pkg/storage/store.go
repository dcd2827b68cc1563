package storage

import (
	"github.com/zoe-analytics/zoe/pkg/types"
)

// ExecutionFilter narrows ListExecutions. Zero-valued fields are ignored.
type ExecutionFilter struct {
	ID     string
	UserID string
	Status types.ExecutionStatus
}

// Store defines the durable record interface behind the Execution State
// Store: users, executions, services and ports. Implementations must give
// read-after-write consistency within one caller and run multi-row
// mutations (e.g. DeleteExecution's cascade) in a single transaction.
type Store interface {
	// Users
	CreateUser(user *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByName(name string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	UpdateUser(user *types.User) error

	// Executions
	CreateExecution(execution *types.Execution) error
	GetExecution(id string) (*types.Execution, error)
	ListExecutions(filter ExecutionFilter) ([]*types.Execution, error)
	// SetExecutionStatus validates the transition against the execution
	// state diagram before applying it; an illegal transition returns an
	// *apperr.Error of kind invalid-state.
	SetExecutionStatus(id string, newStatus types.ExecutionStatus) error
	// DeleteExecution removes an execution and cascades to its services
	// and ports. Only allowed when the execution is inactive.
	DeleteExecution(id string) error

	// Services
	CreateService(service *types.Service) error
	GetService(id string) (*types.Service, error)
	ListServicesByExecution(executionID string) ([]*types.Service, error)
	UpdateService(service *types.Service) error
	DeleteService(id string) error

	// Ports
	CreatePort(port *types.Port) error
	GetPort(id string) (*types.Port, error)
	ListPortsByService(serviceID string) ([]*types.Port, error)
	UpdatePort(port *types.Port) error
	DeletePort(id string) error

	// Close releases the underlying database handle.
	Close() error
}
