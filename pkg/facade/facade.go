// Package facade implements the API Facade: the ownership, quota and
// validation rules that sit between the REST layer and the execution
// state store plus the scheduler. No HTTP lives here; every method takes
// the caller's uid and role explicitly so it can be exercised directly
// from tests or from any transport.
package facade

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/manager"
	"github.com/zoe-analytics/zoe/pkg/scheduler"
	"github.com/zoe-analytics/zoe/pkg/storage"
	"github.com/zoe-analytics/zoe/pkg/types"
	"github.com/zoe-analytics/zoe/pkg/validate"
)

// DefaultGuestQuotaMaxExecutions is used when Config leaves the quota at
// its zero value.
const DefaultGuestQuotaMaxExecutions = 1

// guestQuotaStatuses are the execution states that count against a guest's
// concurrent-execution quota: anything still occupying the scheduler or
// about to.
var guestQuotaStatuses = []types.ExecutionStatus{
	types.ExecStatusSubmitted,
	types.ExecStatusScheduled,
	types.ExecStatusStarting,
	types.ExecStatusImageDownload,
	types.ExecStatusRunning,
}

// Scheduler is the facade's view of the scheduling actor.
type Scheduler interface {
	Submit(executionID string) error
	Terminate(executionID string) error
	Statistics() scheduler.Stats
}

// Config holds the facade's deployment-specific settings.
type Config struct {
	// ServiceLogsBasePath is the root directory service logs are read
	// from: <base>/<deployment>/<execution-id>/<service-name>.txt.
	ServiceLogsBasePath string
	// DeploymentName namespaces the log path and, via pkg/events, the
	// observer's container label.
	DeploymentName string
	// GuestQuotaMaxExecutions caps how many non-terminal executions a
	// guest may have at once. Zero uses DefaultGuestQuotaMaxExecutions.
	GuestQuotaMaxExecutions int
}

// Endpoint is one resolved (port-name, URL) pair returned by
// ExecutionEndpoints.
type Endpoint struct {
	Name string
	URL  string
}

// Facade is the API Facade. All methods are safe for concurrent use: they
// delegate mutation to the manager (serialized through Raft) and the
// scheduler (serialized through its actor).
type Facade struct {
	manager   *manager.Manager
	scheduler Scheduler
	cfg       Config
}

// New builds a Facade.
func New(mgr *manager.Manager, sched Scheduler, cfg Config) *Facade {
	if cfg.GuestQuotaMaxExecutions <= 0 {
		cfg.GuestQuotaMaxExecutions = DefaultGuestQuotaMaxExecutions
	}
	return &Facade{manager: mgr, scheduler: sched, cfg: cfg}
}

func owns(uid, role, ownerID string) bool {
	return role == string(types.RoleAdmin) || uid == ownerID
}

// ExecutionByID looks up one execution, enforcing ownership.
func (f *Facade) ExecutionByID(uid, role, id string) (*types.Execution, error) {
	execution, err := f.manager.GetExecution(id)
	if err != nil {
		return nil, err
	}
	if !owns(uid, role, execution.UserID) {
		return nil, apperr.New(apperr.Forbidden, "not authorized for execution %s", id)
	}
	return execution, nil
}

// ExecutionList returns executions matching filter, restricted to the
// caller's own rows unless they are an admin.
func (f *Facade) ExecutionList(uid, role string, filter storage.ExecutionFilter) ([]*types.Execution, error) {
	executions, err := f.manager.ListExecutions(filter)
	if err != nil {
		return nil, err
	}
	if role == string(types.RoleAdmin) {
		return executions, nil
	}
	owned := make([]*types.Execution, 0, len(executions))
	for _, e := range executions {
		if e.UserID == uid {
			owned = append(owned, e)
		}
	}
	return owned, nil
}

// ZAppValidate schema- and semantically-validates a submitted ZApp
// description.
func (f *Facade) ZAppValidate(raw []byte) (*types.ZApp, error) {
	return validate.ZApp(raw)
}

func (f *Facade) enforceGuestQuota(uid string) error {
	count := 0
	for _, status := range guestQuotaStatuses {
		executions, err := f.manager.ListExecutions(storage.ExecutionFilter{UserID: uid, Status: status})
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "guest quota check")
		}
		count += len(executions)
	}
	if count >= f.cfg.GuestQuotaMaxExecutions {
		return apperr.New(apperr.InvalidState, "guest users cannot run more than %d execution(s) at a time, quota exceeded", f.cfg.GuestQuotaMaxExecutions)
	}
	return nil
}

func servicesFromDescription(executionID string, app *types.ZApp) []*types.Service {
	services := make([]*types.Service, 0, len(app.Services))
	for _, desc := range app.Services {
		labels := make(map[string]struct{}, len(desc.Labels))
		for _, l := range desc.Labels {
			labels[l] = struct{}{}
		}
		ports := make([]types.DeclaredPort, 0, len(desc.Ports))
		for _, p := range desc.Ports {
			ports = append(ports, types.DeclaredPort{
				Name:        p.Name,
				Number:      p.Number,
				Protocol:    p.Protocol,
				URLTemplate: p.URLTemplate,
			})
		}
		services = append(services, &types.Service{
			ID:          uuid.New().String(),
			ExecutionID: executionID,
			Name:        desc.Name,
			Image:       desc.Image,
			Monitor:     desc.Monitor,
			Essential:   desc.Essential,
			Resources:   types.ResourceMin{Memory: desc.Resources.MemoryMin, Cores: desc.Resources.CoresMin},
			Labels:      labels,
			Ports:       ports,
			Env:         desc.Env,
			Volumes:     desc.Volumes,
			Command:     desc.Command,
			Status:      types.ServiceStatusInactive,
			Description: types.ServiceDescription{Ports: desc.Ports},
		})
	}
	return services
}

// ExecutionStart validates the description, enforces the guest quota,
// persists the execution and its services, and signals the scheduler.
//
// If the scheduler cannot be reached the execution is still returned with
// a non-empty warning: it remains persisted in state submitted so a later
// reconciliation pass can pick it up, and the caller is told the master is
// unavailable but the execution was accepted.
func (f *Facade) ExecutionStart(uid, role, name string, rawDescription []byte) (execution *types.Execution, warning string, err error) {
	app, err := validate.ZApp(rawDescription)
	if err != nil {
		return nil, "", err
	}

	if role == string(types.RoleGuest) {
		if err := f.enforceGuestQuota(uid); err != nil {
			return nil, "", err
		}
	}

	execution = &types.Execution{
		ID:          uuid.New().String(),
		Name:        name,
		UserID:      uid,
		Status:      types.ExecStatusSubmitted,
		Description: *app,
	}
	services := servicesFromDescription(execution.ID, app)
	execution.Services = services

	if err := f.manager.CreateExecution(execution); err != nil {
		return nil, "", apperr.Wrap(apperr.Internal, err, "persist execution")
	}
	for _, svc := range services {
		if err := f.manager.CreateService(svc); err != nil {
			return nil, "", apperr.Wrap(apperr.Internal, err, "persist service %s", svc.Name)
		}
	}

	if err := f.scheduler.Submit(execution.ID); err != nil {
		log.Warn("scheduler unreachable, execution " + execution.ID + " persisted for later reconciliation: " + err.Error())
		return execution, fmt.Sprintf("the Zoe master is unavailable, execution will be submitted automatically when the master is back up (%v)", err), nil
	}

	return execution, "", nil
}

// ExecutionTerminate requests termination of an active, owned execution.
func (f *Facade) ExecutionTerminate(uid, role, id string) error {
	execution, err := f.manager.GetExecution(id)
	if err != nil {
		return err
	}
	if !owns(uid, role, execution.UserID) {
		return apperr.New(apperr.Forbidden, "not authorized for execution %s", id)
	}
	if !execution.Status.Active() {
		return apperr.New(apperr.InvalidState, "execution %s is not running", id)
	}
	return f.scheduler.Terminate(id)
}

// ExecutionDelete removes an inactive execution and cascades to its
// services and ports. Admin-only.
func (f *Facade) ExecutionDelete(uid, role, id string) error {
	if role != string(types.RoleAdmin) {
		return apperr.New(apperr.Forbidden, "execution delete requires admin")
	}
	execution, err := f.manager.GetExecution(id)
	if err != nil {
		return err
	}
	if execution.Status.Active() {
		return apperr.New(apperr.InvalidState, "cannot delete an active execution")
	}
	return f.manager.DeleteExecution(id)
}

// ServiceByID looks up one service, enforcing ownership via its parent
// execution.
func (f *Facade) ServiceByID(uid, role, serviceID string) (*types.Service, error) {
	service, err := f.manager.GetService(serviceID)
	if err != nil {
		return nil, err
	}
	execution, err := f.manager.GetExecution(service.ExecutionID)
	if err != nil {
		return nil, err
	}
	if !owns(uid, role, execution.UserID) {
		return nil, apperr.New(apperr.Forbidden, "not authorized for service %s", serviceID)
	}
	return service, nil
}

// ServiceList returns the services of one execution, enforcing ownership.
func (f *Facade) ServiceList(uid, role, executionID string) ([]*types.Service, error) {
	execution, err := f.ExecutionByID(uid, role, executionID)
	if err != nil {
		return nil, err
	}
	return f.manager.ListServicesByExecution(execution.ID)
}

// ServiceLogs opens the log file for a service the caller owns.
func (f *Facade) ServiceLogs(uid, role, serviceID string) (io.ReadCloser, error) {
	service, err := f.ServiceByID(uid, role, serviceID)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(f.cfg.ServiceLogsBasePath, f.cfg.DeploymentName, service.ExecutionID, service.Name+".txt")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotFound, "service log not available")
		}
		return nil, apperr.Wrap(apperr.Internal, err, "open service log")
	}
	return file, nil
}

// ExecutionEndpoints resolves every declared port of every service in an
// execution to its externally reachable URL, where the backend has
// assigned one.
func (f *Facade) ExecutionEndpoints(uid, role, executionID string) ([]*types.Service, []Endpoint, error) {
	execution, err := f.ExecutionByID(uid, role, executionID)
	if err != nil {
		return nil, nil, err
	}
	services, err := f.manager.ListServicesByExecution(execution.ID)
	if err != nil {
		return nil, nil, err
	}

	var endpoints []Endpoint
	for _, service := range services {
		ports, err := f.manager.ListPortsByService(service.ID)
		if err != nil {
			return nil, nil, err
		}
		byInternalName := make(map[string]*types.Port, len(ports))
		for _, p := range ports {
			byInternalName[p.InternalName] = p
		}
		for _, declared := range service.Description.Ports {
			key := fmt.Sprintf("%d/%s", declared.Number, declared.Protocol)
			port, ok := byInternalName[key]
			if !ok || port.ExternalIP == "" {
				continue
			}
			url := strings.ReplaceAll(declared.URLTemplate, "{ip_port}", fmt.Sprintf("%s:%d", port.ExternalIP, port.ExternalPort))
			endpoints = append(endpoints, Endpoint{Name: declared.Name, URL: url})
		}
	}

	return services, endpoints, nil
}

// StatisticsScheduler returns the scheduler's current stats verbatim;
// service_stats keeps the scheduler's string service-id keys.
func (f *Facade) StatisticsScheduler() scheduler.Stats {
	return f.scheduler.Statistics()
}

// UserList returns every registered user. Admin-only.
func (f *Facade) UserList(role string) ([]*types.User, error) {
	if role != string(types.RoleAdmin) {
		return nil, apperr.New(apperr.Forbidden, "user list requires admin")
	}
	return f.manager.ListUsers()
}

// UserByName looks up a user by name. Admin-only, matching user_list.
func (f *Facade) UserByName(role, name string) (*types.User, error) {
	if role != string(types.RoleAdmin) {
		return nil, apperr.New(apperr.Forbidden, "user lookup requires admin")
	}
	return f.manager.GetUserByName(name)
}

// UserUpdate updates a user's record. Admin-only.
func (f *Facade) UserUpdate(role string, user *types.User) error {
	if role != string(types.RoleAdmin) {
		return apperr.New(apperr.Forbidden, "user update requires admin")
	}
	return f.manager.UpdateUser(user)
}
