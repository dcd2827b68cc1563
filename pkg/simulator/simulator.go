// Package simulator models a cluster as a set of simulated nodes that
// hypothetical service placements can be tried against before they are
// committed to the real backend. It never talks to the backend driver
// itself: it is constructed from one ClusterStats snapshot and answers
// fit/placement questions purely in memory.
package simulator

import (
	"fmt"
	"sort"

	"github.com/zoe-analytics/zoe/pkg/log"
	"github.com/zoe-analytics/zoe/pkg/types"
)

// SimulatedNode is one online node plus a mutable list of hypothetically
// placed services on top of its real reservations.
type SimulatedNode struct {
	name                string
	labels              map[string]struct{}
	images              []types.ImageGroup
	realActiveContainers int
	realFreeMemory      int64
	realFreeCores       float64

	services []*types.Service
}

func newSimulatedNode(node types.NodeStats) *SimulatedNode {
	return &SimulatedNode{
		name:                node.Name,
		labels:              node.Labels,
		images:              node.Images,
		realActiveContainers: node.ContainerCount,
		realFreeMemory:      node.MemoryTotal - node.MemoryReserved,
		realFreeCores:       node.CoresTotal - node.CoresReserved,
	}
}

// Name is the node's identifier.
func (n *SimulatedNode) Name() string { return n.name }

// ContainerCount is real active containers plus simulated placements.
func (n *SimulatedNode) ContainerCount() int {
	return n.realActiveContainers + len(n.services)
}

// FreeMemory is real free memory minus every simulated service's memory
// reservation. A negative result is logged as an accounting anomaly but
// still returned, so callers can detect the condition.
func (n *SimulatedNode) FreeMemory() int64 {
	var reserved int64
	for _, s := range n.services {
		reserved += s.Resources.Memory
	}
	free := n.realFreeMemory - reserved
	if free < 0 {
		log.Warn(fmt.Sprintf("more memory reserved than free on node %s: %d", n.name, free))
	}
	return free
}

// FreeCores is the equivalent of FreeMemory for CPU cores.
func (n *SimulatedNode) FreeCores() float64 {
	var reserved float64
	for _, s := range n.services {
		reserved += s.Resources.Cores
	}
	free := n.realFreeCores - reserved
	if free < 0 {
		log.Warn(fmt.Sprintf("more cores reserved than free on node %s: %g", n.name, free))
	}
	return free
}

// Fits reports whether service can be placed on this node. The memory
// comparison is strict (<) and the cores comparison is non-strict (<=);
// this asymmetry is deliberate and must not be "fixed" for consistency.
func (n *SimulatedNode) Fits(service *types.Service) bool {
	for label := range service.Labels {
		if _, ok := n.labels[label]; !ok {
			return false
		}
	}
	if !(service.Resources.Memory < n.FreeMemory()) {
		return false
	}
	if !(service.Resources.Cores <= n.FreeCores()) {
		return false
	}
	return n.imageAvailable(service.Image)
}

// WhyUnfit explains the first failing predicate, in the fixed order
// memory, cores, labels, image, for scheduler debug logging.
func (n *SimulatedNode) WhyUnfit(service *types.Service) string {
	if !(service.Resources.Memory < n.FreeMemory()) {
		return fmt.Sprintf("needs %d more bytes of memory", service.Resources.Memory-n.FreeMemory())
	}
	if !(service.Resources.Cores <= n.FreeCores()) {
		return fmt.Sprintf("needs %g more cores", service.Resources.Cores-n.FreeCores())
	}
	for label := range service.Labels {
		if _, ok := n.labels[label]; !ok {
			return fmt.Sprintf("service requires label %q which is not defined on the node", label)
		}
	}
	if !n.imageAvailable(service.Image) {
		return fmt.Sprintf("image %s is not available on this node", service.Image)
	}
	return ""
}

func (n *SimulatedNode) imageAvailable(image string) bool {
	for _, group := range n.images {
		for _, name := range group.Names {
			if name == image {
				return true
			}
		}
	}
	return false
}

func (n *SimulatedNode) addService(service *types.Service) {
	n.services = append(n.services, service)
}

func (n *SimulatedNode) removeService(service *types.Service) bool {
	for i, s := range n.services {
		if s.ID == service.ID {
			n.services = append(n.services[:i], n.services[i+1:]...)
			return true
		}
	}
	return false
}

// String renders the node's allocatable state for scheduler debug logs.
func (n *SimulatedNode) String() string {
	return fmt.Sprintf("SN %s | m %d | c %g", n.name, n.FreeMemory(), n.FreeCores())
}

// Platform is a simulated cluster built from one ClusterStats snapshot:
// offline nodes are excluded entirely, mirroring the scheduler's rule that
// it never places work on them.
type Platform struct {
	order []string // preserves snapshot iteration order for tie-breaking
	nodes map[string]*SimulatedNode
}

// NewPlatform builds a simulated platform from a cluster stats snapshot.
func NewPlatform(stats *types.ClusterStats) *Platform {
	p := &Platform{nodes: make(map[string]*SimulatedNode)}
	for _, node := range stats.Nodes {
		if node.Status != types.NodeOnline {
			continue
		}
		p.nodes[node.Name] = newSimulatedNode(node)
		p.order = append(p.order, node.Name)
	}
	return p
}

// AllocateEssential tries to place every essential service of execution.
// For each service it gathers the nodes where it fits and picks the one
// with the smallest container count, ties broken by snapshot iteration
// order. If any essential service has no candidate, every essential
// placement made so far for this execution is rolled back and false is
// returned.
func (p *Platform) AllocateEssential(execution *types.Execution) bool {
	for _, service := range execution.EssentialServices() {
		node := p.pickCandidate(service)
		if node == nil {
			p.DeallocateEssential(execution)
			log.Info(fmt.Sprintf("cannot fit essential service %s anywhere, bailing out", service.ID))
			return false
		}
		node.addService(service)
	}
	return true
}

// DeallocateEssential removes execution's essential services wherever
// they were placed.
func (p *Platform) DeallocateEssential(execution *types.Execution) {
	for _, service := range execution.EssentialServices() {
		p.removeFromAnyNode(service)
	}
}

// AllocateElastic tries to place every elastic service of execution that
// is not already active and healthy. Returns true iff at least one
// elastic service was placed; services that do not fit are skipped
// silently, not treated as failure.
func (p *Platform) AllocateElastic(execution *types.Execution) bool {
	placedAny := false
	for _, service := range execution.ElasticServices() {
		if service.Status == types.ServiceStatusActive && service.BackendStatus != types.BackendStatusDie {
			continue
		}
		node := p.pickCandidate(service)
		if node == nil {
			log.Info(fmt.Sprintf("cannot fit elastic service %s anywhere", service.ID))
			continue
		}
		node.addService(service)
		service.Status = types.ServiceStatusRunnable
		placedAny = true
	}
	return placedAny
}

// DeallocateElastic removes execution's elastic services from wherever
// placed and marks them inactive.
func (p *Platform) DeallocateElastic(execution *types.Execution) {
	for _, service := range execution.ElasticServices() {
		if p.removeFromAnyNode(service) {
			service.Status = types.ServiceStatusInactive
		}
	}
}

// pickCandidate returns the fitting node with the smallest container
// count, ties broken by snapshot iteration order, or nil if none fit.
func (p *Platform) pickCandidate(service *types.Service) *SimulatedNode {
	var candidates []*SimulatedNode
	for _, name := range p.order {
		node := p.nodes[name]
		if node.Fits(service) {
			candidates = append(candidates, node)
		} else {
			log.Debug(fmt.Sprintf("cannot fit service %s on node %s: %s", service.ID, node.name, node.WhyUnfit(service)))
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ContainerCount() < candidates[j].ContainerCount()
	})
	return candidates[0]
}

func (p *Platform) removeFromAnyNode(service *types.Service) bool {
	for _, name := range p.order {
		if p.nodes[name].removeService(service) {
			return true
		}
	}
	return false
}

// AggregatedFreeMemory sums FreeMemory across every node in the platform.
func (p *Platform) AggregatedFreeMemory() int64 {
	var total int64
	for _, name := range p.order {
		total += p.nodes[name].FreeMemory()
	}
	return total
}

// GetServiceAllocation returns a map of service id to the node name it is
// currently placed on (including services placed by ReplayPlacement).
func (p *Platform) GetServiceAllocation() map[string]string {
	placements := make(map[string]string)
	for _, name := range p.order {
		for _, service := range p.nodes[name].services {
			placements[service.ID] = name
		}
	}
	return placements
}

// Nodes returns the platform's simulated nodes in snapshot iteration
// order, for scheduler statistics reporting.
func (p *Platform) Nodes() []*SimulatedNode {
	out := make([]*SimulatedNode, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.nodes[name])
	}
	return out
}

// ReplayPlacement adds an already-placed service directly to a named node
// without running Fits, used by the scheduler to seed a fresh platform
// with the allocation state of already-running executions before a new
// pass considers newly submitted or unhealthy ones.
func (p *Platform) ReplayPlacement(nodeName string, service *types.Service) {
	if node, ok := p.nodes[nodeName]; ok {
		node.addService(service)
	}
}
