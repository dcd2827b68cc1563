package types

// ZApp is the declarative multi-service application description a client
// submits. It is validated by pkg/validate before an Execution is created
// from it, and kept verbatim on the Execution for display/audit.
type ZApp struct {
	Name     string            `json:"name" validate:"required"`
	Version  int               `json:"version"`
	Services []ZAppServiceDesc `json:"services" validate:"required,min=1,dive"`
}

// ZAppServiceDesc is one service entry inside a ZApp description.
type ZAppServiceDesc struct {
	Name      string            `json:"name" validate:"required"`
	Image     string            `json:"image" validate:"required"`
	Monitor   bool              `json:"monitor"`
	Essential bool              `json:"essential"`
	Resources ZAppResourceDesc  `json:"resources"`
	Labels    []string          `json:"labels,omitempty"`
	Ports     []ZAppPortDesc    `json:"ports,omitempty" validate:"dive"`
	Env       map[string]string `json:"environment,omitempty"`
	Volumes   []string          `json:"volumes,omitempty"`
	Command   []string          `json:"command,omitempty"`
}

// ZAppResourceDesc is the resource reservation block of a service entry.
type ZAppResourceDesc struct {
	MemoryMin int64   `json:"memory_min"`
	CoresMin  float64 `json:"cores_min"`
}

// ZAppPortDesc is one declared port of a service entry.
type ZAppPortDesc struct {
	Name        string `json:"name" validate:"required"`
	Number      int    `json:"port_number" validate:"required"`
	Protocol    string `json:"protocol" validate:"required,oneof=tcp udp"`
	URLTemplate string `json:"url_template" validate:"required"`
}

// ServiceDescription keeps the raw per-service fragment the description was
// built from, so callers that need the original shape (e.g. the facade's
// endpoint computation) do not have to reconstruct it from the typed
// Service fields.
type ServiceDescription struct {
	Ports []ZAppPortDesc
}
