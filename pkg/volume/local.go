// Package volume resolves a service's declared volume names to host
// directories bind-mounted into its container, backed by plain local
// storage: no external volume plugin protocol, since a ZApp names
// volumes by string and expects a directory, not a pluggable driver.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultBasePath is the root directory local volumes are created under.
const DefaultBasePath = "/var/lib/zoe/volumes"

// LocalDriver creates and resolves host-path directories for a
// deployment's named volumes. Two services across different executions
// that declare the same volume name share the same directory, the same
// way the original per-service disk reservation did.
type LocalDriver struct {
	basePath string
}

// NewLocalDriver creates a local volume driver rooted at basePath (or
// DefaultBasePath if empty), creating the root directory if missing.
func NewLocalDriver(basePath string) (*LocalDriver, error) {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create volumes directory: %w", err)
	}
	return &LocalDriver{basePath: basePath}, nil
}

// Resolve returns the host path for a volume name, creating its
// directory on first use.
func (d *LocalDriver) Resolve(name string) (string, error) {
	path := d.path(name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create volume %s: %w", name, err)
	}
	return path, nil
}

// ResolveAll resolves every name in names, in order.
func (d *LocalDriver) ResolveAll(names []string) ([]string, error) {
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path, err := d.Resolve(name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Delete removes a volume's directory and everything under it.
func (d *LocalDriver) Delete(name string) error {
	return os.RemoveAll(d.path(name))
}

func (d *LocalDriver) path(name string) string {
	return filepath.Join(d.basePath, filepath.Base(name))
}
