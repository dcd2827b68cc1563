package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/zoe-analytics/zoe/pkg/apperr"
	"github.com/zoe-analytics/zoe/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketUsers      = []byte("users")
	bucketExecutions = []byte("executions")
	bucketServices   = []byte("services")
	bucketPorts      = []byte("ports")
)

// BoltStore implements Store using an embedded BoltDB file, one bucket per
// entity type and JSON-encoded values keyed by id.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the BoltDB file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "zoe.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketUsers, bucketExecutions, bucketServices, bucketPorts}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(id))
		if data == nil {
			return apperr.New(apperr.NotFound, "user not found: %s", id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByName(name string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if user.Name == name {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apperr.New(apperr.NotFound, "user not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) UpdateUser(user *types.User) error {
	return s.CreateUser(user) // upsert
}

// --- Executions ---

func (s *BoltStore) CreateExecution(execution *types.Execution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		data, err := json.Marshal(execution)
		if err != nil {
			return err
		}
		return b.Put([]byte(execution.ID), data)
	})
}

func (s *BoltStore) GetExecution(id string) (*types.Execution, error) {
	var execution types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		data := b.Get([]byte(id))
		if data == nil {
			return apperr.New(apperr.NotFound, "execution not found: %s", id)
		}
		return json.Unmarshal(data, &execution)
	})
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

func (s *BoltStore) ListExecutions(filter ExecutionFilter) ([]*types.Execution, error) {
	var executions []*types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		return b.ForEach(func(k, v []byte) error {
			var execution types.Execution
			if err := json.Unmarshal(v, &execution); err != nil {
				return err
			}
			if filter.ID != "" && execution.ID != filter.ID {
				return nil
			}
			if filter.UserID != "" && execution.UserID != filter.UserID {
				return nil
			}
			if filter.Status != "" && execution.Status != filter.Status {
				return nil
			}
			executions = append(executions, &execution)
			return nil
		})
	})
	return executions, err
}

func (s *BoltStore) SetExecutionStatus(id string, newStatus types.ExecutionStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		data := b.Get([]byte(id))
		if data == nil {
			return apperr.New(apperr.NotFound, "execution not found: %s", id)
		}
		var execution types.Execution
		if err := json.Unmarshal(data, &execution); err != nil {
			return err
		}
		if !transitionAllowed(execution.Status, newStatus) {
			return apperr.New(apperr.InvalidState, "illegal transition %s -> %s for execution %s", execution.Status, newStatus, id)
		}
		execution.Status = newStatus
		out, err := json.Marshal(&execution)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}

func (s *BoltStore) DeleteExecution(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		eb := tx.Bucket(bucketExecutions)
		data := eb.Get([]byte(id))
		if data == nil {
			return apperr.New(apperr.NotFound, "execution not found: %s", id)
		}
		var execution types.Execution
		if err := json.Unmarshal(data, &execution); err != nil {
			return err
		}
		if execution.Status.Active() {
			return apperr.New(apperr.InvalidState, "execution %s is active, cannot delete", id)
		}

		sb := tx.Bucket(bucketServices)
		pb := tx.Bucket(bucketPorts)
		var deadServices [][]byte
		if err := sb.ForEach(func(k, v []byte) error {
			var service types.Service
			if err := json.Unmarshal(v, &service); err != nil {
				return err
			}
			if service.ExecutionID == id {
				deadServices = append(deadServices, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, sk := range deadServices {
			var deadPorts [][]byte
			if err := pb.ForEach(func(k, v []byte) error {
				var port types.Port
				if err := json.Unmarshal(v, &port); err != nil {
					return err
				}
				if port.ServiceID == string(sk) {
					deadPorts = append(deadPorts, append([]byte(nil), k...))
				}
				return nil
			}); err != nil {
				return err
			}
			for _, pk := range deadPorts {
				if err := pb.Delete(pk); err != nil {
					return err
				}
			}
			if err := sb.Delete(sk); err != nil {
				return err
			}
		}

		return eb.Delete([]byte(id))
	})
}

// --- Services ---

func (s *BoltStore) CreateService(service *types.Service) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data, err := json.Marshal(service)
		if err != nil {
			return err
		}
		return b.Put([]byte(service.ID), data)
	})
}

func (s *BoltStore) GetService(id string) (*types.Service, error) {
	var service types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		data := b.Get([]byte(id))
		if data == nil {
			return apperr.New(apperr.NotFound, "service not found: %s", id)
		}
		return json.Unmarshal(data, &service)
	})
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func (s *BoltStore) ListServicesByExecution(executionID string) ([]*types.Service, error) {
	var services []*types.Service
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		return b.ForEach(func(k, v []byte) error {
			var service types.Service
			if err := json.Unmarshal(v, &service); err != nil {
				return err
			}
			if service.ExecutionID == executionID {
				services = append(services, &service)
			}
			return nil
		})
	})
	return services, err
}

func (s *BoltStore) UpdateService(service *types.Service) error {
	return s.CreateService(service)
}

func (s *BoltStore) DeleteService(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServices)
		return b.Delete([]byte(id))
	})
}

// --- Ports ---

func (s *BoltStore) CreatePort(port *types.Port) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPorts)
		data, err := json.Marshal(port)
		if err != nil {
			return err
		}
		return b.Put([]byte(port.ID), data)
	})
}

func (s *BoltStore) GetPort(id string) (*types.Port, error) {
	var port types.Port
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPorts)
		data := b.Get([]byte(id))
		if data == nil {
			return apperr.New(apperr.NotFound, "port not found: %s", id)
		}
		return json.Unmarshal(data, &port)
	})
	if err != nil {
		return nil, err
	}
	return &port, nil
}

func (s *BoltStore) ListPortsByService(serviceID string) ([]*types.Port, error) {
	var ports []*types.Port
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPorts)
		return b.ForEach(func(k, v []byte) error {
			var port types.Port
			if err := json.Unmarshal(v, &port); err != nil {
				return err
			}
			if port.ServiceID == serviceID {
				ports = append(ports, &port)
			}
			return nil
		})
	})
	return ports, err
}

func (s *BoltStore) UpdatePort(port *types.Port) error {
	return s.CreatePort(port)
}

func (s *BoltStore) DeletePort(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPorts)
		return b.Delete([]byte(id))
	})
}
