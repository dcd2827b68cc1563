/*
Package storage implements the Execution State Store: BoltDB-backed,
ACID-transactional persistence for users, executions, services and
ports, one bucket per type, each record serialized as JSON.

# Layout

	┌──────────────────────────────────────────────┐
	│                  BoltDB file                  │
	│  ┌─────────┐ ┌────────────┐ ┌──────────┐      │
	│  │ users   │ │ executions │ │ services │ ...  │
	│  │  (ID)   │ │    (ID)    │ │   (ID)   │      │
	│  └─────────┘ └────────────┘ └──────────┘      │
	│                              ┌──────────┐     │
	│                              │  ports   │     │
	│                              │   (ID)   │     │
	│                              └──────────┘     │
	└──────────────────────────────────────────────┘

BoltStore is the only implementation of the Store interface this
package ships. It is never used directly by the REST layer or the
facade - pkg/manager.Manager wraps it and applies every write through
Raft, so this package's transactions are local to one node's replica
and never need to coordinate with peers themselves.

# Consistency

DeleteExecution cascades: it removes the execution record and every
service and port that belongs to it in one BoltDB transaction, so a
reader can never observe an execution gone while one of its services
still exists.

SetExecutionStatus validates the requested transition against the
execution lifecycle (submitted -> scheduled -> starting -> image
download -> running -> cleaning up -> terminated, with error reachable
from any state, terminal ones included) before applying it; an illegal transition
returns an apperr.Error of kind invalid-state rather than silently
overwriting the stored status.

ListExecutions filters by UserID and/or Status, iterating the whole
executions bucket - there is no secondary index, which is acceptable at
the scale a single embedded store is meant for.
*/
package storage
