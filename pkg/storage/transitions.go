package storage

import "github.com/zoe-analytics/zoe/pkg/types"

// validTransitions encodes the execution state diagram from the old→new
// adjacency. "any→error" is handled separately since it applies uniformly.
var validTransitions = map[types.ExecutionStatus]map[types.ExecutionStatus]bool{
	types.ExecStatusSubmitted: {
		types.ExecStatusScheduled: true,
	},
	types.ExecStatusScheduled: {
		types.ExecStatusStarting: true,
	},
	types.ExecStatusStarting: {
		types.ExecStatusImageDownload: true,
		types.ExecStatusRunning:       true,
	},
	types.ExecStatusImageDownload: {
		types.ExecStatusRunning: true,
	},
	types.ExecStatusRunning: {
		types.ExecStatusCleaningUp: true,
	},
	types.ExecStatusCleaningUp: {
		types.ExecStatusTerminated: true,
	},
}

// transitionAllowed reports whether moving an execution from old to new is a
// legal edge in the state diagram. Any status may transition to error.
func transitionAllowed(old, new types.ExecutionStatus) bool {
	if old == new {
		return true
	}
	if new == types.ExecStatusError {
		return true
	}
	edges, ok := validTransitions[old]
	if !ok {
		return false
	}
	return edges[new]
}
