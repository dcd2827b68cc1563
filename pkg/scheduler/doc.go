/*
Package scheduler implements the single serial scheduling actor: one
goroutine owns the FIFO ready queue, the running-execution set, and the
last committed service placement, and every trigger (submit, terminate, a
container dying, or the periodic tick) is funneled through its command
channel so placement passes never interleave.

Each pass builds a fresh simulator.Platform from the cluster stats
provider's latest snapshot, replays the currently committed placement into
it, attempts essential placement for queued executions and elastic
placement for running ones, then diffs the simulator's final placement
against what was last committed and drives the backend driver to create or
destroy exactly the containers that changed.
*/
package scheduler
