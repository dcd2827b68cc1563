/*
Package simulator models a hypothetical placement of services onto a
cluster snapshot, grounded directly on the original scheduler's
simulated-platform module: a Platform holds one SimulatedNode per online
node, each tracking its real reservations plus whatever services the
scheduler has tentatively added during the current pass. Nothing here
talks to the backend; it is pure in-memory bookkeeping the scheduler uses
to decide a placement before committing it.
*/
package simulator
