/*
Package facade is the API Facade: the layer between REST handlers and the
execution state store / scheduler that carries authorization, quota
enforcement and validation. It has no knowledge of HTTP; every method
takes the caller's uid and role as plain arguments so it is exercised the
same way from tests, a REST handler, or a CLI acting as its own client.

Ownership is a simple rule, applied everywhere a row is fetched: a
non-admin caller may only see rows whose owning user id matches its own;
everything else is apperr.Forbidden. Guest accounts are further capped to a
small number of concurrently non-terminal executions (the quota), checked
before a new one is accepted.

ExecutionStart is the one operation that tolerates partial failure: if
validation and persistence succeed but the scheduler cannot be reached,
the execution is still returned (state submitted, to be picked up by a
later reconciliation) along with a non-fatal warning string rather than an
error.
*/
package facade
