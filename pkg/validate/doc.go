/*
Package validate implements the two-stage check a submitted ZApp
description must pass before an execution is created from it: a JSON
Schema structural pass (required fields, types, port shapes), then
hand-written semantic checks the schema alone cannot express.

Stage 1 rejects a description that is not even shaped like a ZApp: missing
a name, an empty service list, a port without a protocol, and so on.

Stage 2 rejects a description that is well-formed but inconsistent:

  - no service in the list is marked essential
  - two services share a name
  - a service declares the same port number twice

Every rejection is returned as an *apperr.Error of kind
InvalidDescription, carrying a message the facade passes back to the
caller verbatim.
*/
package validate
