/*
Package api implements Zoe's REST layer: a go-chi router in front of the
API Facade (pkg/facade). Handlers translate HTTP requests into facade
calls and apperr.Kind values into status codes; no placement or ownership
logic lives here.

# Routing

Router() builds one chi.Mux:

  - POST /api/<version>/login establishes a session.
  - Every other /api/<version>/... route requires authentication.
  - POST /cluster/join lets a node with a valid join token become a Raft
    voter, mirroring pkg/manager's own Join() client call.
  - GET /metrics exposes Prometheus metrics, outside the /api prefix.
  - GET /health, /ready are plain liveness/readiness checks.

CORS preflight (OPTIONS) is answered with 204 on every route via
go-chi/cors. Credentialed cross-origin requests carrying the session
cookie are allowed only once CORSAllowedOrigins names real origins; the
wildcard fallback does not allow them.

# Authentication

A caller presents either HTTP Basic credentials, checked against
types.User.PasswordHash with bcrypt, or a "zoe_session" cookie carrying
"<uid>.<role>" signed with HMAC-SHA256 (sessionSigner). POST /login issues
the cookie after a successful Basic-equivalent check. Handlers read the
authenticated uid/role from the request context via callerFrom; requireAuth
is the middleware that populates it.

# Errors

Every facade error is an *apperr.Error with a Kind. writeError maps Kind to
an HTTP status and writes {"message": "..."} as the body, per the
error-handling design: the facade classifies, this layer never invents a
new status.
*/
package api
