// Package auth guards the gateway's streaming endpoints.
//
// Authenticators vote Yes (identity found), No (credentials invalid) or
// Abstain (not their kind of credential) and a Chain stops at the first
// non-abstaining vote. The Middleware runs the chain, applies per-subject
// rate limits and stores the Identity in the request context. Operational
// endpoints such as /healthz bypass it.
package auth
