// Package middleware provides the HTTP middleware chain wrapped around the
// gateway's client and admin routes: request-id propagation, CORS, access
// logging and panic recovery.
//
// Adapted from the teacher's pkg/proxy/middleware package. The teacher's
// rate-limiting middleware (limits.go) has no home here (pkg/limits is
// dropped, see DESIGN.md); its timeout middleware is also not carried,
// since the Dispatcher already applies a per-candidate context.WithTimeout
// bound to each pool's configured timeout (§4.5), and an additional outer
// deadline would either be redundant or, worse, cut a multi-candidate retry
// sequence short at a single attempt's budget.
package middleware
