// Package http implements the HTTP request gateway for the license
// service. Handlers stay thin: they parse and validate requests,
// delegate to the authorization engine, and translate engine results
// and errors into JSON responses.
//
// The public surface is POST /api/license. The administrative surface
// (allowlist management, revocation, binding listing) is mounted
// separately under /api/admin and is intended to sit behind a trusted
// interface, not the public gateway.
package http
