// Package authz implements the license-binding authorization engine.
//
// The engine decides whether a given (email, machine) pair may use the
// software: the first successful request for an allowlisted email binds
// that email to the requesting machine, repeat requests from the same
// machine renew the binding, and requests from any other machine are
// rejected until an administrator revokes the binding.
//
// The engine owns no durable state. Every decision is a function of the
// incoming request and a snapshot read from the injected Store, and the
// Store serializes writes per email so concurrent requests cannot
// create conflicting bindings.
package authz
