// Package api defines the wire types of the daemon's HTTP API and a client
// for them. The CLI talks to a running narratord through Client; the daemon
// encodes the same types, so both sides share one definition.
//
// Errors come back as ErrorResponse bodies. Client maps 404 to
// services.ErrNotFound, 400 to services.ErrValidation and 409 to
// ErrConflict so callers can branch with errors.Is.
package api
