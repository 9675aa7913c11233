// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/service/sync layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleRollback indicates a rollback was skipped because a newer write superseded the optimistic one.
	ErrStaleRollback = errors.New("stale rollback")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates a throttled refresh or action.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates the chain already holds the entity (e.g., player spawned twice).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotConnected indicates no wallet address is connected.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrSuperseded indicates a pull finished after the wallet it was started for went away.
	ErrSuperseded = errors.New("superseded")
)
