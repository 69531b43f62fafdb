package domain

import "errors"

var (
	// ErrLocationNotFound signals that no resolver tier matched the input text.
	ErrLocationNotFound = errors.New("location not found")
	// ErrCircuitOpen signals that the embedding circuit breaker is open.
	ErrCircuitOpen = errors.New("embedding circuit open")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrMalformedUpstream signals an upstream response with an unexpected shape.
	ErrMalformedUpstream = errors.New("malformed upstream response")
	// ErrParseFailure signals that the query parser could not produce a result.
	ErrParseFailure = errors.New("query parse failure")
	// ErrLockNotOwned signals an attempt to release a coalescing lock held by another process.
	ErrLockNotOwned = errors.New("coalescing lock not owned")
	// ErrCoalesceTimeout signals that waiting on another process's embedding call timed out.
	ErrCoalesceTimeout = errors.New("coalesced embedding wait timed out")
)

// KeyPrefix namespaces every key searchcore writes to the shared store.
const KeyPrefix = "searchcore:"
