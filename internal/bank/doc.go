// Package bank implements the episodic memory bridge: retrieve a prior
// strategy before a task, persist the trajectory after it, and compact a
// finished session into consolidated memories.
//
// All store access flows through a single shared circuit breaker. When
// the breaker is open, retrieval degrades to "no strategy" while storage
// fails loudly with ErrStoreUnavailable so callers can retry.
package bank
