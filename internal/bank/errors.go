package bank

import "errors"

var (
	// ErrEmbeddingUnavailable indicates the trajectory could not be
	// embedded; nothing was written.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStoreUnavailable indicates the circuit breaker is open or the
	// store rejected the write; callers should retry later.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidTrajectory indicates required trajectory fields are
	// missing.
	ErrInvalidTrajectory = errors.New("invalid trajectory")
)
