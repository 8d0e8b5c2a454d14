package blockchain

import "github.com/pkg/errors"

var (
	// ErrChainCorrupt is returned when a block's hash, index or linkage does not hold.
	ErrChainCorrupt = errors.New("chain corrupt")

	// ErrPersistenceFailure is returned when the chain cannot be read from or written to
	// its store.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrMiningTimeout is returned when proof-of-work exceeds its budget or is cancelled.
	ErrMiningTimeout = errors.New("mining timeout")

	ErrBlockNotFound = errors.New("block not found")
)
