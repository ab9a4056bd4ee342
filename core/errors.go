package core

import "errors"

// Sentinel error kinds returned across the mempool, ledger and storage
// subsystems. The core package returns these values unwrapped, so callers
// may compare against them directly or with errors.Is.
var (
	ErrAuth                    = errors.New("auth: invalid signature or address mismatch")
	ErrInputsLocked            = errors.New("mempool: one or more inputs already locked")
	ErrInsufficientValidations = errors.New("mempool: insufficient validations")
	ErrCapacityExceeded        = errors.New("storage: capacity exceeded")
	ErrNotFound                = errors.New("not found")
	ErrInsufficientShards      = errors.New("shard: insufficient shards to reconstruct payload")
	ErrAlreadyFinalized        = errors.New("mempool: transaction already finalized")
	ErrInvalidState            = errors.New("invalid state transition")
	ErrIO                      = errors.New("io error")
	ErrTimeout                 = errors.New("operation timed out")
)
