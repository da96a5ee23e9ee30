package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")

	// Job lifecycle
	ErrJobNotClaimable = errors.New("job is not claimable")
	ErrJobTerminal     = errors.New("job is in a terminal state")

	// Generation pipeline
	ErrGenerationExhausted = errors.New("generation attempts exhausted")
	ErrSchemaMismatch      = errors.New("structured output does not match schema")
	ErrOutlineParse        = errors.New("no chapters found in outline response")
	ErrOutlineShape        = errors.New("outline does not match length tier")
	ErrContentPolicy       = errors.New("prompt rejected by content policy")
	ErrVideoNotConfigured  = errors.New("video generation is not configured")

	// Structural integrity (admin retry flow)
	ErrStructuralInvalid = errors.New("job references missing or deleted entities")
	ErrDuplicateActive   = errors.New("another active job exists for this chapter")
)
