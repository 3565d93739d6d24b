package scheduler

import "errors"

// Sentinel errors for one RunOnce cycle's failure taxonomy. The stage
// failures are returned as fmt.Errorf("%w: %v", sentinel, cause), so callers
// can errors.Is against the sentinel while the cause contributes only its
// message; ErrConcurrentRun, ErrClaimFailed, and ErrProgressMissing are
// returned as is.
var (
	ErrConcurrentRun      = errors.New("scheduler: concurrent run blocked")
	ErrClaimFailed        = errors.New("scheduler: claim failed")
	ErrProgressMissing    = errors.New("scheduler: progress missing")
	ErrExtractFailed      = errors.New("scheduler: extract failed")
	ErrTransformFailed    = errors.New("scheduler: transform failed")
	ErrLoadFailed         = errors.New("scheduler: load failed")
	ErrStatePersistFailed = errors.New("scheduler: state persist failed")
)
