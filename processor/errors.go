package processor

import "errors"

// Sentinel errors raised by the processing stages. They signal caller
// misconfiguration or insufficient data, never transient faults, so none
// are retried internally.
var (
	ErrEmptySelection    = errors.New("processor: no rasters selected")
	ErrBandCountMismatch = errors.New("processor: band count mismatch")
	ErrNameCountMismatch = errors.New("processor: output name count mismatch")
	ErrResourceExceeded  = errors.New("processor: resource limit exceeded")
)
