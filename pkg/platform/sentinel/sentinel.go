package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Storage backends and sinks return
// these (optionally wrapped) so callers can branch on them with errors.Is.
//
//   - ErrNotFound: key does not exist in storage
//   - ErrUnavailable: a sink or backend is temporarily refusing work
//   - ErrInvalidState: component used before it was configured
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidState = errors.New("invalid state")
)
