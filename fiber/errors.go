package fiber

import (
	"github.com/lancaster-university/microbit-dal-sub002/event"
)

// The scheduler shares the runtime's standard error values, so callers can
// match with errors.Is across packages.
var (
	ErrInvalidParameter = event.ErrInvalidParameter
	ErrNotSupported     = event.ErrNotSupported
	ErrNoResources      = event.ErrNoResources
)
