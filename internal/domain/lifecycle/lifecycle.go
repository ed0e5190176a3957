// Package lifecycle holds shared shutdown policy.
package lifecycle

import "time"

// DefaultTimeout bounds graceful shutdown of any serving surface.
const DefaultTimeout = 10 * time.Second
