// Package delivery defines the surfaces through which the application is
// reached. Each surface blocks in Serve until shut down via its lifecycle hook.
package delivery

import "context"

// Delivery is one serving surface (HTTP callback server, etc.).
type Delivery interface {
	Serve(ctx context.Context) error
}
