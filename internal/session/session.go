// Package session provisions the browser a capture run drives and guarantees
// it is stopped afterwards.
package session

import (
	"context"
)

// Handle is a running browser session.
type Handle interface {
	// ControlEndpoint is the CDP URL (http:// or ws://) chromedp connects to.
	ControlEndpoint() string
	// Stop releases the session. It is safe to call more than once.
	Stop() error
}

// Provider starts browser sessions.
type Provider interface {
	Start(ctx context.Context) (Handle, error)
	Name() string
}
