package types

import "context"

// ResponseEvent is a finished network response observed on a page.
// Body is lazy: the payload is only fetched from the browser when called.
type ResponseEvent struct {
	RequestID string
	URL       string
	Status    int
	MimeType  string
	Body      func(ctx context.Context) ([]byte, error)
}

// ResponseHandler receives every finished response on a page. Handlers must not
// block; the browser event loop delivers them.
type ResponseHandler func(ev ResponseEvent)
