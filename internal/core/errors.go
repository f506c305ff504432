package core

import "errors"

// Pre-stream failures. Once the outbound channel has committed to
// event-stream framing these can no longer surface as HTTP statuses; anything
// later is reported in-band via the error sentinel.
var (
	ErrNotFound   = errors.New("conversation not found")
	ErrValidation = errors.New("invalid request")
)
