package bridge

import "errors"

// Reasons a message is dropped. All of them are logged, none is retried.
var (
	ErrUnknownTeam      = errors.New("unknown team")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrStore            = errors.New("store failure")
)
