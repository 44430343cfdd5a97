package civiclens

import "errors"

var (
	// ErrBuilderUsed is returned by a second Build on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrAlreadyStarted is returned by a second Client.Start.
	ErrAlreadyStarted = errors.New("client already started")
	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("client closed")
)
