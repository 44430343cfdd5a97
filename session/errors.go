package session

import "errors"

// ErrAlreadyInitialized is returned by a second call to Manager.Initialize.
var ErrAlreadyInitialized = errors.New("session: manager already initialized")
