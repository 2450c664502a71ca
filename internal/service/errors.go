package service

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrTooEarly          = errors.New("session join window has not opened")
	ErrAlreadyJoined     = errors.New("participant already joined")
	ErrSessionFull       = errors.New("session is full")
	ErrSessionEnded      = errors.New("session has ended")
	ErrInvalidSchedule   = errors.New("invalid schedule request")

	// Infrastructure failures. Callers retry by their own policy.
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrTransportTimeout  = errors.New("transport timeout")
)

// errNoChange tells the registry a mutation left the session untouched
var errNoChange = errors.New("no change")
