package domain

import "errors"

// ErrSessionNotFound is returned when a session ID is unknown (or already evicted).
var ErrSessionNotFound = errors.New("session not found")

// ErrCapacityExceeded is returned when the number of live councils is at the limit.
// Callers should retry later or queue the request.
var ErrCapacityExceeded = errors.New("council capacity exceeded")

// ErrInvalidParticipants is returned when the participant list (or the session config) is unusable.
var ErrInvalidParticipants = errors.New("invalid participants")

// ErrInvalidTransition is returned when an event does not apply to the session's current status.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrTerminalSession is returned for any event submitted after the session reached a terminal status.
var ErrTerminalSession = errors.New("session is terminal")

// ErrAdapterFailure marks failures reported by agent, evidence or synthesis adapters.
var ErrAdapterFailure = errors.New("adapter failure")

// ErrDeadlineExceeded marks the council deadline having fired.
var ErrDeadlineExceeded = errors.New("council deadline exceeded")

// ErrManagerClosed is returned by operations issued after Shutdown.
var ErrManagerClosed = errors.New("manager closed")
