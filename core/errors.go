package core

import "errors"

var (
	// ErrMaxTurnsExceeded is returned when a reasoning loop hits its turn bound.
	ErrMaxTurnsExceeded = errors.New("exceeded max reasoning turns")
	// ErrAgentNotFound is returned for registry misses.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrEmptyEnvelope is returned when an agent is invoked without turns.
	ErrEmptyEnvelope = errors.New("empty envelope")
	// ErrNoReply is returned when a model finishes without a final response.
	ErrNoReply = errors.New("model produced no reply")
)
