package models

import "errors"

// Validation and state-machine errors shared across models and repositories.
var (
	ErrInputPathRequired  = errors.New("input path is required")
	ErrOutputPathRequired = errors.New("output path is required")
	ErrUnknownStatus      = errors.New("unknown job status")
	ErrJobIDRequired      = errors.New("job ID is required")

	ErrUnknownDecisionAction = errors.New("unknown decision action")

	ErrPathRequired     = errors.New("path is required")
	ErrInvalidClockTime = errors.New("invalid clock time")
	ErrInvalidDayOfWeek = errors.New("invalid day of week")

	ErrNameRequired             = errors.New("name is required")
	ErrEndpointURLRequired      = errors.New("endpoint URL is required")
	ErrUnknownNotificationType  = errors.New("unknown notification target type")
	ErrUnknownNotificationEvent = errors.New("unknown notification event")

	ErrTokenRequired = errors.New("session token is required")

	// ErrInvalidTransition is returned when a status change violates the
	// job state machine.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrNotTerminal is returned when restarting a job that has not reached
	// a terminal status.
	ErrNotTerminal = errors.New("job is not in a terminal status")
)
