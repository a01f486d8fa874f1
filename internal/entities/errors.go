package entities

import "errors"

var (
	// ErrUnknownScene is returned when an operation names a scene id the
	// mirror has never seen (spec §6, no_such_file_or_directory).
	ErrUnknownScene = errors.New("entities: unknown scene")
	// ErrUnknownGroup is returned when an operation names a group id the
	// mirror has never seen.
	ErrUnknownGroup = errors.New("entities: unknown group")
	// ErrUnknownControl is returned when an operation names a control id
	// the mirror has never seen.
	ErrUnknownControl = errors.New("entities: unknown control")
	// ErrUnknownParticipant is returned when an operation names a
	// participant id the mirror has never seen.
	ErrUnknownParticipant = errors.New("entities: unknown participant")
)
