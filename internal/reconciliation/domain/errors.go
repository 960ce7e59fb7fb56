package domain

import "errors"

var (
	ErrUnknownEventKind    = errors.New("unknown_event_kind")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrPersistenceConflict = errors.New("persistence_conflict")
	ErrProcessingTimeout   = errors.New("processing_timeout")
)
