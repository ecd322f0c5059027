package service

import "errors"

var (
	// ErrPersist is the generic failure surfaced after the persistence retry is spent.
	ErrPersist          = errors.New("failed to persist transition")
	ErrUnknownMachine   = errors.New("unknown machine")
	ErrJobNotFound      = errors.New("job not found")
	ErrInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	ErrInvalidScope     = errors.New("invalid scope: must be all or completed")
)
