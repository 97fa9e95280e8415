package audit

import "errors"

var (
	ErrStorageNotAvailable = errors.New("storage backend is unavailable")
	ErrEventValidation     = errors.New("event validation failed")
	ErrFailedToStore       = errors.New("failed to store audit event")
	ErrFailedToQuery       = errors.New("failed to query audit events")
)
