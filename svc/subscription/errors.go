package subscription

import "errors"

var (
	ErrUnknownEvent  = errors.New("unknown subscription event")
	ErrInvalidEvent  = errors.New("invalid subscription event")
	ErrUserNotFound  = errors.New("subscription owner not found")
	ErrFailedToApply = errors.New("failed to apply subscription event")
)
