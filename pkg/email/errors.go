package email

import "errors"

var (
	ErrInvalidConfig     = errors.New("email: invalid configuration")
	ErrInvalidMessage    = errors.New("email: invalid message")
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrUnknownTemplate   = errors.New("email: unknown template")
)
