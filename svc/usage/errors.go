package usage

import "errors"

var (
	ErrUnknownResource    = errors.New("unknown metered resource")
	ErrFailedToCountUsage = errors.New("failed to count usage")
)
