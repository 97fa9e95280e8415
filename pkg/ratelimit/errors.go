package ratelimit

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidLimit      = errors.New("ratelimit: limit must be positive")
	ErrInvalidWindow     = errors.New("ratelimit: window must be positive")
	ErrKeyRequired       = errors.New("ratelimit: key is required")
	ErrStoreRequired     = errors.New("ratelimit: store is required")
	ErrStoreFailed       = errors.New("ratelimit: store operation failed")
)
