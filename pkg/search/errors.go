package search

import "errors"

var (
	ErrConnectionFailed  = errors.New("opensearch connection failed")
	ErrHealthcheckFailed = errors.New("opensearch healthcheck failed")
	ErrRequestFailed     = errors.New("opensearch request failed")
	ErrDisabled          = errors.New("search is not configured")
)
