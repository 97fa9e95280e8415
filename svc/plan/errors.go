package plan

import "errors"

var (
	ErrUnknownTier    = errors.New("unknown plan tier")
	ErrUnknownStatus  = errors.New("unknown subscription status")
	ErrInvalidCatalog = errors.New("invalid plan catalog")
)
