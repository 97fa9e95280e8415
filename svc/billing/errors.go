package billing

import "errors"

var (
	ErrBillingDisabled      = errors.New("billing is not configured")
	ErrUnknownProvider      = errors.New("unknown billing provider")
	ErrMissingPriceID       = errors.New("billing price id is not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrProviderFailed       = errors.New("billing provider request failed")
	ErrNoBillingAccount     = errors.New("no billing account for user")
	ErrAlreadySubscribed    = errors.New("user already has an active pro subscription")
	ErrAccountNotFound      = errors.New("billing account not found")
	ErrFailedToSaveCustomer = errors.New("failed to save billing customer ref")
)
