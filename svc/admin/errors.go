package admin

import "errors"

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrFailedToUpdate = errors.New("failed to update user")
)
