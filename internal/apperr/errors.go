package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidResult = errors.New("invalid result")
)
