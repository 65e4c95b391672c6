package common

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("not allowed")
	ErrNameRequired = errors.New("name is required")
	ErrRateLimited  = errors.New("too many requests")
	ErrUnauthorized = errors.New("invalid or expired token")
)
