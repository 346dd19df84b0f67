package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrAlreadyClosed      = errors.New("position already closed")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrConfigInconsistent = errors.New("inconsistent configuration")
	ErrMarketUnavailable  = errors.New("market data unavailable")
	ErrLockHeld           = errors.New("lock already held")
	ErrContextDone        = errors.New("context cancelled")
)
