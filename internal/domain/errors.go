package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidPosition    = errors.New("invalid position")
	ErrInvalidContainerID = errors.New("invalid container id")
	ErrInvalidEventType   = errors.New("invalid event type")
	ErrPositionsNotDense  = errors.New("positions not dense")
)
