package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrQueueFull   = errors.New("queue full")
	ErrNoCapacity  = errors.New("no credential capacity")
	ErrTimedOut    = errors.New("timed out")
	ErrCancelled   = errors.New("cancelled")
)
