package model

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateClient     = errors.New("client with this phone already exists")
	ErrSlotTaken           = errors.New("time range overlaps an existing appointment")
	ErrIdempotencyConflict = errors.New("idempotency key already used")
	ErrStatusChanged       = errors.New("appointment status changed concurrently")
)
