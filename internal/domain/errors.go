package domain

import "errors"

// Sentinel errors shared by the persistence and API layers.
var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("record already exists")
)
