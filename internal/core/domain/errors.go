package domain

import "errors"

var (
	// ErrUnknownTargetType indicates a target type outside the supported set.
	ErrUnknownTargetType = errors.New("unknown target type")
	// ErrInvalidRecord indicates data that violates a record's field contract.
	ErrInvalidRecord = errors.New("invalid record data")
)
