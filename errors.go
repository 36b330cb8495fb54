package main

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRewardNotFound      = errors.New("reward not found")
	ErrAlreadyClaimed      = errors.New("reward already claimed")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidUser    = errors.New("invalid user id")
	ErrInvalidTrip    = errors.New("invalid trip")
	ErrInvalidReward  = errors.New("invalid reward")
	ErrStaleActivity  = errors.New("activity older than last recorded activity")
	ErrClaimNotFound  = errors.New("claim not found")
	ErrClaimUsed      = errors.New("claim already used")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrCorruptRecord  = errors.New("corrupt record")
	ErrRecordNotFound = errors.New("record not found")

	// ErrVersionConflict is returned by a RecordStore when a write's expected
	// version no longer matches the stored one.
	ErrVersionConflict = errors.New("record version conflict")
)

// errUnchanged is returned from a mutation to skip the write.
var errUnchanged = errors.New("unchanged")
