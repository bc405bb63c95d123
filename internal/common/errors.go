// Package common defines the sentinel errors shared by the storage, backup
// and transport layers of chatkeeper. Callers should use errors.Is to match
// these values; concrete errors wrap them with operation context.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound         = errors.New("not found")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrSerialization      = errors.New("serialization error")

	// Input errors.
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")

	// Backup errors. These are recorded in the scheduler history and never
	// returned to unrelated callers.
	ErrRemoteArchive = errors.New("remote archive error")
	ErrRetention     = errors.New("retention error")
)
