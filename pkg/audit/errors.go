package audit

import "errors"

var (
	// ErrStorageNotAvailable indicates the storage backend is unavailable
	ErrStorageNotAvailable = errors.New("storage backend is unavailable")

	// ErrEventValidation indicates event validation failed
	ErrEventValidation = errors.New("event validation failed")

	// ErrQueryNotSupported is returned by write-only storages.
	ErrQueryNotSupported = errors.New("storage does not support queries")
)
