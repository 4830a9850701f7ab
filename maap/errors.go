package maap

import "errors"

// Sentinel errors mirror the fixed notification result taxonomy (§7):
// Init, Reserve, and Release return one of these on failure alongside
// pushing the matching Notification, so a caller that only checks the
// error still sees the same classification the notification queue
// carries. Status reports only through the notification queue.
var (
	ErrRequiresInitialization = errors.New("maap: client requires initialization")
	ErrAlreadyInitialized     = errors.New("maap: already initialized with different parameters")
	ErrReserveNotAvailable    = errors.New("maap: no available address range")
	ErrReleaseInvalidID       = errors.New("maap: unknown or already-released reservation id")
	ErrOutOfMemory            = errors.New("maap: out of memory")
)
