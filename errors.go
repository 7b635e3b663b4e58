package mongo

import "errors"

// Sentinel errors of the mapping layer. Recoverable outcomes (validation
// failures, uniqueness conflicts, empty change-sets) are reported as
// structured result values instead; these errors mark the conditions callers
// branch on with errors.Is.
var (
	// ErrNotFound means a targeted identifier matched no document.
	ErrNotFound = errors.New("mongo: document not found")

	// ErrWriteRejected means the store acknowledged nothing. Terminal for
	// that call.
	ErrWriteRejected = errors.New("mongo: write not acknowledged by store")

	// ErrCursorClosed means the cursor was explicitly closed and cannot be
	// pulled, probed or rewound.
	ErrCursorClosed = errors.New("mongo: cursor is closed")

	// ErrDatabaseClosed means the handle was used after Close.
	ErrDatabaseClosed = errors.New("mongo: database is closed")
)
