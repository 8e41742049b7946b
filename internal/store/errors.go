package store

import "errors"

// Sentinel errors surfaced by store operations. The server layer maps these
// onto the API error taxonomy; callers match with errors.Is.
var (
	// ErrNotFound reports a missing entry, folder, share link, or blob row.
	ErrNotFound = errors.New("not found")

	// ErrUnknownUser reports an operation against a user with no quota row.
	ErrUnknownUser = errors.New("unknown user")

	// ErrQuotaExceeded reports a reserve that would push a user past their
	// quota limit. No state was changed.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUnknownBlob reports a reference increment against a digest with no
	// blob row. Increments must always follow a successful store step.
	ErrUnknownBlob = errors.New("unknown blob")

	// ErrRefUnderflow reports a decrement of a reference count that is
	// already zero. This is an invariant violation, not a user error: the
	// enclosing transaction is rolled back and nothing is "fixed" silently.
	ErrRefUnderflow = errors.New("reference count underflow")

	// ErrConflict reports a uniqueness conflict (duplicate user, folder
	// name, or share grant).
	ErrConflict = errors.New("already exists")
)
