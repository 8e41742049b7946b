package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidID         = 1003
	ErrCodeMissingRequired   = 1004
	ErrCodeInvalidDigest     = 1005
	ErrCodeInvalidVisibility = 1006

	// Domain state (2xxx)
	ErrCodeEntryNotFound  = 2001
	ErrCodeFolderNotFound = 2002
	ErrCodeBlobNotFound   = 2003
	ErrCodeUserNotFound   = 2004
	ErrCodeShareNotFound  = 2005
	ErrCodeConflict       = 2101

	// Auth & limits (3xxx)
	ErrCodeUnauthorized  = 3001
	ErrCodeForbidden     = 3002
	ErrCodeQuotaExceeded = 3003
	ErrCodeRateLimited   = 3004

	// Internal/system (4xxx)
	ErrCodeInternal           = 4001
	ErrCodeStoreFailure       = 4002
	ErrCodeIOFailure          = 4003
	ErrCodeInvariantViolation = 4004
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeEntryNotFound
	case 409:
		return ErrCodeConflict
	case 429:
		return ErrCodeRateLimited
	case 507:
		return ErrCodeQuotaExceeded
	case 500:
		return ErrCodeInternal
	default:
		return ErrCodeInternal
	}
}
